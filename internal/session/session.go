// Package session holds per-conversation state: the transcript, the system
// instructions, and the two independent platform context handles.
package session

import (
	"context"
	"fmt"
	"sync"
)

// DefaultInstructions is the system prompt used until one is set.
const DefaultInstructions = "You are a helpful assistant."

// HandleKind selects one of the two conversation context handles. The two
// kinds are independent external resources: a generation handle is never
// reused for moderation.
type HandleKind string

const (
	HandleModeration HandleKind = "moderation"
	HandleGeneration HandleKind = "generation"
)

// ConversationCreator creates context handles on the external platform.
type ConversationCreator interface {
	CreateConversation(ctx context.Context) (string, error)
}

// Turn is one transcript entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleSlot guards lazy creation of one context handle. Holding the slot
// lock across the external call makes creation at-most-once per kind.
type handleSlot struct {
	mu sync.Mutex
	id string
}

// Session is the conversational state for one session ID. Transcript and
// instructions are guarded independently from the handle slots so the two
// handle kinds can be created in parallel.
type Session struct {
	id string

	// inflight serializes coordinator invocations: one request per session.
	inflight sync.Mutex

	mu           sync.Mutex
	transcript   []Turn
	instructions string

	moderation handleSlot
	generation handleSlot
}

// New creates an empty session.
func New(id string) *Session {
	return &Session{
		id:           id,
		instructions: DefaultInstructions,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Acquire blocks until this session has no request in flight.
func (s *Session) Acquire() {
	s.inflight.Lock()
}

// Release ends the in-flight request.
func (s *Session) Release() {
	s.inflight.Unlock()
}

// AppendTurn appends one transcript entry.
func (s *Session) AppendTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, Turn{Role: role, Content: content})
}

// Transcript returns a copy of the transcript in insertion order.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Instructions returns the current system instructions.
func (s *Session) Instructions() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instructions
}

// SetInstructions replaces the system instructions. An empty value restores
// the default.
func (s *Session) SetInstructions(instructions string) {
	if instructions == "" {
		instructions = DefaultInstructions
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions = instructions
}

// Handle returns the current handle for the kind, or "" when absent.
func (s *Session) Handle(kind HandleKind) string {
	slot := s.slot(kind)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.id
}

// GetOrCreateHandle returns the handle for the kind, creating it on first
// use. Creation happens at most once per kind until Reset.
func (s *Session) GetOrCreateHandle(ctx context.Context, kind HandleKind, creator ConversationCreator) (string, error) {
	slot := s.slot(kind)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.id != "" {
		return slot.id, nil
	}
	id, err := creator.CreateConversation(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create %s conversation: %w", kind, err)
	}
	slot.id = id
	return id, nil
}

// GetOrCreateHandles resolves both handles, creating missing ones in
// parallel since they are independent external resources.
func (s *Session) GetOrCreateHandles(ctx context.Context, creator ConversationCreator) (moderation, generation string, err error) {
	var (
		wg             sync.WaitGroup
		modErr, genErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		moderation, modErr = s.GetOrCreateHandle(ctx, HandleModeration, creator)
	}()
	go func() {
		defer wg.Done()
		generation, genErr = s.GetOrCreateHandle(ctx, HandleGeneration, creator)
	}()
	wg.Wait()

	if modErr != nil {
		return "", "", modErr
	}
	if genErr != nil {
		return "", "", genErr
	}
	return moderation, generation, nil
}

// Reset clears the transcript and both context handles.
func (s *Session) Reset() {
	s.mu.Lock()
	s.transcript = nil
	s.mu.Unlock()

	for _, slot := range []*handleSlot{&s.moderation, &s.generation} {
		slot.mu.Lock()
		slot.id = ""
		slot.mu.Unlock()
	}
}

func (s *Session) slot(kind HandleKind) *handleSlot {
	if kind == HandleModeration {
		return &s.moderation
	}
	return &s.generation
}
