package foundry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockClient is an in-process Platform implementation for local runs and
// tests. The guardrail agent denies any input containing "blocked"; the
// workflow agent streams a canned reply in small chunks.
type MockClient struct {
	counter atomic.Int64

	mu      sync.Mutex
	deleted []string
	added   []string
}

// NewMockClient creates a new mock platform client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements the Platform interface.
var _ Platform = (*MockClient)(nil)

// CreateConversation returns a fresh mock conversation ID.
func (m *MockClient) CreateConversation(ctx context.Context) (string, error) {
	return fmt.Sprintf("conv_mock_%d", m.counter.Add(1)), nil
}

// CreateResponse answers as the guardrail agent: a verdict JSON document.
func (m *MockClient) CreateResponse(ctx context.Context, agent, conversationID, input string) (string, error) {
	if strings.Contains(strings.ToLower(input), "blocked") {
		return `{"allowed": false, "reason": "mock guardrail block"}`, nil
	}
	return `{"allowed": true, "reason": ""}`, nil
}

// StreamResponse streams a canned workflow reply in small chunks.
func (m *MockClient) StreamResponse(ctx context.Context, agent, conversationID, input string, handler StreamHandler) error {
	itemID := fmt.Sprintf("msg_mock_%d", m.counter.Add(1))

	if err := handler(&StreamEvent{
		Type: EventOutputItemAdded,
		Item: &StreamItem{ID: itemID, Type: "message"},
	}); err != nil {
		return err
	}

	reply := "You said: " + input
	for _, chunk := range splitIntoChunks(reply, 8) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := handler(&StreamEvent{
			Type:  EventOutputTextDelta,
			Delta: chunk,
			Item:  &StreamItem{ID: itemID},
		}); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := handler(&StreamEvent{
		Type: EventOutputItemDone,
		Item: &StreamItem{ID: itemID, Type: "message", Status: "completed"},
	}); err != nil {
		return err
	}
	return handler(&StreamEvent{Type: EventCompleted})
}

// DeleteConversationItem records the deletion.
func (m *MockClient) DeleteConversationItem(ctx context.Context, conversationID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, itemID)
	return nil
}

// AddConversationItem records the appended item.
func (m *MockClient) AddConversationItem(ctx context.Context, conversationID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, role+": "+content)
	return nil
}

// DeletedItems returns the item IDs deleted so far.
func (m *MockClient) DeletedItems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// AddedItems returns the conversation items appended so far, as "role: content".
func (m *MockClient) AddedItems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.added))
	copy(out, m.added)
	return out
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}
