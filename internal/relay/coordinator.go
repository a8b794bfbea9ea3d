// Package relay coordinates the concurrent moderation check and generation
// stream for one request: generation output is buffered until the moderation
// verdict arrives, then either replayed and forwarded live, or discarded
// with external side effects erased.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hvlab/guardchat/internal/domain"
	"github.com/hvlab/guardchat/internal/timing"
)

// Moderator checks one user message and returns a verdict. It must not
// return until the verdict is final; every failure mode degrades to a
// verdict rather than an error.
type Moderator interface {
	Check(ctx context.Context, message, conversationID string, trace *timing.Trace) domain.Verdict
}

// Generator opens a live generation stream. The returned channel carries
// events in strict arrival order and is closed after the terminal event.
type Generator interface {
	Stream(ctx context.Context, message, conversationID string, trace *timing.Trace) <-chan domain.GenerationEvent
}

// Cleaner erases already-committed generation artifacts, best effort.
type Cleaner interface {
	Cleanup(ctx context.Context, ids []string, conversationID string, trace *timing.Trace)
}

// Coordinator drives the per-request state machine:
// buffering -> releasing|rejecting -> draining -> done.
type Coordinator struct {
	moderator Moderator
	generator Generator
	cleaner   Cleaner

	// drainTimeout bounds the post-denial wait for the generator's terminal
	// event. The worker is expected to finish well inside it.
	drainTimeout time.Duration
}

// NewCoordinator creates a coordinator over the three collaborators.
func NewCoordinator(moderator Moderator, generator Generator, cleaner Cleaner) *Coordinator {
	return &Coordinator{
		moderator:    moderator,
		generator:    generator,
		cleaner:      cleaner,
		drainTimeout: 30 * time.Second,
	}
}

// Process runs one request. The returned channel yields output events in
// order and is closed after the terminal Done event. The caller never
// observes generation content produced before a denial verdict.
func (c *Coordinator) Process(ctx context.Context, req domain.Request, trace *timing.Trace) <-chan domain.OutputEvent {
	out := make(chan domain.OutputEvent)
	go c.run(ctx, req, trace, out)
	return out
}

func (c *Coordinator) run(ctx context.Context, req domain.Request, trace *timing.Trace, out chan<- domain.OutputEvent) {
	defer close(out)

	send := func(ev domain.OutputEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Launch both workers up front.
	events := c.generator.Stream(ctx, req.Message, req.GenerationHandle, trace)
	verdictCh := make(chan domain.Verdict, 1)
	go func() {
		verdictCh <- c.moderator.Check(ctx, req.Message, req.ModerationHandle, trace)
	}()

	trace.Add(timing.CategoryRequest, "buffer.start", nil)

	// BUFFERING: hold every generation event; only verdict arrival exits
	// this state. A closed generator channel is parked (nil select case)
	// so the wait degrades to the verdict alone.
	var (
		buffer  []domain.GenerationEvent
		verdict domain.Verdict
		pending = events
	)
	for waiting := true; waiting; {
		select {
		case verdict = <-verdictCh:
			waiting = false
		case ev, ok := <-pending:
			if !ok {
				pending = nil
				continue
			}
			buffer = append(buffer, ev)
		case <-ctx.Done():
			return
		}
	}

	trace.Add(timing.CategoryRequest, "buffer.release", map[string]any{"events_buffered": len(buffer)})
	trace.GuardrailPassed = verdict.Allowed
	trace.GuardrailReason = verdict.Reason
	trace.ContentFilters = verdict.ContentFilters

	if !verdict.Allowed {
		c.reject(ctx, req, verdict, buffer, events, trace, send)
		return
	}

	// RELEASING: replay the buffer in arrival order, deferring the terminal
	// event, then DRAINING: forward live events until the stream closes.
	trace.Add(timing.CategoryRequest, "streaming.start", nil)

	var fullText string
	forward := func(ev domain.GenerationEvent) bool {
		switch ev.Type {
		case domain.GenerationStarted:
			return send(domain.OutputEvent{Type: domain.OutputMessageStart})
		case domain.GenerationChunk:
			return send(domain.OutputEvent{Type: domain.OutputMessageContent, Content: ev.Content})
		case domain.GenerationEnded:
			return send(domain.OutputEvent{Type: domain.OutputMessageEnd})
		case domain.GenerationCompleted:
			fullText = ev.FullText
		}
		return true
	}

	for _, ev := range buffer {
		if !forward(ev) {
			return
		}
	}
	for ev := range events {
		if !forward(ev) {
			return
		}
	}

	trace.Add(timing.CategoryRequest, "done", nil)
	send(domain.OutputEvent{Type: domain.OutputDone, FullText: fullText, Verdict: &verdict})
}

// reject discards the buffer, recovers the generator's item IDs for cleanup,
// erases the committed items, then emits the single rejection sequence.
func (c *Coordinator) reject(ctx context.Context, req domain.Request, verdict domain.Verdict, buffer []domain.GenerationEvent, events <-chan domain.GenerationEvent, trace *timing.Trace, send func(domain.OutputEvent) bool) {
	trace.Add(timing.CategoryRequest, "guardrail.blocked", nil)

	var itemIDs []string
	for _, ev := range buffer {
		if ev.Type == domain.GenerationCompleted {
			itemIDs = ev.ItemIDs
		}
	}

	timer := time.NewTimer(c.drainTimeout)
	defer timer.Stop()
drain:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break drain
			}
			if ev.Type == domain.GenerationCompleted {
				itemIDs = ev.ItemIDs
			}
		case <-timer.C:
			log.Printf("WARN: generator did not finish within the drain window, skipping cleanup of unreported items")
			break drain
		case <-ctx.Done():
			break drain
		}
	}

	if ids := dedupe(itemIDs); len(ids) > 0 {
		c.cleaner.Cleanup(ctx, ids, req.GenerationHandle, trace)
	}

	message := RejectionMessage(verdict)
	if !send(domain.OutputEvent{Type: domain.OutputMessageStart}) {
		return
	}
	if !send(domain.OutputEvent{Type: domain.OutputMessageContent, Content: message}) {
		return
	}
	if !send(domain.OutputEvent{Type: domain.OutputMessageEnd}) {
		return
	}
	send(domain.OutputEvent{Type: domain.OutputDone, FullText: message, Verdict: &verdict})
}

// RejectionMessage renders the substitute payload shown instead of blocked
// content.
func RejectionMessage(verdict domain.Verdict) string {
	reason := verdict.Reason
	if reason == "" {
		reason = "Unknown"
	}
	message := "Guardrail Hit :(\n\n"
	message += "**Reason:** " + reason + "\n\n"
	if len(verdict.ContentFilters) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, verdict.ContentFilters, "", "  "); err == nil {
			message += "**Content Filters:**\n```json\n"
			message += pretty.String()
			message += "\n```"
		}
	}
	return message
}

// dedupe removes duplicate IDs, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
