package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hvlab/guardchat/internal/domain"
	"github.com/hvlab/guardchat/internal/timing"
)

type stubModerator struct {
	verdict domain.Verdict
	delay   time.Duration
}

func (s *stubModerator) Check(ctx context.Context, message, conversationID string, trace *timing.Trace) domain.Verdict {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.verdict
}

type stubGenerator struct {
	events   []domain.GenerationEvent
	delay    time.Duration
	perEvent time.Duration
}

func (s *stubGenerator) Stream(ctx context.Context, message, conversationID string, trace *timing.Trace) <-chan domain.GenerationEvent {
	ch := make(chan domain.GenerationEvent, len(s.events))
	go func() {
		defer close(ch)
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		for _, ev := range s.events {
			if s.perEvent > 0 {
				time.Sleep(s.perEvent)
			}
			ch <- ev
		}
	}()
	return ch
}

type stubCleaner struct {
	mu    sync.Mutex
	calls [][]string
	convs []string
}

func (s *stubCleaner) Cleanup(ctx context.Context, ids []string, conversationID string, trace *timing.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ids)
	s.convs = append(s.convs, conversationID)
}

func generationSequence(chunks []string, itemIDs []string) []domain.GenerationEvent {
	events := []domain.GenerationEvent{{Type: domain.GenerationStarted}}
	var full strings.Builder
	for _, chunk := range chunks {
		full.WriteString(chunk)
		events = append(events, domain.GenerationEvent{
			Type:     domain.GenerationChunk,
			Content:  chunk,
			ByteSize: len(chunk),
		})
	}
	events = append(events,
		domain.GenerationEvent{Type: domain.GenerationEnded},
		domain.GenerationEvent{Type: domain.GenerationCompleted, FullText: full.String(), ItemIDs: itemIDs},
	)
	return events
}

func collect(t *testing.T, out <-chan domain.OutputEvent) []domain.OutputEvent {
	t.Helper()
	var events []domain.OutputEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for output events, got %d so far", len(events))
		}
	}
}

func testRequest() domain.Request {
	return domain.Request{
		ID:               "req_test",
		SessionID:        "default",
		Message:          "hello",
		ModerationHandle: "conv_mod",
		GenerationHandle: "conv_gen",
	}
}

func TestProcessAllowRoundTrip(t *testing.T) {
	// Generator finishes before the verdict: the full stream is buffered,
	// then replayed in arrival order.
	moderator := &stubModerator{verdict: domain.Verdict{Allowed: true}, delay: 50 * time.Millisecond}
	generator := &stubGenerator{events: generationSequence([]string{"Hel", "lo, ", "world"}, nil)}
	cleaner := &stubCleaner{}
	coord := NewCoordinator(moderator, generator, cleaner)

	out := coord.Process(context.Background(), testRequest(), timing.NewTrace("req_test"))
	events := collect(t, out)

	assertChatSequence(t, events, []string{"Hel", "lo, ", "world"}, "Hello, world")
	if len(cleaner.calls) != 0 {
		t.Fatalf("cleanup must not run on an allowed request, got %d calls", len(cleaner.calls))
	}
}

func TestProcessAllowVerdictBeforeAnyEvent(t *testing.T) {
	// Verdict resolves before the generator produces anything: output must
	// equal the buffered case applied to an empty buffer.
	moderator := &stubModerator{verdict: domain.Verdict{Allowed: true}}
	generator := &stubGenerator{
		events: generationSequence([]string{"Hel", "lo, ", "world"}, nil),
		delay:  80 * time.Millisecond,
	}
	coord := NewCoordinator(moderator, generator, &stubCleaner{})

	out := coord.Process(context.Background(), testRequest(), timing.NewTrace("req_test"))
	events := collect(t, out)

	assertChatSequence(t, events, []string{"Hel", "lo, ", "world"}, "Hello, world")
}

func assertChatSequence(t *testing.T, events []domain.OutputEvent, chunks []string, fullText string) {
	t.Helper()
	want := len(chunks) + 3
	if len(events) != want {
		t.Fatalf("expected %d events, got %d: %+v", want, len(events), events)
	}
	if events[0].Type != domain.OutputMessageStart {
		t.Fatalf("expected message start first, got %s", events[0].Type)
	}
	var got strings.Builder
	for i, chunk := range chunks {
		ev := events[i+1]
		if ev.Type != domain.OutputMessageContent || ev.Content != chunk {
			t.Fatalf("event %d: expected content %q, got %+v", i+1, chunk, ev)
		}
		got.WriteString(ev.Content)
	}
	if events[len(events)-2].Type != domain.OutputMessageEnd {
		t.Fatalf("expected message end before done, got %s", events[len(events)-2].Type)
	}
	done := events[len(events)-1]
	if done.Type != domain.OutputDone {
		t.Fatalf("expected done last, got %s", done.Type)
	}
	if done.FullText != fullText {
		t.Fatalf("expected full text %q, got %q", fullText, done.FullText)
	}
	if got.String() != done.FullText {
		t.Fatalf("chunk concatenation %q does not match full text %q", got.String(), done.FullText)
	}
	if done.Verdict == nil || !done.Verdict.Allowed {
		t.Fatalf("expected an allowed verdict on done, got %+v", done.Verdict)
	}
}

func TestProcessDenySuppressesGeneratorContent(t *testing.T) {
	moderator := &stubModerator{
		verdict: domain.Verdict{Allowed: false, Reason: "policy"},
	}
	generator := &stubGenerator{
		events:   generationSequence([]string{"ignored"}, []string{"a", "a", "b"}),
		perEvent: 5 * time.Millisecond,
	}
	cleaner := &stubCleaner{}
	coord := NewCoordinator(moderator, generator, cleaner)

	out := coord.Process(context.Background(), testRequest(), timing.NewTrace("req_test"))
	events := collect(t, out)

	if len(events) != 4 {
		t.Fatalf("expected exactly 4 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != domain.OutputMessageStart {
		t.Fatalf("expected message start, got %s", events[0].Type)
	}
	wantMessage := "Guardrail Hit :(\n\n**Reason:** policy\n\n"
	if events[1].Type != domain.OutputMessageContent || events[1].Content != wantMessage {
		t.Fatalf("expected rejection content %q, got %+v", wantMessage, events[1])
	}
	if events[2].Type != domain.OutputMessageEnd {
		t.Fatalf("expected message end, got %s", events[2].Type)
	}
	done := events[3]
	if done.Type != domain.OutputDone || done.FullText != wantMessage {
		t.Fatalf("unexpected done event: %+v", done)
	}
	if done.Verdict == nil || done.Verdict.Allowed {
		t.Fatalf("expected a denial verdict on done, got %+v", done.Verdict)
	}

	for _, ev := range events {
		if strings.Contains(ev.Content, "ignored") {
			t.Fatalf("generator content leaked into output: %+v", ev)
		}
	}

	// Item IDs are deduplicated, first-seen order kept.
	if len(cleaner.calls) != 1 {
		t.Fatalf("expected exactly one cleanup call, got %d", len(cleaner.calls))
	}
	gotIDs := cleaner.calls[0]
	if len(gotIDs) != 2 || gotIDs[0] != "a" || gotIDs[1] != "b" {
		t.Fatalf("expected cleanup ids [a b], got %v", gotIDs)
	}
	if cleaner.convs[0] != "conv_gen" {
		t.Fatalf("cleanup must target the generation conversation, got %s", cleaner.convs[0])
	}
}

func TestProcessDenyWithoutItemsSkipsCleanup(t *testing.T) {
	moderator := &stubModerator{verdict: domain.Verdict{Allowed: false, Reason: "policy"}}
	generator := &stubGenerator{events: generationSequence(nil, nil)}
	cleaner := &stubCleaner{}
	coord := NewCoordinator(moderator, generator, cleaner)

	events := collect(t, coord.Process(context.Background(), testRequest(), timing.NewTrace("req_test")))

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if len(cleaner.calls) != 0 {
		t.Fatalf("expected no cleanup calls, got %d", len(cleaner.calls))
	}
}

func TestProcessDenyDrainsSlowGenerator(t *testing.T) {
	// The verdict lands while the generator is still mid-stream; the
	// coordinator must wait for the terminal event to recover item IDs.
	moderator := &stubModerator{verdict: domain.Verdict{Allowed: false, Reason: "policy"}}
	generator := &stubGenerator{
		events:   generationSequence([]string{"late content"}, []string{"x"}),
		delay:    60 * time.Millisecond,
		perEvent: 10 * time.Millisecond,
	}
	cleaner := &stubCleaner{}
	coord := NewCoordinator(moderator, generator, cleaner)

	events := collect(t, coord.Process(context.Background(), testRequest(), timing.NewTrace("req_test")))

	for _, ev := range events {
		if strings.Contains(ev.Content, "late content") {
			t.Fatalf("post-verdict generator content leaked: %+v", ev)
		}
	}
	if len(cleaner.calls) != 1 || len(cleaner.calls[0]) != 1 || cleaner.calls[0][0] != "x" {
		t.Fatalf("expected cleanup of [x], got %v", cleaner.calls)
	}
}

func TestRejectionMessageWithFilters(t *testing.T) {
	verdict := domain.Verdict{
		Allowed:        false,
		Reason:         "hate detected",
		ContentFilters: json.RawMessage(`[{"content_filter_results":{"hate":{"filtered":true,"severity":"high"}}}]`),
	}
	message := RejectionMessage(verdict)

	if !strings.HasPrefix(message, "Guardrail Hit :(\n\n**Reason:** hate detected\n\n") {
		t.Fatalf("unexpected message prefix: %q", message)
	}
	if !strings.Contains(message, "**Content Filters:**") {
		t.Fatalf("expected content filters block, got %q", message)
	}
	if !strings.Contains(message, `"filtered": true`) {
		t.Fatalf("expected indented filter JSON, got %q", message)
	}
}

func TestRejectionMessageDefaultReason(t *testing.T) {
	message := RejectionMessage(domain.Verdict{Allowed: false})
	if message != "Guardrail Hit :(\n\n**Reason:** Unknown\n\n" {
		t.Fatalf("unexpected message: %q", message)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c", "b"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected dedupe result: %v", got)
	}
	if dedupe(nil) != nil {
		t.Fatal("dedupe of nil should be nil")
	}
}
