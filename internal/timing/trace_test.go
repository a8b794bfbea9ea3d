package timing

import (
	"sync"
	"testing"
)

func TestTraceAddAndSnapshot(t *testing.T) {
	trace := NewTrace("req_1")
	trace.Add(CategoryRequest, "start", nil)
	trace.Add(CategoryModeration, "guardrail.response", map[string]any{"allowed": true})
	trace.Add(CategoryGeneration, "stream.end", nil)

	rec := trace.Snapshot()
	if rec.RequestID != "req_1" {
		t.Fatalf("expected request ID req_1, got %q", rec.RequestID)
	}
	if len(rec.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(rec.Events))
	}
	if rec.Events[0].Label != "start" || rec.Events[0].Category != CategoryRequest {
		t.Fatalf("unexpected first event: %+v", rec.Events[0])
	}
	if rec.Events[1].Extra["allowed"] != true {
		t.Fatalf("expected extra fields preserved, got %+v", rec.Events[1].Extra)
	}
	if !rec.GuardrailPassed {
		t.Fatal("expected guardrail passed by default")
	}

	// Elapsed times never decrease.
	for i := 1; i < len(rec.Events); i++ {
		if rec.Events[i].TimeMs < rec.Events[i-1].TimeMs {
			t.Fatalf("event %d time went backwards: %v < %v", i, rec.Events[i].TimeMs, rec.Events[i-1].TimeMs)
		}
	}
	if rec.TotalDurationMs < rec.Events[len(rec.Events)-1].TimeMs {
		t.Fatal("total duration is shorter than the last event")
	}
}

func TestTraceConcurrentAdd(t *testing.T) {
	trace := NewTrace("req_1")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				trace.Add(CategoryGeneration, "chunk", nil)
			}
		}()
	}
	wg.Wait()

	if got := len(trace.Snapshot().Events); got != 200 {
		t.Fatalf("expected 200 events, got %d", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	trace := NewTrace("req_1")
	trace.Add(CategoryRequest, "start", nil)

	rec := trace.Snapshot()
	trace.Add(CategoryRequest, "end", nil)

	if len(rec.Events) != 1 {
		t.Fatalf("snapshot mutated by later adds: %d events", len(rec.Events))
	}
}
