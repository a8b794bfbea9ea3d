// Package timing records per-request timing traces and keeps the
// process-wide log served by the diagnostic endpoints.
package timing

import (
	"encoding/json"
	"sync"
	"time"
)

// Trace categories.
const (
	CategoryRequest    = "request"
	CategoryModeration = "moderation"
	CategoryGeneration = "generation"
)

// Event is one timing entry: elapsed time since the request started, a
// category, a label, and optional extra fields.
type Event struct {
	TimeMs   float64        `json:"time_ms"`
	Category string         `json:"category"`
	Label    string         `json:"event"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Trace is the append-only timing trace for a single request. It is owned by
// the coordinator invocation processing that request; the workers append to
// it concurrently, so it is safe for concurrent use.
type Trace struct {
	requestID string
	startedAt time.Time

	mu     sync.Mutex
	events []Event

	GuardrailPassed bool
	GuardrailReason string
	ContentFilters  json.RawMessage
}

// NewTrace creates a trace for one request.
func NewTrace(requestID string) *Trace {
	return &Trace{
		requestID:       requestID,
		startedAt:       time.Now(),
		GuardrailPassed: true,
	}
}

// Add appends one event. Extra may be nil.
func (t *Trace) Add(category, label string, extra map[string]any) {
	ev := Event{
		TimeMs:   float64(time.Since(t.startedAt).Microseconds()) / 1000.0,
		Category: category,
		Label:    label,
		Extra:    extra,
	}
	t.mu.Lock()
	t.events = append(t.events, ev)
	t.mu.Unlock()
}

// Record is the serializable snapshot of a completed trace.
type Record struct {
	RequestID       string          `json:"request_id"`
	StartedAt       time.Time       `json:"started_at"`
	Events          []Event         `json:"events"`
	GuardrailPassed bool            `json:"guardrail_passed"`
	GuardrailReason string          `json:"guardrail_reason"`
	ContentFilters  json.RawMessage `json:"content_filters,omitempty"`
	TotalDurationMs float64         `json:"total_duration_ms"`
}

// Snapshot returns the current state of the trace as a Record.
func (t *Trace) Snapshot() Record {
	t.mu.Lock()
	events := make([]Event, len(t.events))
	copy(events, t.events)
	t.mu.Unlock()

	return Record{
		RequestID:       t.requestID,
		StartedAt:       t.startedAt,
		Events:          events,
		GuardrailPassed: t.GuardrailPassed,
		GuardrailReason: t.GuardrailReason,
		ContentFilters:  t.ContentFilters,
		TotalDurationMs: float64(time.Since(t.startedAt).Microseconds()) / 1000.0,
	}
}
