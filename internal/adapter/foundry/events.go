package foundry

import "encoding/json"

// Stream event types emitted by the platform's responses API.
const (
	EventOutputTextDelta = "response.output_text.delta"
	EventOutputItemAdded = "response.output_item.added"
	EventOutputItemDone  = "response.output_item.done"
	EventCompleted       = "response.completed"
)

// StreamEvent is a single low-level event from a streamed response.
type StreamEvent struct {
	Type  string      `json:"type"`
	Delta string      `json:"delta,omitempty"`
	Item  *StreamItem `json:"item,omitempty"`
}

// StreamItem is the item payload carried by item-level events.
type StreamItem struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	ActionID string `json:"action_id,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ErrorResponse is the platform's error envelope.
type ErrorResponse struct {
	Error *APIErrorBody `json:"error"`
}

// APIErrorBody carries the error details, including content filter results
// when a content policy violation was flagged.
type APIErrorBody struct {
	Code           string          `json:"code,omitempty"`
	Message        string          `json:"message"`
	ContentFilters json.RawMessage `json:"content_filters,omitempty"`
}
