package domain

import "encoding/json"

// Verdict is the moderation result for a single request.
//
// Allowed defaults to true when the moderation call fails for reasons
// unrelated to a policy violation (fail-open). An unparseable moderation
// reply yields Allowed=false (fail-closed).
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	// ContentFilters carries the platform's structured filter detail when a
	// content policy violation was flagged, raw and unmodified.
	ContentFilters json.RawMessage `json:"content_filters,omitempty"`
}
