package guardrail

import (
	"encoding/json"
	"fmt"
)

type contentFilter struct {
	ContentFilterResults map[string]filterResult `json:"content_filter_results"`
}

type filterResult struct {
	Filtered bool   `json:"filtered"`
	Severity string `json:"severity"`
}

// extractContentFilters pulls the content_filters array out of an error
// body. Returns nil when the body carries none.
func extractContentFilters(body json.RawMessage) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	var envelope struct {
		Error struct {
			ContentFilters json.RawMessage `json:"content_filters"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if len(envelope.Error.ContentFilters) == 0 || string(envelope.Error.ContentFilters) == "null" {
		return nil
	}
	return envelope.Error.ContentFilters
}

// filterReason derives a human-readable reason from the first filter entry
// that actually fired.
func filterReason(filters json.RawMessage) string {
	var entries []contentFilter
	if err := json.Unmarshal(filters, &entries); err != nil {
		return ""
	}
	for _, entry := range entries {
		for name, result := range entry.ContentFilterResults {
			if result.Filtered {
				severity := result.Severity
				if severity == "" {
					severity = "unknown"
				}
				return fmt.Sprintf("Platform content filter: %s detected (severity: %s)", name, severity)
			}
		}
	}
	return ""
}
