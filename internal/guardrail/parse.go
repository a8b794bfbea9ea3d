package guardrail

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hvlab/guardchat/internal/domain"
)

// The guardrail agent replies with a JSON document carrying two recognized
// fields: allowed (bool) and reason (string). parseVerdict tries a strict
// decode first, then a tolerant extraction, and fails closed when neither
// recovers a boolean.
func parseVerdict(raw string) domain.Verdict {
	verdict, err := parseVerdictStrict(raw)
	if err == nil {
		return verdict
	}
	if loose, ok := parseVerdictLoose(raw); ok {
		return loose
	}
	// Nothing recoverable: block for safety.
	return domain.Verdict{
		Allowed: false,
		Reason:  fmt.Sprintf("Guardrail response parse error: %v", err),
	}
}

type verdictReply struct {
	Allowed *bool  `json:"allowed"`
	Reason  string `json:"reason"`
}

// parseVerdictStrict decodes the reply as JSON. An absent allowed field
// defaults to true.
func parseVerdictStrict(raw string) (domain.Verdict, error) {
	var reply verdictReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return domain.Verdict{}, err
	}
	allowed := true
	if reply.Allowed != nil {
		allowed = *reply.Allowed
	}
	return domain.Verdict{Allowed: allowed, Reason: reply.Reason}, nil
}

var (
	allowedRe = regexp.MustCompile(`(?i)"allowed"\s*:\s*(true|false)`)
	reasonRe  = regexp.MustCompile(`"reason"\s*:\s*"([^"]*)"`)
)

// parseVerdictLoose scans malformed replies (e.g. a missing comma) for an
// allowed boolean and a reason string. The second return is false when no
// boolean could be recovered.
func parseVerdictLoose(raw string) (domain.Verdict, bool) {
	match := allowedRe.FindStringSubmatch(raw)
	if match == nil {
		return domain.Verdict{}, false
	}
	allowed := strings.EqualFold(match[1], "true")

	reason := "Malformed JSON response"
	if reasonMatch := reasonRe.FindStringSubmatch(raw); reasonMatch != nil {
		reason = reasonMatch[1]
	}
	return domain.Verdict{Allowed: allowed, Reason: reason}, true
}
