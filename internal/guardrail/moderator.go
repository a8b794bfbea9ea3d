// Package guardrail implements the moderation check that can veto a
// generated response.
//
// Failure policy, preserved from the observed system: a transport or service
// error unrelated to a policy violation fails open (the request proceeds),
// while a present-but-unparseable reply fails closed. The asymmetry is
// deliberate-as-observed, not validated.
package guardrail

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/hvlab/guardchat/internal/adapter/foundry"
	"github.com/hvlab/guardchat/internal/domain"
	"github.com/hvlab/guardchat/internal/timing"
	"github.com/hvlab/guardchat/policy"
)

// Moderator runs one moderation check per request against the guardrail
// agent, optionally preceded by a local policy evaluation.
type Moderator struct {
	platform foundry.Platform
	agent    string
	engine   *policy.Engine
	timeout  time.Duration
}

// NewModerator creates a moderator. engine may be nil to skip the local
// policy stage; timeout zero means no caller-imposed timeout.
func NewModerator(platform foundry.Platform, agent string, engine *policy.Engine, timeout time.Duration) *Moderator {
	return &Moderator{
		platform: platform,
		agent:    agent,
		engine:   engine,
		timeout:  timeout,
	}
}

// Check runs the moderation check for one user message. It never returns an
// error: every failure mode degrades to a verdict per the package policy.
func (m *Moderator) Check(ctx context.Context, message, conversationID string, trace *timing.Trace) domain.Verdict {
	trace.Add(timing.CategoryModeration, "start", nil)

	if m.engine != nil {
		decision, reason, err := m.engine.Evaluate(ctx, message)
		if err != nil {
			log.Printf("WARN: [GUARDRAIL] local policy evaluation failed: %v", err)
		} else if decision == "block" {
			trace.Add(timing.CategoryModeration, "done", map[string]any{"result": "failed", "local_policy": true})
			return domain.Verdict{Allowed: false, Reason: "Local policy: " + reason}
		}
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	trace.Add(timing.CategoryModeration, "responses.create.start", nil)
	reply, err := m.platform.CreateResponse(ctx, m.agent, conversationID, message)
	if err != nil {
		trace.Add(timing.CategoryModeration, "error", map[string]any{"error": truncate(err.Error(), 100)})
		return m.verdictFromError(err)
	}
	trace.Add(timing.CategoryModeration, "responses.create.done", nil)

	log.Printf("[GUARDRAIL] Raw response: %s", reply)
	verdict := parseVerdict(reply)

	result := "passed"
	if !verdict.Allowed {
		result = "failed"
	}
	trace.Add(timing.CategoryModeration, "done", map[string]any{"result": result})
	return verdict
}

// Policy-violation markers the platform embeds in error replies.
const (
	markerContentFilter     = "content_filter"
	markerContentMgmtPolicy = "content_management_policy"
)

// verdictFromError maps a failed moderation call to a verdict: denial when
// the platform flagged a content policy violation, fail-open otherwise.
func (m *Moderator) verdictFromError(err error) domain.Verdict {
	errText := err.Error()

	if strings.Contains(errText, markerContentFilter) || strings.Contains(errText, markerContentMgmtPolicy) {
		verdict := domain.Verdict{
			Allowed: false,
			Reason:  "Platform content filter triggered",
		}
		var apiErr *foundry.APIError
		if errors.As(err, &apiErr) {
			if filters := extractContentFilters(apiErr.Body); filters != nil {
				verdict.ContentFilters = filters
				if reason := filterReason(filters); reason != "" {
					verdict.Reason = reason
				}
			}
		}
		log.Printf("[GUARDRAIL] Content filter triggered - blocking request")
		return verdict
	}

	// Service degraded; do not block the user.
	log.Printf("WARN: [GUARDRAIL] check failed, letting request through: %v", err)
	return domain.Verdict{Allowed: true, Reason: "Guardrail error: " + errText}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
