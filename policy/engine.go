// Package policy provides the local rego policy engine that can block a
// message before the remote guardrail agent is consulted.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA message-policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.message_policy.decision"),
		rego.Module("message_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the message policy.
// Returns: decision (allow or block), reason (optional), error.
func (e *Engine) Evaluate(ctx context.Context, message string) (string, string, error) {
	input := map[string]interface{}{"message": message}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so this should not happen.
		return "allow", "default", nil
	}

	val := results[0].Expressions[0].Value
	obj, ok := val.(map[string]interface{})
	if !ok {
		return "allow", "unexpected return type", nil
	}

	decision, _ := obj["decision"].(string)
	reason, _ := obj["reason"].(string)
	if decision == "" {
		decision = "allow"
	}
	return decision, reason, nil
}

// DefaultPolicy is the default message policy content.
const DefaultPolicy = `
package message_policy

import rego.v1

default decision := {"decision": "allow", "reason": ""}

decision := {"decision": "block", "reason": "instructions for building weapons"} if {
	contains(lower(input.message), "how to build a bomb")
}

decision := {"decision": "block", "reason": "credential harvesting request"} if {
	contains(lower(input.message), "steal passwords")
}
`
