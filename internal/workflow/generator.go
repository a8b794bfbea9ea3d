// Package workflow streams generated content from the workflow agent.
package workflow

import (
	"context"
	"time"

	"github.com/hvlab/guardchat/internal/adapter/foundry"
	"github.com/hvlab/guardchat/internal/domain"
	"github.com/hvlab/guardchat/internal/timing"
)

// Generator opens one live generation stream per request. Events are pushed
// onto the returned channel in strict arrival order; the channel is closed
// after the terminal Completed event, unconditionally, so consumers detect
// stream closure without inspecting event types.
type Generator struct {
	platform foundry.Platform
	agent    string
	timeout  time.Duration
}

// NewGenerator creates a generator. timeout zero means no caller-imposed
// timeout on the streamed call.
func NewGenerator(platform foundry.Platform, agent string, timeout time.Duration) *Generator {
	return &Generator{
		platform: platform,
		agent:    agent,
		timeout:  timeout,
	}
}

// Stream starts the generation worker and returns its event channel. A
// transport error mid-stream is synthesized into visible "Error: ..."
// content inside the normal event shape, never a fatal abort.
func (g *Generator) Stream(ctx context.Context, message, conversationID string, trace *timing.Trace) <-chan domain.GenerationEvent {
	events := make(chan domain.GenerationEvent, 64)
	go g.run(ctx, message, conversationID, trace, events)
	return events
}

func (g *Generator) run(ctx context.Context, message, conversationID string, trace *timing.Trace, events chan<- domain.GenerationEvent) {
	defer close(events)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	trace.Add(timing.CategoryGeneration, "start", nil)

	var (
		started  bool
		fullText string
		itemIDs  []string
		seen     = map[string]bool{}
	)

	// emit blocks until the consumer takes the event or the request scope
	// ends, so an abandoned consumer cannot strand this worker.
	emit := func(ev domain.GenerationEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	captureItem := func(item *foundry.StreamItem) {
		if item == nil || item.ID == "" || seen[item.ID] {
			return
		}
		seen[item.ID] = true
		itemIDs = append(itemIDs, item.ID)
	}

	err := g.platform.StreamResponse(ctx, g.agent, conversationID, message, func(ev *foundry.StreamEvent) error {
		captureItem(ev.Item)

		switch ev.Type {
		case foundry.EventOutputTextDelta:
			if !started {
				if !emit(domain.GenerationEvent{Type: domain.GenerationStarted}) {
					return ctx.Err()
				}
				started = true
			}
			fullText += ev.Delta
			if !emit(domain.GenerationEvent{
				Type:     domain.GenerationChunk,
				Content:  ev.Delta,
				ByteSize: len(ev.Delta),
			}) {
				return ctx.Err()
			}
			trace.Add(timing.CategoryGeneration, ev.Type, map[string]any{"size": len(ev.Delta)})

		case foundry.EventOutputItemAdded:
			extra := map[string]any{}
			if ev.Item != nil {
				extra["item_type"] = ev.Item.Type
				if ev.Item.Type == "workflow_action" && ev.Item.ActionID != "" {
					extra["action_id"] = ev.Item.ActionID
					if !emit(domain.GenerationEvent{
						Type:     domain.GenerationActionStarted,
						ActionID: ev.Item.ActionID,
					}) {
						return ctx.Err()
					}
				}
			}
			trace.Add(timing.CategoryGeneration, ev.Type, extra)

		case foundry.EventOutputItemDone:
			extra := map[string]any{}
			if ev.Item != nil {
				extra["item_type"] = ev.Item.Type
				if ev.Item.Status != "" {
					extra["status"] = ev.Item.Status
				}
				if ev.Item.Type == "workflow_action" && ev.Item.ActionID != "" {
					if !emit(domain.GenerationEvent{
						Type:     domain.GenerationActionDone,
						ActionID: ev.Item.ActionID,
						Status:   ev.Item.Status,
					}) {
						return ctx.Err()
					}
				}
			}
			trace.Add(timing.CategoryGeneration, ev.Type, extra)

		default:
			trace.Add(timing.CategoryGeneration, ev.Type, nil)
		}
		return nil
	})

	if err != nil {
		trace.Add(timing.CategoryGeneration, "error", map[string]any{"error": truncate(err.Error(), 100)})
		errText := "Error: " + err.Error()
		if !started {
			if !emit(domain.GenerationEvent{Type: domain.GenerationStarted}) {
				return
			}
		}
		if !emit(domain.GenerationEvent{
			Type:     domain.GenerationChunk,
			Content:  errText,
			ByteSize: len(errText),
		}) {
			return
		}
		if !emit(domain.GenerationEvent{Type: domain.GenerationEnded}) {
			return
		}
		emit(domain.GenerationEvent{Type: domain.GenerationCompleted, FullText: errText})
		return
	}

	trace.Add(timing.CategoryGeneration, "done", nil)

	if !started {
		if !emit(domain.GenerationEvent{Type: domain.GenerationStarted}) {
			return
		}
	}
	if !emit(domain.GenerationEvent{Type: domain.GenerationEnded}) {
		return
	}
	emit(domain.GenerationEvent{
		Type:     domain.GenerationCompleted,
		FullText: fullText,
		ItemIDs:  itemIDs,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
