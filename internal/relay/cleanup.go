package relay

import (
	"context"
	"log"
	"time"

	"github.com/hvlab/guardchat/internal/adapter/foundry"
	"github.com/hvlab/guardchat/internal/timing"
)

// CleanupAgent deletes already-emitted conversation items after a denial.
// Every delete is independent and best effort: a failure is logged with the
// item ID and never aborts the remaining deletes or the request.
type CleanupAgent struct {
	platform foundry.Platform
	timeout  time.Duration
}

// NewCleanupAgent creates a cleanup agent. timeout zero means no bound on
// the whole cleanup pass.
func NewCleanupAgent(platform foundry.Platform, timeout time.Duration) *CleanupAgent {
	return &CleanupAgent{platform: platform, timeout: timeout}
}

// Ensure CleanupAgent implements the Cleaner interface.
var _ Cleaner = (*CleanupAgent)(nil)

// Cleanup deletes each item from the conversation, one call per ID.
func (a *CleanupAgent) Cleanup(ctx context.Context, ids []string, conversationID string, trace *timing.Trace) {
	trace.Add(timing.CategoryRequest, "cleanup.start", map[string]any{"message_count": len(ids)})
	log.Printf("[CLEANUP] Deleting %d items from conversation %s", len(ids), conversationID)

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	for _, id := range ids {
		trace.Add(timing.CategoryRequest, "cleanup.delete", map[string]any{"message_id": id})
		if err := a.platform.DeleteConversationItem(ctx, conversationID, id); err != nil {
			log.Printf("ERROR: [CLEANUP] failed to delete item %s: %v", id, err)
			trace.Add(timing.CategoryRequest, "cleanup.delete.error", map[string]any{
				"message_id": id,
				"error":      truncate(err.Error(), 100),
			})
			continue
		}
		trace.Add(timing.CategoryRequest, "cleanup.delete.success", map[string]any{"message_id": id})
	}

	trace.Add(timing.CategoryRequest, "cleanup.done", nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
