package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hvlab/guardchat/internal/adapter/foundry"
	"github.com/hvlab/guardchat/internal/timing"
)

// fakePlatform records deletes and can be told to fail specific item IDs.
type fakePlatform struct {
	mu       sync.Mutex
	deleted  []string
	failIDs  map[string]bool
	attempts int
}

func (f *fakePlatform) CreateConversation(ctx context.Context) (string, error) {
	return "conv_fake", nil
}

func (f *fakePlatform) CreateResponse(ctx context.Context, agent, conversationID, input string) (string, error) {
	return "", nil
}

func (f *fakePlatform) StreamResponse(ctx context.Context, agent, conversationID, input string, handler foundry.StreamHandler) error {
	return nil
}

func (f *fakePlatform) DeleteConversationItem(ctx context.Context, conversationID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failIDs[itemID] {
		return fmt.Errorf("item %s not found", itemID)
	}
	f.deleted = append(f.deleted, itemID)
	return nil
}

func (f *fakePlatform) AddConversationItem(ctx context.Context, conversationID, role, content string) error {
	return nil
}

func TestCleanupDeletesEachItem(t *testing.T) {
	platform := &fakePlatform{}
	agent := NewCleanupAgent(platform, time.Second)

	agent.Cleanup(context.Background(), []string{"a", "b", "c"}, "conv_gen", timing.NewTrace("req_test"))

	if platform.attempts != 3 {
		t.Fatalf("expected 3 delete attempts, got %d", platform.attempts)
	}
	if len(platform.deleted) != 3 {
		t.Fatalf("expected 3 deletions, got %v", platform.deleted)
	}
}

func TestCleanupContinuesPastFailures(t *testing.T) {
	platform := &fakePlatform{failIDs: map[string]bool{"b": true}}
	agent := NewCleanupAgent(platform, time.Second)

	// Must not panic, return an error, or stop at the failed ID.
	agent.Cleanup(context.Background(), []string{"a", "b", "c"}, "conv_gen", timing.NewTrace("req_test"))

	if platform.attempts != 3 {
		t.Fatalf("expected all 3 deletes attempted, got %d", platform.attempts)
	}
	if len(platform.deleted) != 2 || platform.deleted[0] != "a" || platform.deleted[1] != "c" {
		t.Fatalf("expected [a c] deleted, got %v", platform.deleted)
	}
}
