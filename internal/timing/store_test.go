package timing

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(requestID string, startedAt time.Time) Record {
	return Record{
		RequestID:       requestID,
		StartedAt:       startedAt,
		Events:          []Event{{TimeMs: 1.5, Category: CategoryRequest, Label: "start"}},
		GuardrailPassed: true,
		TotalDurationMs: 42.0,
	}
}

func TestStoreInsertAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	if err := store.Insert(ctx, testRecord("req_b", base.Add(time.Second))); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.Insert(ctx, testRecord("req_a", base)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Ordered by start time, not insertion.
	if records[0].RequestID != "req_a" || records[1].RequestID != "req_b" {
		t.Fatalf("unexpected order: %s, %s", records[0].RequestID, records[1].RequestID)
	}
	if len(records[0].Events) != 1 || records[0].Events[0].Label != "start" {
		t.Fatalf("events not round-tripped: %+v", records[0].Events)
	}
}

func TestStoreInsertReplacesByRequestID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("req_a", time.Now().UTC())
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	rec.GuardrailPassed = false
	rec.GuardrailReason = "policy"
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after replace, got %d", len(records))
	}
	if records[0].GuardrailPassed || records[0].GuardrailReason != "policy" {
		t.Fatalf("expected the replaced record, got %+v", records[0])
	}
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("req_a", time.Now().UTC())); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty store, got %d records", len(records))
	}
}

func TestLogWriteThrough(t *testing.T) {
	store := newTestStore(t)

	logA := NewLog(store)
	logA.Append(testRecord("req_a", time.Now().UTC()))
	logA.Append(testRecord("req_b", time.Now().UTC().Add(time.Second)))

	if latest := logA.Latest(); latest == nil || latest.RequestID != "req_b" {
		t.Fatalf("unexpected latest record: %+v", latest)
	}

	// A fresh log over the same store sees the persisted records.
	logB := NewLog(store)
	if got := len(logB.Records()); got != 2 {
		t.Fatalf("expected 2 records loaded from store, got %d", got)
	}

	logB.Clear()
	if logB.Latest() != nil {
		t.Fatal("expected empty log after clear")
	}
	if got := len(NewLog(store).Records()); got != 0 {
		t.Fatalf("expected store cleared too, got %d records", got)
	}
}

func TestLogMemoryOnly(t *testing.T) {
	l := NewLog(nil)
	if l.Latest() != nil {
		t.Fatal("expected nil latest on an empty log")
	}
	l.Append(testRecord("req_a", time.Now().UTC()))
	if got := len(l.Records()); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}
}
