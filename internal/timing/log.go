package timing

import (
	"context"
	"log"
	"sync"
)

// Log is the process-wide ordered collection of completed traces. Records are
// kept in memory for the diagnostic endpoints and written through to the
// store when one is attached; store failures are logged, never fatal.
type Log struct {
	mu      sync.RWMutex
	records []Record
	store   *Store
}

// NewLog creates a log, loading previously persisted records when a store is
// attached. A nil store keeps the log memory-only.
func NewLog(store *Store) *Log {
	l := &Log{store: store}
	if store != nil {
		records, err := store.List(context.Background())
		if err != nil {
			log.Printf("WARN: failed to load timing records: %v", err)
		} else {
			l.records = records
		}
	}
	return l
}

// Append merges one completed trace record into the log.
func (l *Log) Append(rec Record) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Insert(context.Background(), rec); err != nil {
			log.Printf("WARN: failed to persist timing record %s: %v", rec.RequestID, err)
		}
	}
}

// Records returns all records in insertion order.
func (l *Log) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Latest returns the most recent record, or nil when the log is empty.
func (l *Log) Latest() *Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.records) == 0 {
		return nil
	}
	rec := l.records[len(l.records)-1]
	return &rec
}

// Clear drops all records from memory and the store.
func (l *Log) Clear() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Clear(context.Background()); err != nil {
			log.Printf("WARN: failed to clear timing store: %v", err)
		}
	}
}
