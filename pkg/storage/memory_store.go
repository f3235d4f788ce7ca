package storage

import (
	"context"
	"sync"
)

// defaultCapacity bounds the in-memory history; the oldest records are
// evicted first.
const defaultCapacity = 1024

// MemoryHistoryStore is an in-memory implementation of HistoryStore.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	records  []RunRecord
	capacity int
}

// NewMemoryHistoryStore creates a bounded in-memory history. Non-positive
// capacity selects the default.
func NewMemoryHistoryStore(capacity int) *MemoryHistoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryHistoryStore{capacity: capacity}
}

// Append stores a run record, evicting the oldest when full.
func (s *MemoryHistoryStore) Append(_ context.Context, record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	if len(s.records) > s.capacity {
		s.records = s.records[len(s.records)-s.capacity:]
	}
	return nil
}

// Get retrieves a run record by ID.
func (s *MemoryHistoryStore) Get(_ context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID == id {
			return s.records[i], nil
		}
	}
	return RunRecord{}, ErrNotFound
}

// Recent returns up to limit records, newest first.
func (s *MemoryHistoryStore) Recent(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (s *MemoryHistoryStore) Close() error {
	return nil
}
