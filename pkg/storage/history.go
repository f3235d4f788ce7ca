// Package storage keeps a record of import runs for reporting. Sync mode
// uses it to summarize what changed across a directory of policies.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunRecord captures the outcome of a single import invocation.
type RunRecord struct {
	ID        string
	Policy    string
	Partition string
	Action    string
	Changed   bool
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// HistoryStore exposes persistence operations for run records.
type HistoryStore interface {
	Append(ctx context.Context, record RunRecord) error
	Get(ctx context.Context, id string) (RunRecord, error)
	Recent(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
