// Package journal records run outcomes in Postgres so operators can audit
// coverage progress over time without replaying logs.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal state of a sync run.
type RunStatus string

// Run statuses persisted in the status column.
const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusError   RunStatus = "error"
)

// RunEntry is one row in the run journal.
type RunEntry struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Units      int
	Stored     int64
	Present    int64
	Skipped    int64
	Failed     int64
	// Uncovered holds the date gaps the plan could not cover, serialized
	// into a JSONB column.
	Uncovered []DateSpan
	Error     string
}

// DateSpan is one uncovered gap, dates in 2006-01-02 form.
type DateSpan struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Journal persists run entries.
type Journal interface {
	RecordRun(ctx context.Context, entry RunEntry) error
	Close()
}

// NoOp is a Journal that discards everything, used when no database is
// configured.
type NoOp struct{}

// RecordRun does nothing.
func (NoOp) RecordRun(context.Context, RunEntry) error { return nil }

// Close does nothing.
func (NoOp) Close() {}
