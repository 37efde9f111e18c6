package jobs

import (
	"context"

	"github.com/google/uuid"
)

// RunRepository is the persistent job-run ledger. Rows are append-only: a run
// is inserted as RUNNING and mutated exactly once to a terminal status.
type RunRepository interface {
	// Start inserts a RUNNING row and returns its id.
	Start(ctx context.Context, jobName string) (uuid.UUID, error)
	// Complete moves a run to COMPLETED with its counters.
	Complete(ctx context.Context, runID uuid.UUID, res Result) error
	// CompleteWithWarnings moves a run to COMPLETED_WITH_WARNINGS, keeping
	// the swallowed error message for operators.
	CompleteWithWarnings(ctx context.Context, runID uuid.UUID, res Result, msg string) error
	// Fail moves a run to FAILED with the handler's error message.
	Fail(ctx context.Context, runID uuid.UUID, msg string) error
	// Skip records an attempt that never ran its handler.
	Skip(ctx context.Context, jobName, reason string) error
	// Recent returns ledger rows newest-first, optionally filtered to one job.
	Recent(ctx context.Context, jobName string, limit, offset int) ([]*Run, error)
	// LastCompleted returns the most recent run that finished in a completed
	// status, or nil when the job has never completed.
	LastCompleted(ctx context.Context, jobName string) (*Run, error)
}
