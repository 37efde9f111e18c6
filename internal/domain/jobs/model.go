package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors surfaced by the registry.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateJob      = errors.New("job name is already registered")
	ErrMissingHandler    = errors.New("job handler is required")
	ErrUnknownDependency = errors.New("job depends on an unregistered job")
)

// RunStatus is the terminal (or in-flight) state of a single execution
// attempt recorded in the ledger.
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	// StatusCompletedWithWarnings marks a run whose handler swallowed a store
	// error and reported zero work. Operators can tell "no new data" apart
	// from "sync is broken" without the failure propagating anywhere.
	StatusCompletedWithWarnings RunStatus = "COMPLETED_WITH_WARNINGS"
	StatusFailed                RunStatus = "FAILED"
	// StatusSkipped marks an attempt that never ran its handler: either the
	// same job was already running, or a declared dependency had not
	// completed recently enough.
	StatusSkipped RunStatus = "SKIPPED"
)

// JobState is the in-memory lifecycle state of a registered job.
type JobState string

const (
	StateScheduled JobState = "scheduled"
	StateRunning   JobState = "running"
	StateIdle      JobState = "idle"
)

// Run is one row of the append-only execution ledger.
type Run struct {
	RunID            uuid.UUID  `json:"run_id"`
	JobName          string     `json:"job_name"`
	Status           RunStatus  `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsInserted  int        `json:"records_inserted"`
	RecordsUpdated   int        `json:"records_updated"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
}

// Result is what a handler reports back on success. Warning carries a store
// error the handler chose to swallow; it degrades the run's terminal status
// without failing it.
type Result struct {
	Processed int
	Inserted  int
	Updated   int
	Warning   error
}

// Handler is a named, idempotent unit of work. runID may be uuid.Nil when the
// ledger insert failed; handlers that audit against the run id must tolerate
// that.
type Handler func(ctx context.Context, runID uuid.UUID) (Result, error)

// JobDefinition describes one recurring job. Definitions are created once at
// process start and mutated only by the execution wrapper.
type JobDefinition struct {
	Name      string
	Schedule  string
	DependsOn []string
	Handler   Handler

	LastRun time.Time
	State   JobState
}

// JobInfo is the registry snapshot exposed to operators.
type JobInfo struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	DependsOn []string   `json:"depends_on,omitempty"`
	State     JobState   `json:"state"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// Outcome summarizes one trigger for the caller.
type Outcome struct {
	JobName string    `json:"job_name"`
	Status  RunStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}
