package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock ledger --

type mockRunRepo struct {
	mu         sync.Mutex
	runs       []*Run
	failStart  bool
	failRecent bool
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{}
}

func (m *mockRunRepo) Start(_ context.Context, jobName string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStart {
		return uuid.Nil, fmt.Errorf("ledger unavailable")
	}
	run := &Run{
		RunID:     uuid.New(),
		JobName:   jobName,
		Status:    StatusRunning,
		StartTime: time.Now(),
	}
	m.runs = append(m.runs, run)
	return run.RunID, nil
}

func (m *mockRunRepo) find(runID uuid.UUID) *Run {
	for _, r := range m.runs {
		if r.RunID == runID {
			return r
		}
	}
	return nil
}

func (m *mockRunRepo) Complete(_ context.Context, runID uuid.UUID, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runID == uuid.Nil {
		return nil
	}
	if r := m.find(runID); r != nil {
		now := time.Now()
		r.Status = StatusCompleted
		r.EndTime = &now
		r.RecordsProcessed = res.Processed
		r.RecordsInserted = res.Inserted
		r.RecordsUpdated = res.Updated
	}
	return nil
}

func (m *mockRunRepo) CompleteWithWarnings(_ context.Context, runID uuid.UUID, res Result, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runID == uuid.Nil {
		return nil
	}
	if r := m.find(runID); r != nil {
		now := time.Now()
		r.Status = StatusCompletedWithWarnings
		r.EndTime = &now
		r.RecordsProcessed = res.Processed
		r.RecordsInserted = res.Inserted
		r.ErrorMessage = &msg
	}
	return nil
}

func (m *mockRunRepo) Fail(_ context.Context, runID uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runID == uuid.Nil {
		return nil
	}
	if r := m.find(runID); r != nil {
		now := time.Now()
		r.Status = StatusFailed
		r.EndTime = &now
		r.ErrorMessage = &msg
	}
	return nil
}

func (m *mockRunRepo) Skip(_ context.Context, jobName, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.runs = append(m.runs, &Run{
		RunID:        uuid.New(),
		JobName:      jobName,
		Status:       StatusSkipped,
		StartTime:    now,
		EndTime:      &now,
		ErrorMessage: &reason,
	})
	return nil
}

func (m *mockRunRepo) Recent(_ context.Context, jobName string, limit, offset int) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecent {
		return nil, fmt.Errorf("ledger unavailable")
	}
	var result []*Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		if jobName != "" && m.runs[i].JobName != jobName {
			continue
		}
		result = append(result, m.runs[i])
	}
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRunRepo) LastCompleted(_ context.Context, jobName string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		r := m.runs[i]
		if r.JobName != jobName {
			continue
		}
		if r.Status == StatusCompleted || r.Status == StatusCompletedWithWarnings {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockRunRepo) byStatus(status RunStatus) []*Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Run
	for _, r := range m.runs {
		if r.Status == status {
			result = append(result, r)
		}
	}
	return result
}

func newTestRegistry(repo RunRepository) *Registry {
	return NewRegistry(repo, nil, zerolog.Nop())
}

func noopHandler(_ context.Context, _ uuid.UUID) (Result, error) {
	return Result{}, nil
}

// -- Registration --

func TestRegister_Duplicate(t *testing.T) {
	r := newTestRegistry(newMockRunRepo())
	if err := r.Register(JobDefinition{Name: "daily_sync", Handler: noopHandler}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register(JobDefinition{Name: "daily_sync", Handler: noopHandler})
	if !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestRegister_MissingHandler(t *testing.T) {
	r := newTestRegistry(newMockRunRepo())
	err := r.Register(JobDefinition{Name: "daily_sync"})
	if !errors.Is(err, ErrMissingHandler) {
		t.Errorf("expected ErrMissingHandler, got %v", err)
	}
}

func TestRegister_UnknownDependency(t *testing.T) {
	r := newTestRegistry(newMockRunRepo())
	err := r.Register(JobDefinition{
		Name:      "aggregate",
		Handler:   noopHandler,
		DependsOn: []string{"sync_visits"},
	})
	if !errors.Is(err, ErrUnknownDependency) {
		t.Errorf("expected ErrUnknownDependency, got %v", err)
	}
}

// -- Trigger --

func TestTrigger_Success(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "daily_sync", Handler: func(_ context.Context, _ uuid.UUID) (Result, error) {
		return Result{Processed: 5, Inserted: 3}, nil
	}})

	outcome, err := r.Trigger(context.Background(), "daily_sync")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", outcome.Status)
	}

	if len(repo.runs) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(repo.runs))
	}
	run := repo.runs[0]
	if run.JobName != "daily_sync" {
		t.Errorf("expected job name daily_sync, got %s", run.JobName)
	}
	if run.Status != StatusCompleted {
		t.Errorf("expected terminal COMPLETED, got %s", run.Status)
	}
	if run.EndTime == nil || run.EndTime.Before(run.StartTime) {
		t.Error("expected endTime >= startTime")
	}
	if run.RecordsProcessed != 5 || run.RecordsInserted != 3 {
		t.Errorf("expected counts 5/3, got %d/%d", run.RecordsProcessed, run.RecordsInserted)
	}
}

func TestTrigger_HandlerError(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "daily_sync", Handler: func(_ context.Context, _ uuid.UUID) (Result, error) {
		return Result{}, errors.New("boom")
	}})

	outcome, err := r.Trigger(context.Background(), "daily_sync")
	if err != nil {
		t.Fatalf("trigger must not raise on handler failure, got %v", err)
	}
	if outcome.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", outcome.Status)
	}

	failed := repo.byStatus(StatusFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed row, got %d", len(failed))
	}
	if failed[0].ErrorMessage == nil || *failed[0].ErrorMessage != "boom" {
		t.Errorf("expected errorMessage boom, got %v", failed[0].ErrorMessage)
	}
	if failed[0].EndTime == nil {
		t.Error("expected endTime to be set on failure")
	}
}

func TestTrigger_NotFound(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)

	_, err := r.Trigger(context.Background(), "nonexistent")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if len(repo.runs) != 0 {
		t.Errorf("expected no ledger rows, got %d", len(repo.runs))
	}
}

func TestTrigger_HandlerWarning(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "daily_sync", Handler: func(_ context.Context, _ uuid.UUID) (Result, error) {
		return Result{Warning: errors.New("fact table missing")}, nil
	}})

	outcome, err := r.Trigger(context.Background(), "daily_sync")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusCompletedWithWarnings {
		t.Errorf("expected COMPLETED_WITH_WARNINGS, got %s", outcome.Status)
	}
	run := repo.runs[0]
	if run.ErrorMessage == nil || *run.ErrorMessage != "fact table missing" {
		t.Errorf("expected warning message recorded, got %v", run.ErrorMessage)
	}
}

func TestTrigger_HandlerPanic(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "daily_sync", Handler: func(_ context.Context, _ uuid.UUID) (Result, error) {
		panic("bad index")
	}})

	outcome, err := r.Trigger(context.Background(), "daily_sync")
	if err != nil {
		t.Fatalf("trigger must not raise on handler panic, got %v", err)
	}
	if outcome.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", outcome.Status)
	}
	failed := repo.byStatus(StatusFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed row, got %d", len(failed))
	}
}

func TestTrigger_LedgerInsertFailure(t *testing.T) {
	repo := newMockRunRepo()
	repo.failStart = true
	r := newTestRegistry(repo)

	executed := false
	var gotRunID uuid.UUID
	r.Register(JobDefinition{Name: "daily_sync", Handler: func(_ context.Context, runID uuid.UUID) (Result, error) {
		executed = true
		gotRunID = runID
		return Result{Processed: 1}, nil
	}})

	outcome, err := r.Trigger(context.Background(), "daily_sync")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !executed {
		t.Error("handler must execute even when the ledger insert fails")
	}
	if gotRunID != uuid.Nil {
		t.Error("expected nil run id for untracked run")
	}
	if outcome.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", outcome.Status)
	}
}

// -- Per-job serialization --

func TestRun_SkipsWhenAlreadyRunning(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)

	release := make(chan struct{})
	started := make(chan struct{})
	r.Register(JobDefinition{Name: "slow_sync", Handler: func(_ context.Context, _ uuid.UUID) (Result, error) {
		close(started)
		<-release
		return Result{}, nil
	}})

	done := make(chan Outcome)
	go func() {
		done <- r.Run(context.Background(), "slow_sync")
	}()
	<-started

	overlap := r.Run(context.Background(), "slow_sync")
	if overlap.Status != StatusSkipped {
		t.Errorf("expected overlapping run to be SKIPPED, got %s", overlap.Status)
	}

	close(release)
	first := <-done
	if first.Status != StatusCompleted {
		t.Errorf("expected first run COMPLETED, got %s", first.Status)
	}

	skipped := repo.byStatus(StatusSkipped)
	if len(skipped) != 1 {
		t.Errorf("expected 1 skipped ledger row, got %d", len(skipped))
	}
}

// -- Dependencies --

func TestRun_DependencyNeverCompleted(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "sync_visits", Handler: noopHandler})
	r.Register(JobDefinition{Name: "aggregate", Handler: noopHandler, DependsOn: []string{"sync_visits"}})

	outcome := r.Run(context.Background(), "aggregate")
	if outcome.Status != StatusSkipped {
		t.Errorf("expected SKIPPED, got %s", outcome.Status)
	}
	skipped := repo.byStatus(StatusSkipped)
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped row, got %d", len(skipped))
	}
}

func TestRun_DependencySatisfied(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "sync_visits", Handler: noopHandler})
	r.Register(JobDefinition{Name: "aggregate", Handler: noopHandler, DependsOn: []string{"sync_visits"}})

	if out := r.Run(context.Background(), "sync_visits"); out.Status != StatusCompleted {
		t.Fatalf("dependency run failed: %s", out.Status)
	}
	outcome := r.Run(context.Background(), "aggregate")
	if outcome.Status != StatusCompleted {
		t.Errorf("expected COMPLETED after dependency ran, got %s", outcome.Status)
	}
}

func TestRun_DependencyStale(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.depWindow = time.Hour
	r.Register(JobDefinition{Name: "sync_visits", Handler: noopHandler})
	r.Register(JobDefinition{Name: "aggregate", Handler: noopHandler, DependsOn: []string{"sync_visits"}})

	r.Run(context.Background(), "sync_visits")
	// Age the completed run beyond the dependency window.
	repo.mu.Lock()
	repo.runs[0].StartTime = time.Now().Add(-2 * time.Hour)
	repo.mu.Unlock()

	outcome := r.Run(context.Background(), "aggregate")
	if outcome.Status != StatusSkipped {
		t.Errorf("expected SKIPPED for stale dependency, got %s", outcome.Status)
	}
}

// -- RunAll / Definitions / Status --

func TestRunAll_ContinuesPastFailures(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "a", Handler: func(_ context.Context, _ uuid.UUID) (Result, error) {
		return Result{}, errors.New("boom")
	}})
	r.Register(JobDefinition{Name: "b", Handler: noopHandler})

	outcomes := r.RunAll(context.Background())
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].JobName != "a" || outcomes[0].Status != StatusFailed {
		t.Errorf("expected a FAILED first, got %+v", outcomes[0])
	}
	if outcomes[1].JobName != "b" || outcomes[1].Status != StatusCompleted {
		t.Errorf("expected b COMPLETED second, got %+v", outcomes[1])
	}
}

func TestDefinitions_Snapshot(t *testing.T) {
	r := newTestRegistry(newMockRunRepo())
	r.Register(JobDefinition{Name: "sync_visits", Schedule: "0 1 * * *", Handler: noopHandler})
	r.Register(JobDefinition{Name: "aggregate", Schedule: "0 4 * * *", Handler: noopHandler, DependsOn: []string{"sync_visits"}})

	infos := r.Definitions()
	if len(infos) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(infos))
	}
	if infos[0].Name != "sync_visits" || infos[1].Name != "aggregate" {
		t.Errorf("expected registration order preserved, got %s, %s", infos[0].Name, infos[1].Name)
	}
	if infos[0].LastRun != nil {
		t.Error("expected no last run before any execution")
	}

	r.Run(context.Background(), "sync_visits")
	infos = r.Definitions()
	if infos[0].LastRun == nil {
		t.Error("expected last run after execution")
	}
}

func TestStatus_EmptyLedger(t *testing.T) {
	r := newTestRegistry(newMockRunRepo())
	runs := r.Status(context.Background(), "", 10, 0)
	if runs == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestStatus_LedgerReadFailure(t *testing.T) {
	repo := newMockRunRepo()
	repo.failRecent = true
	r := newTestRegistry(repo)

	runs := r.Status(context.Background(), "", 10, 0)
	if len(runs) != 0 {
		t.Errorf("expected empty list on ledger failure, got %d rows", len(runs))
	}
}

func TestStatus_FiltersAndOrders(t *testing.T) {
	repo := newMockRunRepo()
	r := newTestRegistry(repo)
	r.Register(JobDefinition{Name: "a", Handler: noopHandler})
	r.Register(JobDefinition{Name: "b", Handler: noopHandler})

	r.Run(context.Background(), "a")
	r.Run(context.Background(), "b")
	r.Run(context.Background(), "a")

	all := r.Status(context.Background(), "", 10, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	onlyA := r.Status(context.Background(), "a", 10, 0)
	if len(onlyA) != 2 {
		t.Fatalf("expected 2 runs for a, got %d", len(onlyA))
	}
	for _, run := range onlyA {
		if run.JobName != "a" {
			t.Errorf("expected only job a, got %s", run.JobName)
		}
	}
}
