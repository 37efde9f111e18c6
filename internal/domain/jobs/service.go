package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/analytics/internal/platform/scheduler"
)

// DefaultDependencyWindow is how recently a declared dependency must have
// completed for a dependent job to run. Daily syncs feed a daily aggregation,
// so a day is the natural staleness bound.
const DefaultDependencyWindow = 24 * time.Hour

// Registry owns the fixed set of recurring jobs and the execution wrapper
// every invocation, scheduled or manual, goes through. It is constructed
// once at process start and passed to whatever exposes the operator surface;
// there is no package-level state, so tests run isolated instances.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*JobDefinition
	order     []string
	running   map[string]bool
	runs      RunRepository
	cron      *scheduler.Cron
	logger    zerolog.Logger
	depWindow time.Duration
}

// NewRegistry creates an empty registry. cron may be nil, in which case jobs
// can only be run via Trigger (manual-only mode, also used by tests).
func NewRegistry(runs RunRepository, cron *scheduler.Cron, logger zerolog.Logger) *Registry {
	return &Registry{
		jobs:      make(map[string]*JobDefinition),
		running:   make(map[string]bool),
		runs:      runs,
		cron:      cron,
		logger:    logger,
		depWindow: DefaultDependencyWindow,
	}
}

// Register adds a job definition and arms its recurring timer. Jobs must be
// registered before any job that depends on them, which keeps the dependency
// graph acyclic by construction.
func (r *Registry) Register(def JobDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, def.Name)
	}
	for _, dep := range def.DependsOn {
		if _, ok := r.jobs[dep]; !ok {
			return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, def.Name, dep)
		}
	}

	def.State = StateScheduled
	d := def
	r.jobs[def.Name] = &d
	r.order = append(r.order, def.Name)

	if r.cron != nil && def.Schedule != "" {
		name := def.Name
		if err := r.cron.Add(def.Schedule, func() {
			r.Run(context.Background(), name)
		}); err != nil {
			delete(r.jobs, name)
			r.order = r.order[:len(r.order)-1]
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	r.logger.Info().
		Str("job", def.Name).
		Str("schedule", def.Schedule).
		Strs("depends_on", def.DependsOn).
		Msg("job registered")
	return nil
}

// Trigger force-runs a job by name, bypassing its schedule. It returns
// ErrJobNotFound for unregistered names without writing a ledger row; any
// other failure is absorbed into the run's ledger status. The run executes
// synchronously, matching the reference behavior.
func (r *Registry) Trigger(ctx context.Context, name string) (Outcome, error) {
	r.mu.Lock()
	_, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return r.Run(ctx, name), nil
}

// RunAll triggers every registered job in registration order, sequentially,
// and reports each outcome. A failing job never stops the ones after it.
func (r *Registry) RunAll(ctx context.Context) []Outcome {
	r.mu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.Unlock()

	outcomes := make([]Outcome, 0, len(names))
	for _, name := range names {
		outcomes = append(outcomes, r.Run(ctx, name))
	}
	return outcomes
}

// Definitions returns a snapshot of all registered jobs in registration order.
func (r *Registry) Definitions() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]JobInfo, 0, len(r.order))
	for _, name := range r.order {
		def := r.jobs[name]
		info := JobInfo{
			Name:      def.Name,
			Schedule:  def.Schedule,
			DependsOn: def.DependsOn,
			State:     def.State,
		}
		if !def.LastRun.IsZero() {
			t := def.LastRun
			info.LastRun = &t
		}
		infos = append(infos, info)
	}
	return infos
}

// Status returns recent ledger rows newest-first. A ledger read failure is
// logged and reported as an empty list so the operator surface stays up.
func (r *Registry) Status(ctx context.Context, jobName string, limit, offset int) []*Run {
	runs, err := r.runs.Recent(ctx, jobName, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).Str("job", jobName).Msg("ledger read failed")
		return []*Run{}
	}
	if runs == nil {
		runs = []*Run{}
	}
	return runs
}

// Run is the execution wrapper: uniform ledger bookkeeping around a single
// handler invocation. Handler errors and ledger write errors are recovered
// here and never propagate to the scheduler.
func (r *Registry) Run(ctx context.Context, name string) Outcome {
	r.mu.Lock()
	def, ok := r.jobs[name]
	if !ok {
		r.mu.Unlock()
		return Outcome{JobName: name, Status: StatusSkipped, Message: "not registered"}
	}
	if r.running[name] {
		r.mu.Unlock()
		r.skip(ctx, name, "previous run still in progress")
		return Outcome{JobName: name, Status: StatusSkipped, Message: "previous run still in progress"}
	}
	r.running[name] = true
	def.State = StateRunning
	deps := def.DependsOn
	handler := def.Handler
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running[name] = false
		def.LastRun = time.Now()
		def.State = StateScheduled
		if r.cron == nil || def.Schedule == "" {
			def.State = StateIdle
		}
		r.mu.Unlock()
	}()

	if msg, ok := r.dependenciesMet(ctx, deps); !ok {
		r.skip(ctx, name, msg)
		return Outcome{JobName: name, Status: StatusSkipped, Message: msg}
	}

	return r.execute(ctx, name, handler)
}

// dependenciesMet checks that every declared dependency has completed within
// the dependency window. A ledger error during the check is treated as met.
func (r *Registry) dependenciesMet(ctx context.Context, deps []string) (string, bool) {
	for _, dep := range deps {
		last, err := r.runs.LastCompleted(ctx, dep)
		if err != nil {
			r.logger.Error().Err(err).Str("dependency", dep).Msg("dependency check failed, proceeding")
			continue
		}
		if last == nil {
			return fmt.Sprintf("dependency %s has never completed", dep), false
		}
		if time.Since(last.StartTime) > r.depWindow {
			return fmt.Sprintf("dependency %s has not completed in the last %s", dep, r.depWindow), false
		}
	}
	return "", true
}

func (r *Registry) execute(ctx context.Context, name string, handler Handler) (outcome Outcome) {
	start := time.Now()

	runID, err := r.runs.Start(ctx, name)
	if err != nil {
		// The run is not trackable, but the handler still executes.
		r.logger.Error().Err(err).Str("job", name).Msg("ledger insert failed, running untracked")
		runID = uuid.Nil
	}

	logger := r.logger.With().Str("job", name).Str("run_id", runID.String()).Logger()
	logger.Info().Msg("job starting")

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			logger.Error().Str("panic", msg).Msg("job panicked")
			if err := r.runs.Fail(ctx, runID, msg); err != nil {
				logger.Error().Err(err).Msg("ledger update failed")
			}
			outcome = Outcome{JobName: name, Status: StatusFailed, Message: msg}
		}
	}()

	res, err := handler(ctx, runID)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("job failed")
		if lerr := r.runs.Fail(ctx, runID, err.Error()); lerr != nil {
			logger.Error().Err(lerr).Msg("ledger update failed")
		}
		return Outcome{JobName: name, Status: StatusFailed, Message: err.Error()}
	}

	if res.Warning != nil {
		logger.Warn().Err(res.Warning).Dur("elapsed", elapsed).Msg("job completed with warnings")
		if lerr := r.runs.CompleteWithWarnings(ctx, runID, res, res.Warning.Error()); lerr != nil {
			logger.Error().Err(lerr).Msg("ledger update failed")
		}
		return Outcome{JobName: name, Status: StatusCompletedWithWarnings, Message: res.Warning.Error()}
	}

	logger.Info().
		Int("processed", res.Processed).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Dur("elapsed", elapsed).
		Msg("job completed")
	if lerr := r.runs.Complete(ctx, runID, res); lerr != nil {
		logger.Error().Err(lerr).Msg("ledger update failed")
	}
	return Outcome{JobName: name, Status: StatusCompleted}
}

func (r *Registry) skip(ctx context.Context, name, reason string) {
	r.logger.Warn().Str("job", name).Str("reason", reason).Msg("job skipped")
	if err := r.runs.Skip(ctx, name, reason); err != nil {
		r.logger.Error().Err(err).Str("job", name).Msg("ledger skip write failed")
	}
}
