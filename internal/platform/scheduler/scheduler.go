// Package scheduler wraps a cron runner into the recurring-timer primitive
// the job registry builds on. It knows nothing about jobs, ledgers, or the
// store: it fires named functions on cron expressions.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Cron fires registered functions according to standard 5-field cron
// expressions. Entries never fire at registration time; the first invocation
// happens at the next matching instant after Start.
type Cron struct {
	inner  *cron.Cron
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Cron {
	return &Cron{
		inner:  cron.New(),
		logger: logger,
	}
}

// Add registers fn under the given cron expression. The expression is
// validated immediately; an invalid spec is a configuration error.
func (c *Cron) Add(spec string, fn func()) error {
	if _, err := c.inner.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Start begins firing timers in their own goroutine.
func (c *Cron) Start() {
	c.inner.Start()
	c.logger.Info().Int("entries", len(c.inner.Entries())).Msg("scheduler started")
}

// Stop halts the timers and waits for in-flight invocations to finish.
func (c *Cron) Stop() {
	ctx := c.inner.Stop()
	<-ctx.Done()
	c.logger.Info().Msg("scheduler stopped")
}

// EntryCount reports the number of registered recurring entries.
func (c *Cron) EntryCount() int {
	return len(c.inner.Entries())
}
