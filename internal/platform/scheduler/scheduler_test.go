package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestCron() *Cron {
	return New(zerolog.Nop())
}

func TestAdd_ValidExpression(t *testing.T) {
	c := newTestCron()
	if err := c.Add("0 1 * * *", func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.EntryCount() != 1 {
		t.Errorf("expected 1 entry, got %d", c.EntryCount())
	}
}

func TestAdd_InvalidExpression(t *testing.T) {
	c := newTestCron()
	if err := c.Add("not a cron spec", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if c.EntryCount() != 0 {
		t.Errorf("expected 0 entries after failed add, got %d", c.EntryCount())
	}
}

func TestAdd_DoesNotFireImmediately(t *testing.T) {
	c := newTestCron()
	fired := false
	if err := c.Add("0 4 * * *", func() { fired = true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Start()
	c.Stop()
	if fired {
		t.Error("entry fired at registration instead of at its scheduled instant")
	}
}

func TestStartStop(t *testing.T) {
	c := newTestCron()
	if err := c.Add("0 * * * *", func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Start()
	c.Stop() // must drain without deadlocking
}
