package warehouse

import (
	"context"
	"time"
)

// Repository copies operational rows into the star schema. Each sync takes
// the window lower bound and returns the number of fact rows actually
// written; rows whose natural key already exists are not counted.
type Repository interface {
	// SyncVisits upserts patient visits created since the bound.
	// Conflict policy: DO NOTHING, since visits are immutable historical
	// events.
	SyncVisits(ctx context.Context, since time.Time) (int, error)
	// SyncDispensing upserts drug dispensing events. DO NOTHING.
	SyncDispensing(ctx context.Context, since time.Time) (int, error)
	// SyncClaims upserts insurance claims. Conflict policy: DO UPDATE on
	// claim_id, overwriting status, approved amount, and approval date,
	// since claims keep changing after submission.
	SyncClaims(ctx context.Context, since time.Time) (int, error)
	// SyncInventoryMovements upserts stock movements. DO NOTHING.
	SyncInventoryMovements(ctx context.Context, since time.Time) (int, error)
	// AggregateDailyMetrics recomputes one daily summary row per active
	// hospital for the given date, overwriting every mutable column on
	// conflict so re-runs never double-count.
	AggregateDailyMetrics(ctx context.Context, day time.Time) (int, error)
}
