package insights

import (
	"context"
	"time"
)

// Repository reads analysis inputs from the star schema and stores the
// derived insight rows. All writes upsert by the row's natural key.
type Repository interface {
	DrugUsage(ctx context.Context) ([]DrugUsage, error)
	PatientActivity(ctx context.Context) ([]PatientActivity, error)
	OpenClaims(ctx context.Context, since time.Time) ([]ClaimActivity, error)

	UpsertForecast(ctx context.Context, f *DrugForecast) error
	UpsertRiskScore(ctx context.Context, r *PatientRisk) error
	UpsertFraudFlag(ctx context.Context, f *FraudFlag) error
}
