package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/analytics/internal/domain/jobs"
)

// Job names owned by this package.
const (
	JobForecastDemand = "forecast_drug_demand"
	JobScoreRisk      = "score_patient_risk"
	JobDetectFraud    = "detect_claim_fraud"
)

// fraudLookback bounds how far back open claims are scanned for fraud
// signals, matching the weekly review cadence.
const fraudLookback = 7 * 24 * time.Hour

// Service provides the analytics job handlers: thin consumers of the fact
// and aggregate tables that forward each row to the Predictor and store the
// forecast-shaped answer. Store errors degrade to warnings like the sync
// handlers; per-row upsert errors fail the run since partial insight tables
// are worse than stale ones.
type Service struct {
	repo      Repository
	predictor Predictor
	logger    zerolog.Logger
}

func NewService(repo Repository, predictor Predictor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, predictor: predictor, logger: logger}
}

// ForecastDrugDemand recomputes the per-(hospital, drug) demand forecast.
func (s *Service) ForecastDrugDemand(ctx context.Context, _ uuid.UUID) (jobs.Result, error) {
	usages, err := s.repo.DrugUsage(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("job", JobForecastDemand).Msg("usage read failed")
		return jobs.Result{Warning: fmt.Errorf("%s: %w", JobForecastDemand, err)}, nil
	}

	today := time.Now().Truncate(24 * time.Hour)
	inserted := 0
	for i := range usages {
		u := usages[i]
		fc := s.predictor.PredictDrugDemand(u)
		row := &DrugForecast{
			AnalysisDate:   today,
			HospitalID:     u.HospitalID,
			DrugID:         u.DrugID,
			TotalDispensed: u.TotalDispensed,
			AvgDailyUsage:  u.AvgDailyUsage,
			Forecast7Days:  fc.Forecast7Days,
			Forecast30Days: fc.Forecast30Days,
			StockoutRisk:   fc.StockoutRisk,
		}
		if err := s.repo.UpsertForecast(ctx, row); err != nil {
			return jobs.Result{Processed: len(usages), Inserted: inserted},
				fmt.Errorf("upsert forecast for %s/%s: %w", u.HospitalID, u.DrugID, err)
		}
		inserted++
	}

	return jobs.Result{Processed: len(usages), Inserted: inserted}, nil
}

// ScorePatientRisk recomputes the readmission risk score for every active
// patient, overwriting the previous score.
func (s *Service) ScorePatientRisk(ctx context.Context, _ uuid.UUID) (jobs.Result, error) {
	activities, err := s.repo.PatientActivity(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("job", JobScoreRisk).Msg("activity read failed")
		return jobs.Result{Warning: fmt.Errorf("%s: %w", JobScoreRisk, err)}, nil
	}

	now := time.Now()
	inserted := 0
	for i := range activities {
		a := activities[i]
		score := s.predictor.ScorePatientRisk(a)
		row := &PatientRisk{
			PatientID:      a.PatientID,
			Category:       "READMISSION",
			Score:          score.Score,
			Level:          score.Level,
			VisitCount:     a.VisitCount,
			LastCalculated: now,
			NextReview:     now.AddDate(0, 0, 30),
		}
		if err := s.repo.UpsertRiskScore(ctx, row); err != nil {
			return jobs.Result{Processed: len(activities), Inserted: inserted},
				fmt.Errorf("upsert risk score for %s: %w", a.PatientID, err)
		}
		inserted++
	}

	return jobs.Result{Processed: len(activities), Inserted: inserted}, nil
}

// DetectClaimFraud re-assesses open claims from the last week.
func (s *Service) DetectClaimFraud(ctx context.Context, _ uuid.UUID) (jobs.Result, error) {
	claims, err := s.repo.OpenClaims(ctx, time.Now().Add(-fraudLookback))
	if err != nil {
		s.logger.Error().Err(err).Str("job", JobDetectFraud).Msg("claims read failed")
		return jobs.Result{Warning: fmt.Errorf("%s: %w", JobDetectFraud, err)}, nil
	}

	inserted := 0
	for i := range claims {
		c := claims[i]
		assessment := s.predictor.DetectFraud(c)
		row := &FraudFlag{
			ClaimID:        c.ClaimID,
			Score:          assessment.Score,
			Anomaly:        assessment.Anomaly,
			ReviewRequired: assessment.ReviewRequired,
		}
		if err := s.repo.UpsertFraudFlag(ctx, row); err != nil {
			return jobs.Result{Processed: len(claims), Inserted: inserted},
				fmt.Errorf("upsert fraud flag for %s: %w", c.ClaimID, err)
		}
		inserted++
	}

	return jobs.Result{Processed: len(claims), Inserted: inserted}, nil
}
