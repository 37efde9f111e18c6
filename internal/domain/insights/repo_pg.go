package insights

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository over the lake schema.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) DrugUsage(ctx context.Context) ([]DrugUsage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			h.hospital_id::text,
			d.drug_id::text,
			COALESCE(SUM(fd.quantity_dispensed), 0)::int,
			COALESCE(AVG(fd.quantity_dispensed), 0)::float8
		FROM lake.dim_hospital h
		CROSS JOIN lake.dim_drug d
		LEFT JOIN lake.fact_drug_dispensing fd
			ON fd.hospital_key = h.hospital_key AND fd.drug_key = d.drug_key
		WHERE h.is_active = TRUE
		GROUP BY h.hospital_id, d.drug_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []DrugUsage
	for rows.Next() {
		var u DrugUsage
		if err := rows.Scan(&u.HospitalID, &u.DrugID, &u.TotalDispensed, &u.AvgDailyUsage); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (r *repoPG) PatientActivity(ctx context.Context) ([]PatientActivity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			p.patient_id::text,
			COUNT(fv.visit_key)::int,
			COUNT(CASE WHEN fv.is_emergency THEN 1 END)::int
		FROM lake.dim_patient p
		LEFT JOIN lake.fact_patient_visits fv ON fv.patient_key = p.patient_key
		WHERE p.is_active = TRUE
		GROUP BY p.patient_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []PatientActivity
	for rows.Next() {
		var a PatientActivity
		if err := rows.Scan(&a.PatientID, &a.VisitCount, &a.EmergencyVisits); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (r *repoPG) OpenClaims(ctx context.Context, since time.Time) ([]ClaimActivity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			fc.claim_id::text,
			COALESCE(fc.insurance_provider, ''),
			fc.claim_amount::float8,
			AVG(fc.claim_amount) OVER ()::float8,
			COALESCE(EXTRACT(DAY FROM fc.approval_date - fc.submission_date), 0)::int
		FROM lake.fact_insurance_claims fc
		WHERE fc.claim_status IN ('SUBMITTED', 'PROCESSING')
		AND fc.submission_date >= $1`,
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []ClaimActivity
	for rows.Next() {
		var c ClaimActivity
		if err := rows.Scan(&c.ClaimID, &c.Provider, &c.Amount, &c.AvgAmount, &c.ProcessingDays); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (r *repoPG) UpsertForecast(ctx context.Context, f *DrugForecast) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lake.drug_usage_forecasts (
			analysis_date, hospital_id, drug_id, total_dispensed,
			average_daily_usage, forecast_7_days, forecast_30_days, stockout_risk
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (analysis_date, hospital_id, drug_id) DO UPDATE
		SET total_dispensed = EXCLUDED.total_dispensed,
			average_daily_usage = EXCLUDED.average_daily_usage,
			forecast_7_days = EXCLUDED.forecast_7_days,
			forecast_30_days = EXCLUDED.forecast_30_days,
			stockout_risk = EXCLUDED.stockout_risk`,
		f.AnalysisDate, f.HospitalID, f.DrugID, f.TotalDispensed,
		f.AvgDailyUsage, f.Forecast7Days, f.Forecast30Days, f.StockoutRisk)
	return err
}

func (r *repoPG) UpsertRiskScore(ctx context.Context, s *PatientRisk) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lake.patient_risk_scores (
			patient_id, risk_category, risk_score, risk_level,
			visit_count, last_calculated, next_review_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (patient_id) DO UPDATE
		SET risk_category = EXCLUDED.risk_category,
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			visit_count = EXCLUDED.visit_count,
			last_calculated = EXCLUDED.last_calculated,
			next_review_date = EXCLUDED.next_review_date`,
		s.PatientID, s.Category, s.Score, s.Level,
		s.VisitCount, s.LastCalculated, s.NextReview)
	return err
}

func (r *repoPG) UpsertFraudFlag(ctx context.Context, f *FraudFlag) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lake.claim_fraud_flags (
			claim_id, fraud_risk_score, anomaly_detected, review_required
		)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (claim_id) DO UPDATE
		SET fraud_risk_score = EXCLUDED.fraud_risk_score,
			anomaly_detected = EXCLUDED.anomaly_detected,
			review_required = EXCLUDED.review_required,
			flagged_at = NOW()`,
		f.ClaimID, f.Score, f.Anomaly, f.ReviewRequired)
	return err
}
