package warehouse

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository that reads the operational schema and
// writes the lake star schema with set-based upserts. Postgres reports only
// actually-inserted rows in the command tag, so conflict-skipped rows never
// inflate the counters.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) SyncVisits(ctx context.Context, since time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO lake.fact_patient_visits (
			time_key, hospital_key, patient_key, staff_key,
			visit_type, department, diagnosis_code, treatment_outcome,
			visit_duration_minutes, wait_time_minutes,
			total_cost, insurance_covered, is_emergency
		)
		SELECT
			t.time_key, h.hospital_key, p.patient_key, s.staff_key,
			v.visit_type, v.department, v.diagnosis_code, v.treatment_outcome,
			v.duration_minutes, v.wait_time_minutes,
			v.total_cost, v.insurance_covered, v.is_emergency
		FROM patient_visits v
		JOIN lake.dim_time t ON t.date = DATE(v.visit_date)
		LEFT JOIN lake.dim_hospital h ON h.hospital_id = v.hospital_id
		LEFT JOIN lake.dim_patient p ON p.patient_id = v.patient_id
		LEFT JOIN lake.dim_staff s ON s.staff_id = v.doctor_id
		WHERE v.created_at >= $1
		ON CONFLICT DO NOTHING`,
		since)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) SyncDispensing(ctx context.Context, since time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO lake.fact_drug_dispensing (
			time_key, hospital_key, patient_key, drug_key,
			prescription_id, quantity_dispensed, unit_price,
			total_price, insurance_covered
		)
		SELECT
			t.time_key, h.hospital_key, p.patient_key, d.drug_key,
			pd.prescription_id, pd.quantity, pd.unit_price,
			pd.total_price, pd.insurance_covered
		FROM prescription_dispensing pd
		JOIN lake.dim_time t ON t.date = DATE(pd.dispensed_date)
		LEFT JOIN lake.dim_hospital h ON h.hospital_id = pd.hospital_id
		LEFT JOIN lake.dim_patient p ON p.patient_id = pd.patient_id
		LEFT JOIN lake.dim_drug d ON d.drug_id = pd.drug_id
		WHERE pd.created_at >= $1
		ON CONFLICT DO NOTHING`,
		since)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) SyncClaims(ctx context.Context, since time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO lake.fact_insurance_claims (
			time_key, hospital_key, patient_key, claim_id,
			insurance_provider, claim_type, claim_amount,
			approved_amount, claim_status, submission_date, approval_date
		)
		SELECT
			t.time_key, h.hospital_key, p.patient_key, c.claim_id,
			c.provider_name, c.claim_type, c.claim_amount,
			c.approved_amount, c.status, c.submission_date, c.approval_date
		FROM insurance_claims c
		JOIN lake.dim_time t ON t.date = DATE(c.submission_date)
		LEFT JOIN lake.dim_hospital h ON h.hospital_id = c.hospital_id
		LEFT JOIN lake.dim_patient p ON p.patient_id = c.patient_id
		WHERE c.created_at >= $1 OR c.updated_at >= $1
		ON CONFLICT (claim_id) DO UPDATE
		SET claim_status = EXCLUDED.claim_status,
			approved_amount = EXCLUDED.approved_amount,
			approval_date = EXCLUDED.approval_date`,
		since)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) SyncInventoryMovements(ctx context.Context, since time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO lake.fact_inventory_movements (
			time_key, hospital_key, drug_key, movement_id, movement_type,
			quantity, unit_cost, total_value, supplier, batch_number, expiry_date
		)
		SELECT
			t.time_key, h.hospital_key, d.drug_key, im.id, im.movement_type,
			im.quantity, im.unit_cost, im.total_value, im.supplier_name,
			im.batch_number, im.expiry_date
		FROM inventory_movements im
		JOIN lake.dim_time t ON t.date = DATE(im.movement_date)
		LEFT JOIN lake.dim_hospital h ON h.hospital_id = im.hospital_id
		LEFT JOIN lake.dim_drug d ON d.drug_id = im.drug_id
		WHERE im.created_at >= $1
		ON CONFLICT DO NOTHING`,
		since)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) AggregateDailyMetrics(ctx context.Context, day time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO lake.hospital_daily_metrics (
			metric_date, hospital_id, total_visits, emergency_visits,
			admissions, discharges, bed_occupancy_rate,
			average_wait_time_minutes, total_revenue,
			total_insurance_covered, drugs_dispensed
		)
		SELECT
			$1::date,
			h.hospital_id,
			COUNT(DISTINCT fv.visit_key),
			COUNT(DISTINCT CASE WHEN fv.is_emergency THEN fv.visit_key END),
			COUNT(DISTINCT CASE WHEN fv.visit_type = 'ADMISSION' THEN fv.visit_key END),
			COUNT(DISTINCT CASE WHEN fv.visit_type = 'DISCHARGE' THEN fv.visit_key END),
			COALESCE(h.current_patients::decimal / NULLIF(h.bed_capacity, 0) * 100, 0),
			COALESCE(AVG(fv.wait_time_minutes), 0),
			COALESCE(SUM(fv.total_cost), 0),
			COALESCE(SUM(fv.insurance_covered), 0),
			COUNT(DISTINCT fd.dispensing_key)
		FROM lake.dim_hospital h
		JOIN lake.dim_time t ON t.date = $1::date
		LEFT JOIN lake.fact_patient_visits fv
			ON fv.hospital_key = h.hospital_key AND fv.time_key = t.time_key
		LEFT JOIN lake.fact_drug_dispensing fd
			ON fd.hospital_key = h.hospital_key AND fd.time_key = t.time_key
		WHERE h.is_active = TRUE
		GROUP BY h.hospital_id, h.current_patients, h.bed_capacity
		ON CONFLICT (metric_date, hospital_id) DO UPDATE
		SET total_visits = EXCLUDED.total_visits,
			emergency_visits = EXCLUDED.emergency_visits,
			admissions = EXCLUDED.admissions,
			discharges = EXCLUDED.discharges,
			bed_occupancy_rate = EXCLUDED.bed_occupancy_rate,
			average_wait_time_minutes = EXCLUDED.average_wait_time_minutes,
			total_revenue = EXCLUDED.total_revenue,
			total_insurance_covered = EXCLUDED.total_insurance_covered,
			drugs_dispensed = EXCLUDED.drugs_dispensed,
			computed_at = NOW()`,
		day)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
