package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type runRepoPG struct{ pool *pgxpool.Pool }

// NewRunRepoPG returns a RunRepository backed by lake.etl_job_runs.
func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{pool: pool} }

const runCols = `run_id, job_name, status, start_time, end_time,
	records_processed, records_inserted, records_updated, error_message`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.RunID, &r.JobName, &r.Status, &r.StartTime, &r.EndTime,
		&r.RecordsProcessed, &r.RecordsInserted, &r.RecordsUpdated, &r.ErrorMessage)
	return &r, err
}

func (r *runRepoPG) Start(ctx context.Context, jobName string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lake.etl_job_runs (run_id, job_name, status, start_time)
		VALUES ($1, $2, $3, NOW())`,
		id, jobName, StatusRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert job run for %s: %w", jobName, err)
	}
	return id, nil
}

func (r *runRepoPG) Complete(ctx context.Context, runID uuid.UUID, res Result) error {
	if runID == uuid.Nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE lake.etl_job_runs
		SET status = $2, end_time = NOW(),
			records_processed = $3, records_inserted = $4, records_updated = $5
		WHERE run_id = $1`,
		runID, StatusCompleted, res.Processed, res.Inserted, res.Updated)
	return err
}

func (r *runRepoPG) CompleteWithWarnings(ctx context.Context, runID uuid.UUID, res Result, msg string) error {
	if runID == uuid.Nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE lake.etl_job_runs
		SET status = $2, end_time = NOW(),
			records_processed = $3, records_inserted = $4, records_updated = $5,
			error_message = $6
		WHERE run_id = $1`,
		runID, StatusCompletedWithWarnings, res.Processed, res.Inserted, res.Updated, msg)
	return err
}

func (r *runRepoPG) Fail(ctx context.Context, runID uuid.UUID, msg string) error {
	if runID == uuid.Nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE lake.etl_job_runs
		SET status = $2, end_time = NOW(), error_message = $3
		WHERE run_id = $1`,
		runID, StatusFailed, msg)
	return err
}

func (r *runRepoPG) Skip(ctx context.Context, jobName, reason string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lake.etl_job_runs (run_id, job_name, status, start_time, end_time, error_message)
		VALUES ($1, $2, $3, NOW(), NOW(), $4)`,
		uuid.New(), jobName, StatusSkipped, reason)
	return err
}

func (r *runRepoPG) Recent(ctx context.Context, jobName string, limit, offset int) ([]*Run, error) {
	var rows pgx.Rows
	var err error
	if jobName != "" {
		rows, err = r.pool.Query(ctx, `SELECT `+runCols+` FROM lake.etl_job_runs
			WHERE job_name = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
			jobName, limit, offset)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+runCols+` FROM lake.etl_job_runs
			ORDER BY start_time DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *runRepoPG) LastCompleted(ctx context.Context, jobName string) (*Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runCols+` FROM lake.etl_job_runs
		WHERE job_name = $1 AND status IN ($2, $3)
		ORDER BY start_time DESC LIMIT 1`,
		jobName, StatusCompleted, StatusCompletedWithWarnings))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}
