package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/smsleopard-reminders/internal/model"
)

type JobRunRepositoryInterface interface {
	// Save inserts the run or updates it when the id already exists.
	Save(ctx context.Context, run *model.JobRun) error
	ListRecent(ctx context.Context, limit int) ([]model.JobRun, error)
}

type JobRunRepository struct {
	DB *sql.DB
}

func (r *JobRunRepository) Save(ctx context.Context, run *model.JobRun) error {
	query := `
        INSERT INTO cron_runs (id, job_name, planned_at, started_at, finished_at, ok, details)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE
        SET finished_at=EXCLUDED.finished_at, ok=EXCLUDED.ok, details=EXCLUDED.details
    `
	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, query,
		run.ID, run.JobName, run.PlannedAt.UTC(), run.StartedAt.UTC(), finishedAt, run.OK, run.Details,
	)
	return err
}

func (r *JobRunRepository) ListRecent(ctx context.Context, limit int) ([]model.JobRun, error) {
	query := `
        SELECT id, job_name, planned_at, started_at, finished_at, ok, details
        FROM cron_runs
        ORDER BY started_at DESC
        LIMIT $1
    `
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.JobRun{}
	for rows.Next() {
		var run model.JobRun
		var finishedAt sql.NullTime
		var details sql.NullString
		if err := rows.Scan(&run.ID, &run.JobName, &run.PlannedAt, &run.StartedAt, &finishedAt, &run.OK, &details); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		run.Details = details.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

var _ JobRunRepositoryInterface = (*JobRunRepository)(nil)
