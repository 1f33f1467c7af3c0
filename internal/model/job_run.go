// internal/model/job_run.go
package model

import "time"

// JobRun is one row of the cron_runs audit trail.
type JobRun struct {
	ID         string     `db:"id" json:"id"`
	JobName    string     `db:"job_name" json:"job_name"`
	PlannedAt  time.Time  `db:"planned_at" json:"planned_at"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	OK         bool       `db:"ok" json:"ok"`
	Details    string     `db:"details" json:"details"`
}
