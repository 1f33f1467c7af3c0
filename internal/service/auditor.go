// internal/service/auditor.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
)

// RunAuditor writes one cron_runs row per job execution. Audit failures are
// logged and never fail the job.
type RunAuditor struct {
	Repo  repository.JobRunRepositoryInterface
	Clock civiltime.Clock
}

func (a *RunAuditor) now() time.Time {
	if a != nil && a.Clock != nil {
		return a.Clock().UTC()
	}
	return time.Now().UTC()
}

// Start records that job began; planned is the instant the run was frozen at.
func (a *RunAuditor) Start(ctx context.Context, jobName string, planned time.Time) *model.JobRun {
	run := &model.JobRun{
		ID:        uuid.NewString(),
		JobName:   jobName,
		PlannedAt: planned.UTC(),
		StartedAt: a.now(),
	}
	if a == nil || a.Repo == nil {
		return run
	}
	if err := a.Repo.Save(ctx, run); err != nil {
		log.Printf("⚠️ failed to record start of %s: %v\n", jobName, err)
	}
	return run
}

// Finish completes run with its outcome.
func (a *RunAuditor) Finish(ctx context.Context, run *model.JobRun, ok bool, details string) {
	if run == nil {
		return
	}
	finished := a.now()
	run.FinishedAt = &finished
	run.OK = ok
	run.Details = details
	if a == nil || a.Repo == nil {
		return
	}
	if err := a.Repo.Save(context.WithoutCancel(ctx), run); err != nil {
		log.Printf("⚠️ failed to record finish of %s: %v\n", run.JobName, err)
	}
}
