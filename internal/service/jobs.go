// internal/service/jobs.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/metrics"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
)

type JobName string

const (
	JobAppointmentReminders JobName = "appointment-reminders"
	JobDepositReminders     JobName = "deposit-reminders"
	JobPostServiceReminders JobName = "post-service-reminders"
	JobClientStatusRefresh  JobName = "client-status-refresh"
)

// Jobs lists every job in schedule order.
var Jobs = []JobName{
	JobAppointmentReminders,
	JobDepositReminders,
	JobPostServiceReminders,
	JobClientStatusRefresh,
}

// ParseJobName rejects identifiers outside the known set.
func ParseJobName(s string) (JobName, error) {
	for _, j := range Jobs {
		if string(j) == s {
			return j, nil
		}
	}
	return "", appErrors.NewUnknownJob(s)
}

// JobCadence is a civil wall-clock schedule. Weekly is false for daily jobs.
type JobCadence struct {
	Hour    int
	Minute  int
	Weekly  bool
	Weekday time.Weekday
}

var jobCadence = map[JobName]JobCadence{
	JobAppointmentReminders: {Hour: 9},
	JobDepositReminders:     {Hour: 10},
	JobPostServiceReminders: {Hour: 11},
	JobClientStatusRefresh:  {Hour: 7, Weekly: true, Weekday: time.Monday},
}

var jobCategories = map[JobName][]Category{
	JobAppointmentReminders: {CategoryTwoDaysBefore, CategoryOneDayBefore, CategorySameDay},
	JobDepositReminders:     {CategoryDepositDueSoon, CategoryDepositOverdue},
	JobPostServiceReminders: {CategoryPostService},
}

type JobResult struct {
	Success      bool      `json:"success"`
	JobName      JobName   `json:"jobName"`
	ExecutedAt   time.Time `json:"executedAt"`
	MessagesSent int       `json:"messagesSent"`
	Errors       []string  `json:"errors"`
	Details      string    `json:"details,omitempty"`
}

// ReminderDispatcher is the part of Dispatcher the scheduler needs.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// ReminderScheduler runs jobs. Each run freezes "now" at entry.
type ReminderScheduler struct {
	Selector    *CandidateSelector
	Dispatcher  ReminderDispatcher
	Auditor     *RunAuditor
	Clients     repository.ClientRepositoryInterface
	Zone        civiltime.Zone
	Clock       civiltime.Clock
	Concurrency int
	Metrics     *metrics.Collector
}

type jobHandler func(s *ReminderScheduler, ctx context.Context, job JobName, now time.Time, res *JobResult)

var jobHandlers = map[JobName]jobHandler{
	JobAppointmentReminders: (*ReminderScheduler).runReminders,
	JobDepositReminders:     (*ReminderScheduler).runReminders,
	JobPostServiceReminders: (*ReminderScheduler).runReminders,
	JobClientStatusRefresh:  (*ReminderScheduler).runClientRefresh,
}

// Run executes job against the current instant.
func (s *ReminderScheduler) Run(ctx context.Context, job JobName) (JobResult, error) {
	return s.RunAt(ctx, job, s.Zone.Now(s.Clock))
}

// RunByName parses name and runs the matching job.
func (s *ReminderScheduler) RunByName(ctx context.Context, name string) (JobResult, error) {
	job, err := ParseJobName(name)
	if err != nil {
		return JobResult{}, err
	}
	return s.Run(ctx, job)
}

// RunAt executes job with now as the frozen reference instant. Per-candidate
// failures are collected in the result; only an unknown job is returned as error.
func (s *ReminderScheduler) RunAt(ctx context.Context, job JobName, now time.Time) (JobResult, error) {
	handler, ok := jobHandlers[job]
	if !ok {
		return JobResult{}, appErrors.NewUnknownJob(string(job))
	}

	log.Printf("⏰ Running %s at %s\n", job, s.Zone.In(now).Format(time.RFC3339))
	started := time.Now()
	run := s.Auditor.Start(ctx, string(job), now)

	res := JobResult{JobName: job, ExecutedAt: now, Errors: []string{}}
	handler(s, ctx, job, now, &res)

	res.Success = len(res.Errors) == 0
	if res.Details == "" {
		res.Details = fmt.Sprintf("Sent %d messages, %d errors", res.MessagesSent, len(res.Errors))
	}
	s.Auditor.Finish(ctx, run, res.Success, res.Details)
	s.Metrics.RecordJobRun(string(job), res.Success, res.MessagesSent, time.Since(started), time.Now())

	if res.Success {
		log.Printf("✅ %s finished: %s\n", job, res.Details)
	} else {
		log.Printf("⚠️ %s finished with errors: %s\n", job, res.Details)
	}
	return res, nil
}

func (s *ReminderScheduler) runReminders(ctx context.Context, job JobName, now time.Time, res *JobResult) {
	var reminders []Reminder
	for _, category := range jobCategories[job] {
		found, err := s.Selector.Reminders(ctx, category, now)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", category, err))
			continue
		}
		reminders = append(reminders, found...)
	}
	if len(reminders) == 0 {
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Concurrency, 1))

	for _, r := range reminders {
		g.Go(func() error {
			result, err := s.Dispatcher.Dispatch(gctx, r.Request)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Errors = append(res.Errors, candidateError(r, err))
			case result.Success && !result.AlreadySent:
				res.MessagesSent++
			case !result.Success && !result.AlreadySent:
				res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %s", r.Category, r.Request.Phone, result.Error))
			}
			// candidate failures never cancel the batch
			return nil
		})
	}
	_ = g.Wait()
}

func candidateError(r Reminder, err error) string {
	var invalid *appErrors.InvalidAddressError
	if errors.As(err, &invalid) {
		return fmt.Sprintf("%s appointment %d: %s", r.Category, r.Appointment.ID, DetailInvalidAddress)
	}
	return fmt.Sprintf("%s %s: %v", r.Category, r.Request.Phone, err)
}

func (s *ReminderScheduler) runClientRefresh(ctx context.Context, _ JobName, _ time.Time, res *JobResult) {
	if s.Clients == nil {
		res.Errors = append(res.Errors, "client store not configured")
		return
	}
	count, err := s.Clients.Count(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("client status refresh: %v", err))
		return
	}
	res.Details = fmt.Sprintf("Client status refresh completed for %d clients", count)
}

// NextRunTime is the next hour:minute civil time, today if still ahead, else tomorrow.
func (s *ReminderScheduler) NextRunTime(now time.Time, hour, minute int) time.Time {
	return s.Zone.NextDaily(now, hour, minute)
}

// NextWeeklyRunTime is the next weekday at hour:minute civil time.
func (s *ReminderScheduler) NextWeeklyRunTime(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	return s.Zone.NextWeekly(now, weekday, hour, minute)
}

type ScheduledJob struct {
	Job     JobName   `json:"job"`
	NextRun time.Time `json:"nextRun"`
	Cadence string    `json:"cadence"`
}

type ScheduleStatus struct {
	Jobs        []ScheduledJob `json:"jobs"`
	Timezone    string         `json:"timezone"`
	CurrentTime time.Time      `json:"currentTime"`
}

// Schedule reports the next run of every job.
func (s *ReminderScheduler) Schedule() ScheduleStatus {
	return s.ScheduleAt(s.Zone.Now(s.Clock))
}

func (s *ReminderScheduler) ScheduleAt(now time.Time) ScheduleStatus {
	status := ScheduleStatus{
		Timezone:    s.Zone.Name,
		CurrentTime: s.Zone.In(now),
		Jobs:        make([]ScheduledJob, 0, len(Jobs)),
	}
	for _, job := range Jobs {
		c := jobCadence[job]
		entry := ScheduledJob{Job: job}
		if c.Weekly {
			entry.NextRun = s.NextWeeklyRunTime(now, c.Weekday, c.Hour, c.Minute)
			entry.Cadence = fmt.Sprintf("weekly %s %02d:%02d", c.Weekday, c.Hour, c.Minute)
		} else {
			entry.NextRun = s.NextRunTime(now, c.Hour, c.Minute)
			entry.Cadence = fmt.Sprintf("daily %02d:%02d", c.Hour, c.Minute)
		}
		status.Jobs = append(status.Jobs, entry)
	}
	return status
}
