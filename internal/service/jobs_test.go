package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
	"github.com/unclebandit/smsleopard-reminders/internal/service"
)

type schedulerFixture struct {
	scheduler *service.ReminderScheduler
	ledger    *memLedger
	sender    *fakeSender
	runs      *memJobRuns
	appts     *memAppointments
}

func newSchedulerFixture(items ...model.Appointment) *schedulerFixture {
	f := &schedulerFixture{
		ledger: newMemLedger(),
		sender: &fakeSender{},
		runs:   newMemJobRuns(),
		appts:  &memAppointments{items: items},
	}
	clock := fixedClock(selectorNow)
	f.scheduler = &service.ReminderScheduler{
		Selector: &service.CandidateSelector{
			Appointments: f.appts,
			Zone:         civiltime.Warsaw,
			StudioName:   "Ink",
		},
		Dispatcher:  newDispatcher(f.ledger, f.sender),
		Auditor:     &service.RunAuditor{Repo: f.runs, Clock: clock},
		Clients:     &memClients{n: 42},
		Zone:        civiltime.Warsaw,
		Clock:       clock,
		Concurrency: 4,
	}
	return f
}

func TestAppointmentJobEndToEnd(t *testing.T) {
	f := newSchedulerFixture(visit(1, "600100200", utc(2024, time.June, 12, 12, 0)))

	res, err := f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.MessagesSent)
	assert.Empty(t, res.Errors)
	assert.Equal(t, service.JobAppointmentReminders, res.JobName)
	assert.True(t, res.ExecutedAt.Equal(selectorNow))

	recs := f.ledger.records()
	require.Len(t, recs, 1)
	assert.Equal(t, service.TemplateD2, recs[0].TemplateCode)

	again, err := f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, 0, again.MessagesSent)
	assert.Len(t, f.ledger.records(), 1)
	assert.Equal(t, int32(1), f.sender.calls.Load())
}

func TestJobCollectsCandidateErrors(t *testing.T) {
	f := newSchedulerFixture(
		visit(1, "600100200", utc(2024, time.June, 12, 12, 0)),
		visit(2, "12345", utc(2024, time.June, 12, 13, 0)),
		visit(3, "600100201", utc(2024, time.June, 11, 8, 0)),
	)

	res, err := f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.MessagesSent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], service.DetailInvalidAddress)
	assert.Equal(t, "Sent 2 messages, 1 errors", res.Details)
}

func TestJobTransportFailureIsReportedOnce(t *testing.T) {
	f := newSchedulerFixture(visit(1, "600100200", utc(2024, time.June, 12, 12, 0)))
	f.sender.Err = appErrors.NewTransportFailure("gateway down")

	res, err := f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Len(t, res.Errors, 1)

	// the failed slot is now suppressed and no longer counted as an error
	f.sender.Err = nil
	res, err = f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.MessagesSent)
	assert.Equal(t, int32(1), f.sender.calls.Load())
}

func TestJobSelectionFailureIsCollected(t *testing.T) {
	f := newSchedulerFixture()
	f.appts.err = errBoom

	res, err := f.scheduler.Run(context.Background(), service.JobDepositReminders)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "boom")
}

func TestJobWithNoCandidatesSucceeds(t *testing.T) {
	f := newSchedulerFixture()

	res, err := f.scheduler.Run(context.Background(), service.JobPostServiceReminders)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.MessagesSent)
	assert.NotNil(t, res.Errors)
}

func TestClientStatusRefresh(t *testing.T) {
	f := newSchedulerFixture()

	res, err := f.scheduler.Run(context.Background(), service.JobClientStatusRefresh)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Client status refresh completed for 42 clients", res.Details)
	assert.Empty(t, f.ledger.records())
}

func TestRunByNameRejectsUnknownJob(t *testing.T) {
	f := newSchedulerFixture()

	_, err := f.scheduler.RunByName(context.Background(), "sendEverything")
	var unknown *appErrors.UnknownJobError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "sendEverything", unknown.Name)
	assert.Empty(t, f.runs.runs)

	res, err := f.scheduler.RunByName(context.Background(), "client-status-refresh")
	require.NoError(t, err)
	assert.Equal(t, service.JobClientStatusRefresh, res.JobName)
}

func TestEachRunWritesOneAuditRow(t *testing.T) {
	f := newSchedulerFixture(visit(1, "600100200", utc(2024, time.June, 12, 12, 0)))

	_, err := f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)
	_, err = f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)

	runs, err := f.runs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "appointment-reminders", r.JobName)
		assert.True(t, r.PlannedAt.Equal(selectorNow))
		require.NotNil(t, r.FinishedAt)
		assert.True(t, r.OK)
	}
}

func TestAuditFailureDoesNotFailJob(t *testing.T) {
	f := newSchedulerFixture(visit(1, "600100200", utc(2024, time.June, 12, 12, 0)))
	f.runs.err = errBoom

	res, err := f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.MessagesSent)
}

func TestOverlappingRunsSendOnce(t *testing.T) {
	f := newSchedulerFixture(
		visit(1, "600100200", utc(2024, time.June, 12, 12, 0)),
		visit(2, "600100201", utc(2024, time.June, 11, 8, 0)),
	)
	f.sender.Delay = 30 * time.Millisecond

	done := make(chan service.JobResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := f.scheduler.Run(context.Background(), service.JobAppointmentReminders)
			assert.NoError(t, err)
			done <- res
		}()
	}
	total := (<-done).MessagesSent + (<-done).MessagesSent

	assert.Equal(t, 2, total)
	assert.Equal(t, int32(2), f.sender.calls.Load())
	assert.Equal(t, 2, f.ledger.countStatus(model.DeliverySent))
}

func TestSchedule(t *testing.T) {
	f := newSchedulerFixture()
	status := f.scheduler.ScheduleAt(utc(2024, time.June, 10, 7, 30)) // 09:30 CEST Monday

	assert.Equal(t, "Europe/Warsaw", status.Timezone)
	assert.Equal(t, "09:30", civiltime.Warsaw.FormatClock(status.CurrentTime))
	require.Len(t, status.Jobs, 4)

	next := map[service.JobName]time.Time{}
	for _, j := range status.Jobs {
		next[j.Job] = j.NextRun.UTC()
	}
	assert.Equal(t, utc(2024, time.June, 11, 7, 0), next[service.JobAppointmentReminders])
	assert.Equal(t, utc(2024, time.June, 10, 8, 0), next[service.JobDepositReminders])
	assert.Equal(t, utc(2024, time.June, 10, 9, 0), next[service.JobPostServiceReminders])
	assert.Equal(t, utc(2024, time.June, 17, 5, 0), next[service.JobClientStatusRefresh])
}

func TestParseJobName(t *testing.T) {
	for _, j := range service.Jobs {
		got, err := service.ParseJobName(string(j))
		require.NoError(t, err)
		assert.Equal(t, j, got)
	}
	_, err := service.ParseJobName("")
	assert.Error(t, err)
}
