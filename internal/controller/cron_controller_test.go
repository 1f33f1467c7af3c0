package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	"github.com/unclebandit/smsleopard-reminders/internal/controller"
	"github.com/unclebandit/smsleopard-reminders/internal/queue"
	"github.com/unclebandit/smsleopard-reminders/internal/service"
)

// --- Mocks ---

type mockJobs struct {
	ran []service.JobName
}

func (m *mockJobs) Run(ctx context.Context, job service.JobName) (service.JobResult, error) {
	m.ran = append(m.ran, job)
	return service.JobResult{Success: true, JobName: job, MessagesSent: 2, Errors: []string{}}, nil
}

func (m *mockJobs) Schedule() service.ScheduleStatus {
	return service.ScheduleStatus{Timezone: "Europe/Warsaw", Jobs: []service.ScheduledJob{{Job: service.JobAppointmentReminders}}}
}

type mockPreview struct {
	asOf *time.Time
}

func (m *mockPreview) Preview(ctx context.Context, asOf *time.Time) (service.PreviewResult, error) {
	m.asOf = asOf
	return service.PreviewResult{Timezone: "Europe/Warsaw"}, nil
}

type mockQueue struct {
	published []any
}

func (m *mockQueue) Publish(topic string, payload any) error {
	m.published = append(m.published, payload)
	return nil
}

func (m *mockQueue) Subscribe(topic string, handler func(payload any) error) error { return nil }

func newRouter(jobs *mockJobs, preview *mockPreview, q queue.Queue) http.Handler {
	c := &controller.CronController{Jobs: jobs, Preview: preview, Zone: civiltime.Warsaw, Queue: q}
	r := chi.NewRouter()
	c.Routes(r)
	return r
}

// --- Tests ---

func TestRunJobEndpoints(t *testing.T) {
	jobs := &mockJobs{}
	r := newRouter(jobs, &mockPreview{}, nil)

	for _, path := range []string{
		"/cron/appointment-reminders",
		"/cron/deposit-reminders",
		"/cron/post-service-reminders",
		"/cron/client-status-refresh",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	assert.Equal(t, service.Jobs, jobs.ran)
}

func TestRunJobResponseShape(t *testing.T) {
	r := newRouter(&mockJobs{}, &mockPreview{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron/deposit-reminders", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "deposit-reminders", body["jobName"])
	assert.Equal(t, float64(2), body["messagesSent"])
	assert.Contains(t, body, "executedAt")
	assert.Contains(t, body, "errors")
}

func TestTrigger(t *testing.T) {
	jobs := &mockJobs{}
	r := newRouter(jobs, &mockPreview{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron/trigger", strings.NewReader(`{"job":"post-service-reminders"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []service.JobName{service.JobPostServiceReminders}, jobs.ran)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron/trigger", strings.NewReader(`{"job":"sendAll"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown job: sendAll")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron/trigger", strings.NewReader(`nope`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, jobs.ran, 1)
}

func TestTriggerAsyncQueuesJob(t *testing.T) {
	jobs := &mockJobs{}
	q := &mockQueue{}
	r := newRouter(jobs, &mockPreview{}, q)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron/trigger?async=true", strings.NewReader(`{"job":"deposit-reminders"}`)))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, jobs.ran)
	assert.Equal(t, []any{queue.JobTrigger{Job: "deposit-reminders"}}, q.published)

	noQueue := newRouter(jobs, &mockPreview{}, nil)
	w = httptest.NewRecorder()
	noQueue.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron/trigger?async=1", strings.NewReader(`{"job":"deposit-reminders"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPreviewDateParameter(t *testing.T) {
	preview := &mockPreview{}
	r := newRouter(&mockJobs{}, preview, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron/preview", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, preview.asOf)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron/preview?date=2024-06-12", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, preview.asOf)
	assert.Equal(t, time.Date(2024, time.June, 11, 22, 0, 0, 0, time.UTC), preview.asOf.UTC())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron/preview?date=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseReferenceDate(t *testing.T) {
	got, err := controller.ParseReferenceDate(civiltime.Warsaw, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 14, 23, 0, 0, 0, time.UTC), got.UTC())

	got, err = controller.ParseReferenceDate(civiltime.Warsaw, "2024-06-12T09:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC), got.UTC())

	got, err = controller.ParseReferenceDate(civiltime.Warsaw, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSchedule(t *testing.T) {
	r := newRouter(&mockJobs{}, &mockPreview{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron/schedule", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body service.ScheduleStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Europe/Warsaw", body.Timezone)
	require.Len(t, body.Jobs, 1)
}
