// internal/controller/cron_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/queue"
	"github.com/unclebandit/smsleopard-reminders/internal/service"
)

// JobService runs jobs and reports their schedule.
type JobService interface {
	Run(ctx context.Context, job service.JobName) (service.JobResult, error)
	Schedule() service.ScheduleStatus
}

type Previewer interface {
	Preview(ctx context.Context, asOf *time.Time) (service.PreviewResult, error)
}

type CronController struct {
	Jobs    JobService
	Preview Previewer
	Zone    civiltime.Zone
	// Queue, when set, lets POST /cron/trigger?async=true hand the run to the worker
	Queue        queue.Queue
	TriggerTopic string
}

// Routes mounts the job trigger surface under /cron.
func (c *CronController) Routes(r chi.Router) {
	r.Route("/cron", func(r chi.Router) {
		r.Post("/appointment-reminders", c.RunJob(service.JobAppointmentReminders))
		r.Post("/deposit-reminders", c.RunJob(service.JobDepositReminders))
		r.Post("/post-service-reminders", c.RunJob(service.JobPostServiceReminders))
		r.Post("/client-status-refresh", c.RunJob(service.JobClientStatusRefresh))
		r.Post("/trigger", c.Trigger)
		r.Get("/preview", c.PreviewJobs)
		r.Get("/schedule", c.GetSchedule)
	})
}

func (c *CronController) RunJob(job service.JobName) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.run(w, r, job)
	}
}

func (c *CronController) run(w http.ResponseWriter, r *http.Request, job service.JobName) {
	res, err := c.Jobs.Run(r.Context(), job)
	if err != nil {
		var unknown *appErrors.UnknownJobError
		if errors.As(err, &unknown) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log.Printf("⚠️ %s failed: %v\n", job, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Trigger runs the job named in the body. With async=true the job is queued instead.
func (c *CronController) Trigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Job string `json:"job"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	job, err := service.ParseJobName(body.Job)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		if c.Queue == nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Errorf("job queue not configured"))
			return
		}
		topic := c.TriggerTopic
		if topic == "" {
			topic = queue.JobTriggerTopic
		}
		if err := c.Queue.Publish(topic, queue.JobTrigger{Job: string(job)}); err != nil {
			log.Println("⚠️ Failed to queue job trigger:", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"queued": true,
			"job":    job,
		})
		return
	}

	c.run(w, r, job)
}

func (c *CronController) PreviewJobs(w http.ResponseWriter, r *http.Request) {
	asOf, err := ParseReferenceDate(c.Zone, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := c.Preview.Preview(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CronController) GetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Jobs.Schedule())
}

// ParseReferenceDate accepts an RFC 3339 instant or a YYYY-MM-DD civil date,
// which means midnight of that date in zone. Empty input yields nil.
func ParseReferenceDate(zone civiltime.Zone, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	t := zone.Date(d.Year(), d.Month(), d.Day(), 0, 0)
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
