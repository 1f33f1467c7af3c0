package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/service"
)

// JobTriggerTopic is the default topic for manual and scheduled job triggers.
const JobTriggerTopic = "reminder_jobs"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	// MaxRetries bounds redelivery of a failed payload
	MaxRetries int
	// Backoff is multiplied by the attempt number between retries
	Backoff time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		MaxRetries: q.MaxRetries,
	}

	for _, handler := range handlers {
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Printf("Job failed (attempt %d/%d): %+v, error: %v\n", job.RetryCount, job.MaxRetries, job.Payload, err)

		if job.RetryCount > job.MaxRetries {
			log.Printf("Job permanently failed after %d attempts: %+v\n", job.MaxRetries, job.Payload)
			return
		}

		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// JobTrigger is the message that asks for one job run.
type JobTrigger struct {
	Job string `json:"job"`
}

// JobRunner runs a job by its identifier.
type JobRunner interface {
	RunByName(ctx context.Context, name string) (service.JobResult, error)
}

// DecodeJobTrigger accepts a JobTrigger, a bare job name or a JSON body.
func DecodeJobTrigger(payload any) (JobTrigger, error) {
	switch p := payload.(type) {
	case JobTrigger:
		return p, nil
	case *JobTrigger:
		if p == nil {
			return JobTrigger{}, fmt.Errorf("nil job trigger")
		}
		return *p, nil
	case string:
		return JobTrigger{Job: p}, nil
	case []byte:
		var t JobTrigger
		if err := json.Unmarshal(p, &t); err != nil {
			return JobTrigger{}, fmt.Errorf("invalid job trigger: %w", err)
		}
		return t, nil
	}
	return JobTrigger{}, fmt.Errorf("unsupported job trigger payload %T", payload)
}

// HandleJobTrigger runs the job named in payload. Malformed payloads and
// unknown jobs are logged and dropped; retrying them cannot succeed.
func HandleJobTrigger(ctx context.Context, runner JobRunner, payload any) error {
	trigger, err := DecodeJobTrigger(payload)
	if err != nil {
		log.Println("⚠️ Dropping job trigger:", err)
		return nil
	}

	log.Println("📩 Processing job trigger:", trigger.Job)
	res, err := runner.RunByName(ctx, trigger.Job)
	if err != nil {
		var unknown *appErrors.UnknownJobError
		if errors.As(err, &unknown) {
			log.Println("⚠️ Dropping trigger for unknown job:", unknown.Name)
			return nil
		}
		return err
	}

	log.Printf("✅ Job %s processed: %d sent, %d errors\n", res.JobName, res.MessagesSent, len(res.Errors))
	return nil
}

func StartJobTriggerSubscriber(ctx context.Context, q Queue, topic string, runner JobRunner) {
	if topic == "" {
		topic = JobTriggerTopic
	}
	go func() {
		err := q.Subscribe(topic, func(payload any) error {
			return HandleJobTrigger(ctx, runner, payload)
		})

		if err != nil {
			log.Println("⚠️ Failed to start subscriber for", topic+":", err)
		}
	}()
}
