package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
)

// memLedger enforces key uniqueness the way the sms_history constraint does.
type memLedger struct {
	mu       sync.Mutex
	byKey    map[string]*model.DeliveryRecord
	claimErr error
	finds    int
	writes   int
}

var _ repository.DeliveryLedger = (*memLedger)(nil)

func newMemLedger() *memLedger {
	return &memLedger{byKey: map[string]*model.DeliveryRecord{}}
}

func ledgerKey(k model.DeliveryKey) string {
	return fmt.Sprintf("%s|%s|%d", k.Phone, k.TemplateCode, k.ScheduledFor.UTC().UnixNano())
}

func (l *memLedger) FindByKey(ctx context.Context, key model.DeliveryKey) (*model.DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finds++
	rec, ok := l.byKey[ledgerKey(key)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (l *memLedger) Claim(ctx context.Context, rec *model.DeliveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return l.claimErr
	}
	k := ledgerKey(rec.Key())
	if _, ok := l.byKey[k]; ok {
		return appErrors.ErrAlreadyClaimed
	}
	cp := *rec
	cp.Status = model.DeliveryQueued
	l.byKey[k] = &cp
	l.writes++
	return nil
}

func (l *memLedger) finalize(ctx context.Context, rec *model.DeliveryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.byKey[ledgerKey(rec.Key())]
	if !ok || stored.ID != rec.ID || stored.Status != model.DeliveryQueued {
		return appErrors.ErrRecordNotFound
	}
	*stored = *rec
	l.writes++
	return nil
}

func (l *memLedger) MarkSent(ctx context.Context, rec *model.DeliveryRecord) error {
	return l.finalize(ctx, rec)
}

func (l *memLedger) MarkFailed(ctx context.Context, rec *model.DeliveryRecord) error {
	return l.finalize(ctx, rec)
}

func (l *memLedger) put(rec model.DeliveryRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byKey[ledgerKey(rec.Key())] = &rec
}

func (l *memLedger) records() []model.DeliveryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.DeliveryRecord, 0, len(l.byKey))
	for _, r := range l.byKey {
		out = append(out, *r)
	}
	return out
}

func (l *memLedger) countStatus(status model.DeliveryStatus) int {
	n := 0
	for _, r := range l.records() {
		if r.Status == status {
			n++
		}
	}
	return n
}

// fakeSender counts calls; Delay slows each send, Err fails it.
type fakeSender struct {
	calls atomic.Int32
	Delay time.Duration
	Err   error
	// Block waits for ctx cancellation instead of returning
	Block bool
	// OnSend runs inside Send before it returns
	OnSend func()
}

func (s *fakeSender) Send(ctx context.Context, phone, body string) (string, error) {
	n := s.calls.Add(1)
	if s.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.OnSend != nil {
		s.OnSend()
	}
	if s.Err != nil {
		return "", s.Err
	}
	return fmt.Sprintf("msg-%d", n), nil
}

type memAppointments struct {
	items []model.Appointment
	err   error
}

func (m *memAppointments) ListStartingBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Appointment
	for _, a := range m.items {
		if !a.StartsAt.Before(start) && a.StartsAt.Before(end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAppointments) ListDepositsDueBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Appointment
	for _, a := range m.items {
		if a.DepositDueAt == nil || a.DepositStatus != model.DepositUnpaid {
			continue
		}
		if !a.DepositDueAt.Before(start) && a.DepositDueAt.Before(end) {
			out = append(out, a)
		}
	}
	return out, nil
}

type memClients struct {
	n   int
	err error
}

func (m *memClients) Count(ctx context.Context) (int, error) {
	return m.n, m.err
}

type memJobRuns struct {
	mu   sync.Mutex
	runs map[string]model.JobRun
	err  error
}

func newMemJobRuns() *memJobRuns {
	return &memJobRuns{runs: map[string]model.JobRun{}}
}

func (m *memJobRuns) Save(ctx context.Context, run *model.JobRun) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memJobRuns) ListRecent(ctx context.Context, limit int) ([]model.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.JobRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

var errBoom = errors.New("boom")

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
