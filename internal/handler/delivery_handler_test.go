package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/handler"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
)

type mockHistory struct {
	records []model.DeliveryRecord
	limit   int
}

func (m *mockHistory) ListRecent(ctx context.Context, limit int) ([]model.DeliveryRecord, error) {
	m.limit = limit
	return m.records, nil
}

func (m *mockHistory) Stats(ctx context.Context) (model.DeliveryStats, error) {
	var s model.DeliveryStats
	for _, r := range m.records {
		s.Add(r.Status, 1)
	}
	return s, nil
}

func (m *mockHistory) ClearFailed(ctx context.Context, id string) error {
	for i, r := range m.records {
		if r.ID != id {
			continue
		}
		if r.Status != model.DeliveryFailed {
			return appErrors.ErrRecordNotFailed
		}
		m.records = append(m.records[:i], m.records[i+1:]...)
		return nil
	}
	return appErrors.ErrRecordNotFound
}

type mockRuns struct {
	runs []model.JobRun
}

func (m *mockRuns) Save(ctx context.Context, run *model.JobRun) error { return nil }
func (m *mockRuns) ListRecent(ctx context.Context, limit int) ([]model.JobRun, error) {
	return m.runs, nil
}

func newRouter(h *handler.DeliveryHandler) http.Handler {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestListHistory(t *testing.T) {
	history := &mockHistory{records: []model.DeliveryRecord{
		{ID: "a", Phone: "+48600100200", TemplateCode: "SMS_D1", Status: model.DeliverySent},
		{ID: "b", Phone: "+48600100201", TemplateCode: "SMS_D1", Status: model.DeliveryFailed},
	}}
	r := newRouter(handler.NewDeliveryHandler(history, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sms/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, history.limit)

	var body struct {
		History []model.DeliveryRecord `json:"history"`
		Stats   model.DeliveryStats    `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.History, 2)
	assert.Equal(t, model.DeliveryStats{Total: 2, Sent: 1, Failed: 1}, body.Stats)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sms/history?limit=5000", nil))
	assert.Equal(t, 1000, history.limit)
}

func TestClearFailed(t *testing.T) {
	history := &mockHistory{records: []model.DeliveryRecord{
		{ID: "a", Status: model.DeliverySent},
		{ID: "b", Status: model.DeliveryFailed},
	}}
	r := newRouter(handler.NewDeliveryHandler(history, nil))

	tests := []struct {
		id   string
		code int
	}{
		{"a", http.StatusConflict},
		{"b", http.StatusNoContent},
		{"b", http.StatusNotFound},
		{"zzz", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sms/history/"+tt.id, nil))
		assert.Equal(t, tt.code, w.Code, tt.id)
	}
	assert.Len(t, history.records, 1)
}

func TestListRuns(t *testing.T) {
	finished := time.Date(2024, time.June, 10, 7, 0, 5, 0, time.UTC)
	runs := &mockRuns{runs: []model.JobRun{{ID: "r1", JobName: "appointment-reminders", OK: true, FinishedAt: &finished}}}
	r := newRouter(handler.NewDeliveryHandler(&mockHistory{}, runs))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/runs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"job_name":"appointment-reminders"`)

	noRuns := newRouter(handler.NewDeliveryHandler(&mockHistory{}, nil))
	w = httptest.NewRecorder()
	noRuns.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
