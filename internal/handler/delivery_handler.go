// internal/handler/delivery_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// DeliveryHandler exposes the SMS ledger and the job-run audit trail
type DeliveryHandler struct {
	Deliveries repository.DeliveryHistory
	Runs       repository.JobRunRepositoryInterface
}

func NewDeliveryHandler(deliveries repository.DeliveryHistory, runs repository.JobRunRepositoryInterface) *DeliveryHandler {
	return &DeliveryHandler{
		Deliveries: deliveries,
		Runs:       runs,
	}
}

func (h *DeliveryHandler) Routes(r chi.Router) {
	r.Get("/sms/history", h.ListHistoryHandler)
	r.Delete("/sms/history/{id}", h.ClearFailedHandler)
	r.Get("/jobs/runs", h.ListRunsHandler)
}

// ListHistoryHandler returns the latest ledger rows and the status counts
func (h *DeliveryHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	records, err := h.Deliveries.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list sms history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	stats, err := h.Deliveries.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to count sms history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.DeliveryRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"history": records,
		"stats":   stats,
	})
}

// ClearFailedHandler deletes a failed ledger row so its slot can be dispatched again
func (h *DeliveryHandler) ClearFailedHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.Deliveries.ClearFailed(r.Context(), id)
	switch {
	case err == nil:
		log.Println("🧹 Cleared failed SMS record:", id)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, appErrors.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, appErrors.ErrRecordNotFailed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "failed to clear record: "+err.Error(), http.StatusInternalServerError)
	}
}

// ListRunsHandler returns the latest job runs
func (h *DeliveryHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		http.Error(w, "job run store not configured", http.StatusServiceUnavailable)
		return
	}

	runs, err := h.Runs.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		http.Error(w, "failed to list job runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.JobRun{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runs": runs,
	})
}

func parseLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
