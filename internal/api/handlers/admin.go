package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/promptdeck/promptdeck/internal/audit"
	"github.com/promptdeck/promptdeck/internal/execution"
	"github.com/promptdeck/promptdeck/internal/queue"
)

// AdminHandler serves the operator surface: audit trail queries, usage
// rollups and manual analytics triggers.
type AdminHandler struct {
	audit *audit.Service
	store *execution.PostgresStore
	queue *queue.Client
}

func NewAdminHandler(au *audit.Service, store *execution.PostgresStore, qc *queue.Client) *AdminHandler {
	return &AdminHandler{audit: au, store: store, queue: qc}
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	q := audit.Query{
		Action:       r.URL.Query().Get("action"),
		ResourceType: r.URL.Query().Get("resource_type"),
		Limit:        limit,
		Offset:       offset,
	}
	if v := r.URL.Query().Get("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_date must be YYYY-MM-DD"})
			return
		}
		q.StartDate = &t
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end_date must be YYYY-MM-DD"})
			return
		}
		q.EndDate = &t
	}

	logs, err := h.audit.List(r.Context(), q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs, "count": len(logs)})
}

// TriggerRollup enqueues an analytics rollup for the given date, or today
// when the body omits one. The worker also runs this nightly; the endpoint
// exists for backfills.
func (h *AdminHandler) TriggerRollup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date,omitempty"` // YYYY-MM-DD
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
	}

	if err := h.queue.EnqueueAnalyticsRollup(queue.AnalyticsRollupPayload{Date: req.Date}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.UsageSummary(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"usage": rows})
}
