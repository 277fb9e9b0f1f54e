package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/promptdeck/promptdeck/internal/audit"
	"github.com/promptdeck/promptdeck/internal/auth"
	"github.com/promptdeck/promptdeck/internal/execution"
	"github.com/promptdeck/promptdeck/internal/models"
	"github.com/promptdeck/promptdeck/internal/queue"
)

type ExecutionHandler struct {
	svc      *execution.Service
	store    *execution.PostgresStore
	feedback *execution.FeedbackService
	queue    *queue.Client
	audit    *audit.Service
}

func NewExecutionHandler(svc *execution.Service, store *execution.PostgresStore, fb *execution.FeedbackService, qc *queue.Client, au *audit.Service) *ExecutionHandler {
	return &ExecutionHandler{svc: svc, store: store, feedback: fb, queue: qc, audit: au}
}

// executionView is the client-facing shape. The canonical fields are served
// alongside their historical aliases: response mirrors output, tokens_used
// mirrors total_tokens. The aliasing lives here only; the core model knows
// nothing about it.
type executionView struct {
	ID               uuid.UUID                 `json:"id"`
	VersionID        *uuid.UUID                `json:"version_id,omitempty"`
	VariantID        *uuid.UUID                `json:"variant_id,omitempty"`
	Provider         string                    `json:"provider"`
	Model            string                    `json:"model"`
	InputVariables   map[string]string         `json:"input_variables"`
	RenderedPrompt   string                    `json:"rendered_prompt"`
	Status           string                    `json:"status"`
	Output           string                    `json:"output"`
	Response         string                    `json:"response"`
	ErrorMessage     string                    `json:"error_message,omitempty"`
	PromptTokens     int                       `json:"prompt_tokens"`
	CompletionTokens int                       `json:"completion_tokens"`
	TotalTokens      int                       `json:"total_tokens"`
	TokensUsed       int                       `json:"tokens_used"`
	EstimatedCost    float64                   `json:"estimated_cost"`
	LatencyMs        int64                     `json:"latency_ms"`
	ExecutedBy       *uuid.UUID                `json:"executed_by,omitempty"`
	ExecutedAt       time.Time                 `json:"executed_at"`
	Feedback         *models.ExecutionFeedback `json:"feedback,omitempty"`
}

func newExecutionView(e *models.Execution, fb *models.ExecutionFeedback) executionView {
	return executionView{
		ID:               e.ID,
		VersionID:        e.VersionID,
		VariantID:        e.VariantID,
		Provider:         e.Provider,
		Model:            e.Model,
		InputVariables:   e.InputVariables,
		RenderedPrompt:   e.RenderedPrompt,
		Status:           e.Status,
		Output:           e.Output,
		Response:         e.Output,
		ErrorMessage:     e.ErrorMessage,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.TotalTokens,
		TokensUsed:       e.TotalTokens,
		EstimatedCost:    e.EstimatedCost,
		LatencyMs:        e.LatencyMs,
		ExecutedBy:       e.ExecutedBy,
		ExecutedAt:       e.ExecutedAt,
		Feedback:         fb,
	}
}

// Submit runs a prompt synchronously, or enqueues it when ?async=true. A
// FAILED execution is a normal 200 response; only validation and resolution
// failures produce error statuses.
func (h *ExecutionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req execution.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Actor = auth.UserIDFromContext(r.Context())

	async := r.URL.Query().Get("async") == "true"

	var exec *models.Execution
	var err error
	if async {
		exec, err = h.svc.Prepare(r.Context(), req)
	} else {
		exec, err = h.svc.Submit(r.Context(), req)
	}
	switch {
	case errors.Is(err, execution.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case execution.NotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.logExecute(r, exec)

	if async {
		if err := h.queue.EnqueueExecutionRun(queue.ExecutionRunPayload{ExecutionID: exec.ID.String()}); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, newExecutionView(exec, nil))
		return
	}

	writeJSON(w, http.StatusCreated, newExecutionView(exec, nil))
}

// SubmitBatch prepares a group of PENDING executions and enqueues them as one
// batch task. Worker-side batch scheduling is not implemented yet; each
// execution can still be run individually.
func (h *ExecutionHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []execution.SubmitRequest `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Requests) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requests must not be empty"})
		return
	}

	actor := auth.UserIDFromContext(r.Context())
	for i := range req.Requests {
		req.Requests[i].Actor = actor
	}

	// Every request is resolved before any row is persisted; a rejected
	// batch leaves nothing behind.
	execs, err := h.svc.PrepareBatch(r.Context(), req.Requests)
	switch {
	case errors.Is(err, execution.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case execution.NotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	views := make([]executionView, 0, len(execs))
	ids := make([]string, 0, len(execs))
	for _, exec := range execs {
		views = append(views, newExecutionView(exec, nil))
		ids = append(ids, exec.ID.String())
	}

	batchID := uuid.New()
	if err := h.queue.EnqueueExecutionBatch(queue.ExecutionBatchPayload{BatchID: batchID.String(), ExecutionIDs: ids}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"batch_id": batchID, "executions": views})
}

func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	filter := execution.ListFilter{
		Status:     r.URL.Query().Get("status"),
		Provider:   r.URL.Query().Get("provider"),
		ExecutedBy: auth.UserIDFromContext(r.Context()),
		Limit:      limit,
		Offset:     offset,
	}

	execs, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	views := make([]executionView, 0, len(execs))
	for i := range execs {
		views = append(views, newExecutionView(&execs[i], nil))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"executions": views, "count": len(views)})
}

func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	exec, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, execution.ErrExecutionNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "execution not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	fb, err := h.feedback.Get(r.Context(), id)
	if err != nil && !errors.Is(err, execution.ErrFeedbackNotFound) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, newExecutionView(exec, fb))
}

func (h *ExecutionHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Statistics(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ExecutionHandler) UpsertFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// Feedback requires an existing execution.
	if _, err := h.store.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, execution.ErrExecutionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "execution not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	var req execution.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Actor = auth.UserIDFromContext(r.Context())

	fb, err := h.feedback.Upsert(r.Context(), id, req)
	if errors.Is(err, execution.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, fb)
}

func (h *ExecutionHandler) logExecute(r *http.Request, exec *models.Execution) {
	id := exec.ID
	entry := audit.LogEntry{
		UserID:       auth.UserIDFromContext(r.Context()),
		Action:       models.AuditActionExecute,
		ResourceType: "execution",
		ResourceID:   &id,
		Changes:      map[string]any{"provider": exec.Provider, "model": exec.Model, "status": exec.Status},
		IPAddress:    r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		slog.Warn("audit log failed", "action", models.AuditActionExecute, "error", err)
	}
}
