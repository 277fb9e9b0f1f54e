package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptdeck/promptdeck/internal/analytics"
	"github.com/promptdeck/promptdeck/internal/audit"
	"github.com/promptdeck/promptdeck/internal/auth"
	"github.com/promptdeck/promptdeck/internal/models"
	"github.com/promptdeck/promptdeck/internal/prompt"
)

type TemplateHandler struct {
	svc       *prompt.Service
	analytics *analytics.Service
	audit     *audit.Service
}

func NewTemplateHandler(svc *prompt.Service, an *analytics.Service, au *audit.Service) *TemplateHandler {
	return &TemplateHandler{svc: svc, analytics: an, audit: au}
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req prompt.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title required"})
		return
	}
	req.Actor = auth.UserIDFromContext(r.Context())

	t, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.logAction(r, models.AuditActionCreate, "template", t.ID, map[string]any{"title": t.Title})
	writeJSON(w, http.StatusCreated, t)
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	filter := prompt.ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid category_id"})
			return
		}
		filter.CategoryID = &id
	}

	templates, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates, "count": len(templates)})
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	t, versions, err := h.svc.GetByID(r.Context(), id)
	if errors.Is(err, prompt.ErrTemplateNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"template": t, "versions": versions})
}

func (h *TemplateHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.TemplateStatusArchived, models.AuditActionArchive)
}

func (h *TemplateHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.TemplateStatusActive, models.AuditActionActivate)
}

func (h *TemplateHandler) setStatus(w http.ResponseWriter, r *http.Request, status, action string) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.SetStatus(r.Context(), id, status)
	if errors.Is(err, prompt.ErrTemplateNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.logAction(r, action, "template", t.ID, nil)
	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req prompt.NewVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body required"})
		return
	}
	req.Actor = auth.UserIDFromContext(r.Context())

	v, err := h.svc.CreateVersion(r.Context(), id, req)
	if errors.Is(err, prompt.ErrTemplateNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.logAction(r, models.AuditActionCreate, "version", v.ID, map[string]any{"version_number": v.VersionNumber})
	writeJSON(w, http.StatusCreated, v)
}

func (h *TemplateHandler) CreateVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid version number"})
		return
	}

	version, err := h.svc.GetVersion(r.Context(), id, number)
	if errors.Is(err, prompt.ErrVersionNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "version not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	var req prompt.NewVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.Body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and body required"})
		return
	}
	req.Actor = auth.UserIDFromContext(r.Context())

	variant, err := h.svc.CreateVariant(r.Context(), version.ID, req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.logAction(r, models.AuditActionCreate, "variant", variant.ID, map[string]any{"name": variant.Name})
	writeJSON(w, http.StatusCreated, variant)
}

type renderRequest struct {
	VersionNumber int               `json:"version_number,omitempty"` // 0 = current
	Variables     map[string]string `json:"variables"`
}

type renderResponse struct {
	VersionNumber    int      `json:"version_number"`
	RenderedPrompt   string   `json:"rendered_prompt"`
	MissingVariables []string `json:"missing_variables,omitempty"`
}

// Render is a dry run: it resolves and renders a version without creating an
// execution.
func (h *TemplateHandler) Render(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var version *models.PromptVersion
	var err error
	if req.VersionNumber > 0 {
		version, err = h.svc.GetVersion(r.Context(), id, req.VersionNumber)
	} else {
		version, err = h.svc.CurrentVersion(r.Context(), id)
	}
	if errors.Is(err, prompt.ErrVersionNotFound) || errors.Is(err, prompt.ErrNoVersions) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, renderResponse{
		VersionNumber:    version.VersionNumber,
		RenderedPrompt:   prompt.Render(version.Body, req.Variables),
		MissingVariables: prompt.MissingVariables(version.Body, req.Variables),
	})
}

func (h *TemplateHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	_, versions, err := h.svc.GetByID(r.Context(), id)
	if errors.Is(err, prompt.ErrTemplateNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions, "count": len(versions)})
}

func (h *TemplateHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid version number"})
		return
	}

	version, err := h.svc.GetVersion(r.Context(), id, number)
	if errors.Is(err, prompt.ErrVersionNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "version not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	variants, err := h.svc.ListVariants(r.Context(), version.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"variants": variants, "count": len(variants)})
}

func (h *TemplateHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rollups, err := h.analytics.ForTemplate(r.Context(), id, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"analytics": rollups})
}

func (h *TemplateHandler) logAction(r *http.Request, action, resourceType string, resourceID uuid.UUID, changes map[string]any) {
	entry := audit.LogEntry{
		UserID:       auth.UserIDFromContext(r.Context()),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Changes:      changes,
		IPAddress:    r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
	// Audit failures never block the mutation itself.
	if err := h.audit.Log(r.Context(), entry); err != nil {
		slog.Warn("audit log failed", "action", action, "resource_type", resourceType, "error", err)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ID"})
		return uuid.Nil, false
	}
	return id, true
}
