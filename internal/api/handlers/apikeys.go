package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/promptdeck/promptdeck/internal/auth"
)

type APIKeyHandler struct {
	svc *auth.APIKeyService
}

func NewAPIKeyHandler(svc *auth.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{svc: svc}
}

// Create issues a new key. The raw key appears in this response only; the
// server keeps just the hash and prefix.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	key, raw, err := h.svc.Issue(r.Context(), *userID, req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key": key,
		"key":     raw,
	})
}
