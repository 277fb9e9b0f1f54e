package handlers

import (
	"net/http"

	"github.com/promptdeck/promptdeck/internal/llm"
)

// ProviderHandler exposes the provider catalog. Keys are never included;
// a provider is either configured or not.
type ProviderHandler struct {
	registry *llm.Registry
}

func NewProviderHandler(registry *llm.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses := h.registry.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": statuses, "count": len(statuses)})
}
