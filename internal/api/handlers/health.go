package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler serves the liveness and readiness endpoints. Readiness pings
// postgres (templates, executions) and redis (cache, queue); either failing
// flips the response to 503.
type HealthHandler struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "promptdeck"})
}

type dependencyStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	var deps []dependencyStatus
	ready := true

	record := func(name string, err error) {
		d := dependencyStatus{Name: name, OK: err == nil}
		if err != nil {
			d.Error = err.Error()
			ready = false
		}
		deps = append(deps, d)
	}

	if h.db != nil {
		record("postgres", h.db.Ping(r.Context()))
	}
	if h.redis != nil {
		record("redis", h.redis.Ping(r.Context()).Err())
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "dependencies": deps})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
