package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/promptdeck/promptdeck/internal/analytics"
	"github.com/promptdeck/promptdeck/internal/api/handlers"
	"github.com/promptdeck/promptdeck/internal/api/middleware"
	"github.com/promptdeck/promptdeck/internal/audit"
	"github.com/promptdeck/promptdeck/internal/auth"
	"github.com/promptdeck/promptdeck/internal/cache"
	"github.com/promptdeck/promptdeck/internal/config"
	"github.com/promptdeck/promptdeck/internal/execution"
	"github.com/promptdeck/promptdeck/internal/llm"
	"github.com/promptdeck/promptdeck/internal/prompt"
	"github.com/promptdeck/promptdeck/internal/queue"
)

type Router struct {
	mux      *chi.Mux
	db       *pgxpool.Pool
	redis    *redis.Client
	cfg      *config.Config
	jwt      *auth.JWTMiddleware
	apikeys  *auth.APIKeyService
	registry *llm.Registry
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		db:       db,
		redis:    rdb,
		cfg:      cfg,
		jwt:      auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		apikeys:  auth.NewAPIKeyService(db, cfg.Auth.APIKeyHeader),
		registry: llm.NewRegistry(cfg.LLM),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	templateCache := cache.NewCache(rt.redis)
	promptSvc := prompt.NewService(rt.db, templateCache)
	auditSvc := audit.NewService(rt.db)
	analyticsSvc := analytics.NewService(rt.db)
	execStore := execution.NewPostgresStore(rt.db)
	feedbackSvc := execution.NewFeedbackService(rt.db)
	queueClient := queue.NewClient(rt.cfg.Redis)

	execSvc := execution.NewService(promptSvc, execStore, rt.registry, rt.cfg.LLM.DefaultModel, rt.cfg.LLM.RequestTimeout)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth: try API key first, then JWT. Anything still anonymous
		// after both is rejected.
		r.Use(rt.apikeys.Authenticate)
		r.Use(rt.jwt.Authenticate)
		r.Use(auth.RequireUser)

		// Template routes
		templateH := handlers.NewTemplateHandler(promptSvc, analyticsSvc, auditSvc)
		r.Route("/templates", func(r chi.Router) {
			r.Post("/", templateH.Create)
			r.Get("/", templateH.List)
			r.Get("/{id}", templateH.Get)
			r.Post("/{id}/archive", templateH.Archive)
			r.Post("/{id}/activate", templateH.Activate)
			r.Post("/{id}/versions", templateH.CreateVersion)
			r.Get("/{id}/versions", templateH.ListVersions)
			r.Post("/{id}/versions/{number}/variants", templateH.CreateVariant)
			r.Get("/{id}/versions/{number}/variants", templateH.ListVariants)
			r.Post("/{id}/render", templateH.Render)
			r.Get("/{id}/analytics", templateH.Analytics)
		})

		// Execution routes
		execH := handlers.NewExecutionHandler(execSvc, execStore, feedbackSvc, queueClient, auditSvc)
		r.Route("/executions", func(r chi.Router) {
			r.Post("/", execH.Submit)
			r.Post("/batch", execH.SubmitBatch)
			r.Get("/", execH.List)
			r.Get("/statistics", execH.Statistics)
			r.Get("/{id}", execH.Get)
			r.Put("/{id}/feedback", execH.UpsertFeedback)
		})

		// Provider catalog
		providerH := handlers.NewProviderHandler(rt.registry)
		r.Get("/providers", providerH.List)

		// API key routes
		apikeyH := handlers.NewAPIKeyHandler(rt.apikeys)
		r.Post("/apikeys", apikeyH.Create)

		// Admin routes
		adminH := handlers.NewAdminHandler(auditSvc, execStore, queueClient)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/usage", adminH.Usage)
			r.Get("/audit", adminH.AuditLogs)
			r.Post("/analytics/rollup", adminH.TriggerRollup)
		})
	})

	return r
}
