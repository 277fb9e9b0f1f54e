package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promptdeck/promptdeck/internal/llm"
	"github.com/promptdeck/promptdeck/internal/models"
	"github.com/promptdeck/promptdeck/internal/prompt"
)

// ErrValidation marks a submit request rejected before any execution row is
// created.
var ErrValidation = errors.New("validation failed")

// TemplateSource resolves templates, versions and variants. Implemented by
// *prompt.Service.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error)
	GetVersion(ctx context.Context, templateID uuid.UUID, number int) (*models.PromptVersion, error)
	CurrentVersion(ctx context.Context, templateID uuid.UUID) (*models.PromptVersion, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*models.PromptVariant, error)
}

// Store persists executions. Each call must be atomic; no partial-field
// writes may become visible to other readers.
type Store interface {
	Create(ctx context.Context, e *models.Execution) error
	Update(ctx context.Context, e *models.Execution) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Execution, error)
}

// Providers is the registry surface the orchestrator needs. Implemented by
// *llm.Registry.
type Providers interface {
	Known(providerID string) bool
	Get(providerID string) (llm.Provider, error)
}

// Service drives an execution through its state machine:
// PENDING -> RUNNING -> SUCCESS | FAILED.
type Service struct {
	templates    TemplateSource
	store        Store
	providers    Providers
	defaultModel string
	timeout      time.Duration
}

// NewService wires the orchestrator. defaultModel fills in requests that
// omit a model; empty disables the fallback. timeout bounds each provider
// call; zero disables the bound.
func NewService(templates TemplateSource, store Store, providers Providers, defaultModel string, timeout time.Duration) *Service {
	return &Service{
		templates:    templates,
		store:        store,
		providers:    providers,
		defaultModel: defaultModel,
		timeout:      timeout,
	}
}

type SubmitRequest struct {
	TemplateID    uuid.UUID         `json:"template_id"`
	VersionNumber int               `json:"version_number,omitempty"` // 0 = current
	VariantID     *uuid.UUID        `json:"variant_id,omitempty"`
	Provider      string            `json:"provider"`
	Model         string            `json:"model"`
	Variables     map[string]string `json:"variables"`
	Options       llm.Options       `json:"options"`
	Actor         *uuid.UUID        `json:"-"`
}

// Submit renders the requested version and runs it against the provider.
// Failures before the execution row exists (validation, missing template or
// version) are returned as errors; anything after is captured on the record,
// so a FAILED execution comes back with a nil error. Resubmitting identical
// arguments always creates a new, independent execution.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Execution, error) {
	exec, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, exec, req.Options)
}

// Prepare validates the request, renders the prompt and persists a PENDING
// execution without running it. Used for deferred runs via the queue.
func (s *Service) Prepare(ctx context.Context, req SubmitRequest) (*models.Execution, error) {
	exec, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}

	// Persisted before any network call: a crash mid-call still leaves an
	// inspectable record.
	if err := s.store.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return exec, nil
}

// PrepareBatch resolves and renders every request before persisting any of
// them. One bad request rejects the whole batch with no rows left behind.
func (s *Service) PrepareBatch(ctx context.Context, reqs []SubmitRequest) ([]*models.Execution, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: requests must not be empty", ErrValidation)
	}

	execs := make([]*models.Execution, 0, len(reqs))
	for i, req := range reqs {
		exec, err := s.build(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		execs = append(execs, exec)
	}

	for _, exec := range execs {
		if err := s.store.Create(ctx, exec); err != nil {
			return nil, fmt.Errorf("create execution: %w", err)
		}
	}
	return execs, nil
}

// build validates and resolves a request into an unpersisted PENDING
// execution.
func (s *Service) build(ctx context.Context, req SubmitRequest) (*models.Execution, error) {
	if req.Model == "" {
		req.Model = s.defaultModel
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	if _, err := s.templates.GetTemplate(ctx, req.TemplateID); err != nil {
		return nil, err
	}

	var version *models.PromptVersion
	var err error
	if req.VersionNumber > 0 {
		version, err = s.templates.GetVersion(ctx, req.TemplateID, req.VersionNumber)
	} else {
		version, err = s.templates.CurrentVersion(ctx, req.TemplateID)
	}
	if err != nil {
		return nil, err
	}

	body := version.Body
	if req.VariantID != nil {
		variant, err := s.templates.GetVariant(ctx, *req.VariantID)
		if err != nil {
			return nil, err
		}
		if variant.VersionID != version.ID {
			return nil, fmt.Errorf("%w: variant %s does not belong to version %d", ErrValidation, variant.ID, version.VersionNumber)
		}
		body = variant.Body
	}

	variables := req.Variables
	if variables == nil {
		variables = map[string]string{}
	}

	exec := &models.Execution{
		ID:             uuid.New(),
		VersionID:      &version.ID,
		VariantID:      req.VariantID,
		Provider:       llm.Normalize(req.Provider),
		Model:          req.Model,
		InputVariables: variables,
		RenderedPrompt: prompt.Render(body, variables),
		Status:         models.StatusPending,
		ExecutedBy:     req.Actor,
		ExecutedAt:     time.Now().UTC(),
	}
	return exec, nil
}

// Run drives an already-persisted PENDING execution to a terminal state.
// This is the entry point for the queue worker.
func (s *Service) Run(ctx context.Context, executionID uuid.UUID) (*models.Execution, error) {
	exec, err := s.store.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status != models.StatusPending {
		return nil, fmt.Errorf("execution %s is %s, expected %s", exec.ID, exec.Status, models.StatusPending)
	}
	return s.run(ctx, exec, llm.Options{})
}

func (s *Service) run(ctx context.Context, exec *models.Execution, opts llm.Options) (*models.Execution, error) {
	if err := s.transition(ctx, exec, models.StatusRunning); err != nil {
		return nil, err
	}

	provider, err := s.providers.Get(exec.Provider)
	if err != nil {
		// Missing configuration is recorded, not raised; no network call is
		// attempted.
		return s.fail(ctx, exec, err.Error())
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := provider.Execute(callCtx, exec.RenderedPrompt, exec.Model, opts)
	if err != nil {
		return s.fail(ctx, exec, err.Error())
	}

	exec.Output = result.Text
	exec.PromptTokens = result.PromptTokens
	exec.CompletionTokens = result.CompletionTokens
	exec.TotalTokens = result.TotalTokens
	exec.EstimatedCost = result.Cost
	exec.LatencyMs = result.LatencyMs
	if err := s.transition(ctx, exec, models.StatusSuccess); err != nil {
		return nil, err
	}

	slog.Info("execution finished",
		"execution_id", exec.ID,
		"provider", exec.Provider,
		"model", exec.Model,
		"total_tokens", exec.TotalTokens,
		"latency_ms", exec.LatencyMs,
	)
	return exec, nil
}

func (s *Service) fail(ctx context.Context, exec *models.Execution, message string) (*models.Execution, error) {
	exec.ErrorMessage = message
	if err := s.transition(ctx, exec, models.StatusFailed); err != nil {
		return nil, err
	}
	slog.Warn("execution failed",
		"execution_id", exec.ID,
		"provider", exec.Provider,
		"error", message,
	)
	return exec, nil
}

func (s *Service) transition(ctx context.Context, exec *models.Execution, to string) error {
	if err := exec.Transition(to); err != nil {
		return err
	}
	if err := s.store.Update(ctx, exec); err != nil {
		return fmt.Errorf("persist %s execution: %w", to, err)
	}
	return nil
}

func (s *Service) validate(req SubmitRequest) error {
	switch {
	case req.TemplateID == uuid.Nil:
		return fmt.Errorf("%w: template_id required", ErrValidation)
	case req.Provider == "":
		return fmt.Errorf("%w: provider required", ErrValidation)
	case req.Model == "":
		return fmt.Errorf("%w: model required", ErrValidation)
	case !s.providers.Known(req.Provider):
		return fmt.Errorf("%w: unknown provider %q", ErrValidation, req.Provider)
	case req.VersionNumber < 0:
		return fmt.Errorf("%w: version_number must be positive", ErrValidation)
	}
	return nil
}

// NotFound reports whether err is one of the resolution failures that happen
// before an execution row exists.
func NotFound(err error) bool {
	return errors.Is(err, prompt.ErrTemplateNotFound) ||
		errors.Is(err, prompt.ErrVersionNotFound) ||
		errors.Is(err, prompt.ErrNoVersions) ||
		errors.Is(err, prompt.ErrVariantNotFound)
}
