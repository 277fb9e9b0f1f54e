package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/internal/llm"
	"github.com/promptdeck/promptdeck/internal/models"
	"github.com/promptdeck/promptdeck/internal/prompt"
)

type fakeTemplates struct {
	template *models.PromptTemplate
	versions map[int]*models.PromptVersion
	current  *models.PromptVersion
	variants map[uuid.UUID]*models.PromptVariant
}

func (f *fakeTemplates) GetTemplate(_ context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	if f.template == nil || f.template.ID != id {
		return nil, prompt.ErrTemplateNotFound
	}
	return f.template, nil
}

func (f *fakeTemplates) GetVersion(_ context.Context, _ uuid.UUID, number int) (*models.PromptVersion, error) {
	v, ok := f.versions[number]
	if !ok {
		return nil, prompt.ErrVersionNotFound
	}
	return v, nil
}

func (f *fakeTemplates) CurrentVersion(_ context.Context, _ uuid.UUID) (*models.PromptVersion, error) {
	if f.current == nil {
		return nil, prompt.ErrNoVersions
	}
	return f.current, nil
}

func (f *fakeTemplates) GetVariant(_ context.Context, id uuid.UUID) (*models.PromptVariant, error) {
	v, ok := f.variants[id]
	if !ok {
		return nil, prompt.ErrVariantNotFound
	}
	return v, nil
}

type fakeStore struct {
	created  int
	records  map[uuid.UUID]*models.Execution
	statuses []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[uuid.UUID]*models.Execution{}}
}

func (f *fakeStore) Create(_ context.Context, e *models.Execution) error {
	f.created++
	cp := *e
	f.records[e.ID] = &cp
	f.statuses = append(f.statuses, e.Status)
	return nil
}

func (f *fakeStore) Update(_ context.Context, e *models.Execution) error {
	cp := *e
	f.records[e.ID] = &cp
	f.statuses = append(f.statuses, e.Status)
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Execution, error) {
	e, ok := f.records[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	cp := *e
	return &cp, nil
}

type fakeProvider struct {
	calls  int
	result *llm.Result
	err    error
	prompt string
}

func (f *fakeProvider) Execute(_ context.Context, prompt, _ string, _ llm.Options) (*llm.Result, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) Name() string                 { return "Fake" }
func (f *fakeProvider) Models() []string             { return []string{"fake-model"} }
func (f *fakeProvider) ValidModel(model string) bool { return model == "fake-model" }

type fakeProviders struct {
	known    map[string]bool
	provider llm.Provider
	getErr   error
}

func (f *fakeProviders) Known(id string) bool { return f.known[llm.Normalize(id)] }

func (f *fakeProviders) Get(_ string) (llm.Provider, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.provider, nil
}

func newFixture(provider *fakeProvider, getErr error) (*Service, *fakeTemplates, *fakeStore, uuid.UUID) {
	templateID := uuid.New()
	versionID := uuid.New()

	templates := &fakeTemplates{
		template: &models.PromptTemplate{ID: templateID, Title: "Greeting", Status: models.TemplateStatusActive},
		current: &models.PromptVersion{
			ID:            versionID,
			TemplateID:    templateID,
			VersionNumber: 2,
			Body:          "Hello {{name}}!",
		},
		versions: map[int]*models.PromptVersion{},
		variants: map[uuid.UUID]*models.PromptVariant{},
	}
	templates.versions[2] = templates.current
	templates.versions[1] = &models.PromptVersion{
		ID:            uuid.New(),
		TemplateID:    templateID,
		VersionNumber: 1,
		Body:          "Hi {{name}}.",
	}

	store := newFakeStore()
	providers := &fakeProviders{
		known:    map[string]bool{"OPENAI": true},
		provider: provider,
		getErr:   getErr,
	}
	return NewService(templates, store, providers, "", 0), templates, store, templateID
}

func okProvider() *fakeProvider {
	return &fakeProvider{result: &llm.Result{
		Text:             "Hello Ada!",
		PromptTokens:     10,
		CompletionTokens: 5,
		TotalTokens:      15,
		Cost:             0.00045,
		LatencyMs:        120,
	}}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, store, templateID := newFixture(okProvider(), nil)

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing template id", SubmitRequest{Provider: "openai", Model: "gpt-4"}},
		{"missing provider", SubmitRequest{TemplateID: templateID, Model: "gpt-4"}},
		{"missing model", SubmitRequest{TemplateID: templateID, Provider: "openai"}},
		{"unknown provider", SubmitRequest{TemplateID: templateID, Provider: "cohere", Model: "command"}},
		{"negative version", SubmitRequest{TemplateID: templateID, Provider: "openai", Model: "gpt-4", VersionNumber: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Zero(t, store.created, "rejected requests must not create execution rows")
}

func TestSubmitDefaultModel(t *testing.T) {
	provider := okProvider()
	_, templates, store, templateID := newFixture(provider, nil)
	providers := &fakeProviders{known: map[string]bool{"OPENAI": true}, provider: provider}
	svc := NewService(templates, store, providers, "gpt-4", 0)

	exec, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Variables:  map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", exec.Model, "an omitted model falls back to the configured default")
	assert.Equal(t, models.StatusSuccess, exec.Status)
}

func TestSubmitNoModelNoDefault(t *testing.T) {
	svc, _, store, templateID := newFixture(okProvider(), nil)

	_, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID, Provider: "openai",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, store.created)
}

func TestSubmitTemplateNotFound(t *testing.T) {
	svc, _, store, _ := newFixture(okProvider(), nil)

	_, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: uuid.New(), Provider: "openai", Model: "gpt-4",
	})
	assert.ErrorIs(t, err, prompt.ErrTemplateNotFound)
	assert.True(t, NotFound(err))
	assert.Zero(t, store.created)
}

func TestSubmitNoVersions(t *testing.T) {
	svc, templates, store, templateID := newFixture(okProvider(), nil)
	templates.current = nil

	_, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID, Provider: "openai", Model: "gpt-4",
	})
	assert.ErrorIs(t, err, prompt.ErrNoVersions)
	assert.Zero(t, store.created, "a template with zero versions must fail before any row exists")
}

func TestSubmitSuccess(t *testing.T) {
	provider := okProvider()
	svc, _, store, templateID := newFixture(provider, nil)

	exec, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Model:      "gpt-4",
		Variables:  map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, exec.Status)
	assert.Equal(t, "OPENAI", exec.Provider)
	assert.Equal(t, "Hello Ada!", exec.Output)
	assert.Equal(t, "Hello Ada!", provider.prompt, "provider must receive the rendered prompt")
	assert.Equal(t, 10, exec.PromptTokens)
	assert.Equal(t, 5, exec.CompletionTokens)
	assert.Equal(t, 15, exec.TotalTokens)
	assert.InDelta(t, 0.00045, exec.EstimatedCost, 1e-9)
	assert.Equal(t, int64(120), exec.LatencyMs)

	// Every state was persisted in order.
	assert.Equal(t, []string{models.StatusPending, models.StatusRunning, models.StatusSuccess}, store.statuses)
	assert.Equal(t, models.StatusSuccess, store.records[exec.ID].Status)
}

func TestSubmitExplicitVersion(t *testing.T) {
	provider := okProvider()
	svc, _, _, templateID := newFixture(provider, nil)

	exec, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID:    templateID,
		VersionNumber: 1,
		Provider:      "openai",
		Model:         "gpt-4",
		Variables:     map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada.", exec.RenderedPrompt)
}

func TestSubmitMissingVariableLeftVerbatim(t *testing.T) {
	svc, _, _, templateID := newFixture(okProvider(), nil)

	exec, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID, Provider: "openai", Model: "gpt-4",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}!", exec.RenderedPrompt)
}

func TestSubmitNotConfiguredProviderFails(t *testing.T) {
	provider := okProvider()
	svc, _, store, templateID := newFixture(provider, &llm.NotConfiguredError{Provider: "OPENAI"})

	exec, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Model:      "gpt-4",
		Variables:  map[string]string{"name": "Ada"},
	})
	require.NoError(t, err, "a failed execution is a result, not an error")

	assert.Equal(t, models.StatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "not configured")
	assert.Zero(t, provider.calls, "no network call may happen for an unconfigured provider")
	assert.Equal(t, []string{models.StatusPending, models.StatusRunning, models.StatusFailed}, store.statuses)
}

func TestSubmitProviderErrorFails(t *testing.T) {
	provider := &fakeProvider{err: &llm.ProviderError{Provider: "OpenAI", Err: errors.New("rate limited")}}
	svc, _, store, templateID := newFixture(provider, nil)

	exec, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Model:      "gpt-4",
		Variables:  map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "rate limited")
	assert.Equal(t, models.StatusFailed, store.records[exec.ID].Status)
}

func TestSubmitVariantMismatch(t *testing.T) {
	svc, templates, store, templateID := newFixture(okProvider(), nil)

	variantID := uuid.New()
	templates.variants[variantID] = &models.PromptVariant{
		ID:        variantID,
		VersionID: uuid.New(), // belongs to some other version
		Body:      "Howdy {{name}}!",
	}

	_, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID,
		VariantID:  &variantID,
		Provider:   "openai",
		Model:      "gpt-4",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, store.created)
}

func TestSubmitVariantBodyUsed(t *testing.T) {
	provider := okProvider()
	svc, templates, _, templateID := newFixture(provider, nil)

	variantID := uuid.New()
	templates.variants[variantID] = &models.PromptVariant{
		ID:        variantID,
		VersionID: templates.current.ID,
		Body:      "Howdy {{name}}!",
	}

	exec, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID,
		VariantID:  &variantID,
		Provider:   "openai",
		Model:      "gpt-4",
		Variables:  map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Howdy Ada!", exec.RenderedPrompt)
	assert.Equal(t, &variantID, exec.VariantID)
}

func TestSubmitRepeatedCreatesIndependentExecutions(t *testing.T) {
	svc, _, store, templateID := newFixture(okProvider(), nil)

	req := SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Model:      "gpt-4",
		Variables:  map[string]string{"name": "Ada"},
	}
	first, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, store.created)
}

func TestPrepareLeavesExecutionPending(t *testing.T) {
	provider := okProvider()
	svc, _, store, templateID := newFixture(provider, nil)

	exec, err := svc.Prepare(context.Background(), SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Model:      "gpt-4",
		Variables:  map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, exec.Status)
	assert.Equal(t, "Hello Ada!", exec.RenderedPrompt)
	assert.Zero(t, provider.calls)
	assert.Equal(t, 1, store.created)
}

func TestPrepareBatchAllPending(t *testing.T) {
	provider := okProvider()
	svc, _, store, templateID := newFixture(provider, nil)

	execs, err := svc.PrepareBatch(context.Background(), []SubmitRequest{
		{TemplateID: templateID, Provider: "openai", Model: "gpt-4", Variables: map[string]string{"name": "Ada"}},
		{TemplateID: templateID, Provider: "openai", Model: "gpt-4", Variables: map[string]string{"name": "Grace"}},
	})
	require.NoError(t, err)
	require.Len(t, execs, 2)

	assert.Equal(t, 2, store.created)
	assert.Zero(t, provider.calls)
	for _, exec := range execs {
		assert.Equal(t, models.StatusPending, exec.Status)
	}
}

func TestPrepareBatchRejectsWithoutPersisting(t *testing.T) {
	svc, _, store, templateID := newFixture(okProvider(), nil)

	_, err := svc.PrepareBatch(context.Background(), []SubmitRequest{
		{TemplateID: templateID, Provider: "openai", Model: "gpt-4"},
		{TemplateID: templateID, Provider: "cohere", Model: "command"},
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, store.created, "a rejected batch must leave no execution rows behind")

	_, err = svc.PrepareBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRunDrivesPendingExecution(t *testing.T) {
	provider := okProvider()
	svc, _, _, templateID := newFixture(provider, nil)

	pending, err := svc.Prepare(context.Background(), SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Model:      "gpt-4",
		Variables:  map[string]string{"name": "Ada"},
	})
	require.NoError(t, err)

	exec, err := svc.Run(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, exec.Status)
	assert.Equal(t, 1, provider.calls)
}

func TestRunRejectsNonPending(t *testing.T) {
	svc, _, _, templateID := newFixture(okProvider(), nil)

	done, err := svc.Submit(context.Background(), SubmitRequest{
		TemplateID: templateID,
		Provider:   "openai",
		Model:      "gpt-4",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, done.Status)

	_, err = svc.Run(context.Background(), done.ID)
	assert.Error(t, err)

	_, err = svc.Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}
