//go:build integration

package execution_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/internal/execution"
	"github.com/promptdeck/promptdeck/internal/models"
	"github.com/promptdeck/promptdeck/internal/testutil"
)

func makeExecution(t *testing.T, ctx context.Context, store *execution.PostgresStore) *models.Execution {
	t.Helper()
	exec := &models.Execution{
		ID:             uuid.New(),
		Provider:       "OPENAI",
		Model:          "gpt-4",
		InputVariables: map[string]string{"name": "Ada"},
		RenderedPrompt: "Hello Ada!",
		Status:         models.StatusPending,
		ExecutedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, exec))
	return exec
}

func TestPostgresStoreCreateGet(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := execution.NewPostgresStore(pool)

	exec := makeExecution(t, ctx, store)

	got, err := store.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "Hello Ada!", got.RenderedPrompt)
	assert.Equal(t, map[string]string{"name": "Ada"}, got.InputVariables)

	_, err = store.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, execution.ErrExecutionNotFound)
}

func TestPostgresStoreUpdateResult(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := execution.NewPostgresStore(pool)

	exec := makeExecution(t, ctx, store)
	require.NoError(t, exec.Transition(models.StatusRunning))
	require.NoError(t, store.Update(ctx, exec))

	require.NoError(t, exec.Transition(models.StatusSuccess))
	exec.Output = "Hello Ada!"
	exec.PromptTokens = 10
	exec.CompletionTokens = 5
	exec.TotalTokens = 15
	exec.EstimatedCost = 0.00045
	exec.LatencyMs = 120
	require.NoError(t, store.Update(ctx, exec))

	got, err := store.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, "Hello Ada!", got.Output)
	assert.Equal(t, 15, got.TotalTokens)
	assert.InDelta(t, 0.00045, got.EstimatedCost, 1e-9)
	assert.Equal(t, int64(120), got.LatencyMs)
}

func TestPostgresStoreUpdateUnknownExecution(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := execution.NewPostgresStore(pool)

	ghost := &models.Execution{
		ID:             uuid.New(),
		Status:         models.StatusRunning,
		InputVariables: map[string]string{},
	}
	err := store.Update(context.Background(), ghost)
	assert.ErrorIs(t, err, execution.ErrExecutionNotFound)
}

func TestFeedbackUpsertReplacesExisting(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := execution.NewPostgresStore(pool)
	feedback := execution.NewFeedbackService(pool)

	exec := makeExecution(t, ctx, store)

	first, err := feedback.Upsert(ctx, exec.ID, execution.FeedbackRequest{Score: 1, Notes: "good"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Score)

	rating := 2
	second, err := feedback.Upsert(ctx, exec.ID, execution.FeedbackRequest{Score: -1, Rating: &rating, Notes: "regressed"})
	require.NoError(t, err)

	// One row per execution; the second write replaces the first in place.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, -1, second.Score)
	require.NotNil(t, second.Rating)
	assert.Equal(t, 2, *second.Rating)

	got, err := feedback.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, got.Score)
	assert.Equal(t, "regressed", got.Notes)
}

func TestFeedbackGetMissing(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	feedback := execution.NewFeedbackService(pool)

	_, err := feedback.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, execution.ErrFeedbackNotFound)
}
