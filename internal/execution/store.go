package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptdeck/promptdeck/internal/models"
)

var ErrExecutionNotFound = errors.New("execution not found")

// PostgresStore is the pgx-backed execution store.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const executionColumns = `id, version_id, variant_id, provider, model, input_variables,
	rendered_prompt, output, status, error_message, prompt_tokens, completion_tokens,
	total_tokens, estimated_cost, latency_ms, executed_by, executed_at`

func (s *PostgresStore) Create(ctx context.Context, e *models.Execution) error {
	varsJSON, err := json.Marshal(e.InputVariables)
	if err != nil {
		return fmt.Errorf("marshal input variables: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID, e.VersionID, e.VariantID, e.Provider, e.Model, varsJSON,
		e.RenderedPrompt, e.Output, e.Status, e.ErrorMessage, e.PromptTokens, e.CompletionTokens,
		e.TotalTokens, e.EstimatedCost, e.LatencyMs, e.ExecutedBy, e.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Update rewrites the mutable result fields in a single statement, so other
// readers never observe a partial write.
func (s *PostgresStore) Update(ctx context.Context, e *models.Execution) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE executions
		 SET status = $1, output = $2, error_message = $3, prompt_tokens = $4,
		     completion_tokens = $5, total_tokens = $6, estimated_cost = $7, latency_ms = $8
		 WHERE id = $9`,
		e.Status, e.Output, e.ErrorMessage, e.PromptTokens,
		e.CompletionTokens, e.TotalTokens, e.EstimatedCost, e.LatencyMs, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Execution, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	return e, err
}

type ListFilter struct {
	Status     string
	Provider   string
	ExecutedBy *uuid.UUID
	Limit      int
	Offset     int
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]models.Execution, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}

	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.Provider != "" {
		query += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, f.Provider)
		argIdx++
	}
	if f.ExecutedBy != nil {
		query += fmt.Sprintf(" AND executed_by = $%d", argIdx)
		args = append(args, *f.ExecutedBy)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY executed_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []models.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *e)
	}
	return execs, nil
}

type Statistics struct {
	Total       int            `json:"total_executions"`
	ByStatus    map[string]int `json:"by_status"`
	ByProvider  map[string]int `json:"by_provider"`
	SuccessRate float64        `json:"success_rate"`
}

// Statistics aggregates executions, optionally scoped to one user.
func (s *PostgresStore) Statistics(ctx context.Context, executedBy *uuid.UUID) (*Statistics, error) {
	query := `SELECT status, provider, COUNT(*) FROM executions`
	args := []any{}
	if executedBy != nil {
		query += ` WHERE executed_by = $1`
		args = append(args, *executedBy)
	}
	query += ` GROUP BY status, provider`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execution statistics: %w", err)
	}
	defer rows.Close()

	stats := &Statistics{
		ByStatus:   map[string]int{},
		ByProvider: map[string]int{},
	}
	for rows.Next() {
		var status, provider string
		var count int
		if err := rows.Scan(&status, &provider, &count); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByProvider[provider] += count
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.ByStatus[models.StatusSuccess]) / float64(stats.Total) * 100
	}
	return stats, nil
}

type UsageSummary struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	TotalCalls  int     `json:"total_calls"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

// UsageSummary aggregates cost and token usage per provider/model pair.
func (s *PostgresStore) UsageSummary(ctx context.Context) ([]UsageSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT provider, model, COUNT(*),
		        COALESCE(SUM(total_tokens), 0),
		        COALESCE(SUM(estimated_cost), 0)
		 FROM executions
		 GROUP BY provider, model
		 ORDER BY SUM(estimated_cost) DESC NULLS LAST`,
	)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []UsageSummary
	for rows.Next() {
		var us UsageSummary
		if err := rows.Scan(&us.Provider, &us.Model, &us.TotalCalls, &us.TotalTokens, &us.TotalCost); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, us)
	}
	return summaries, nil
}

func scanExecution(row pgx.Row) (*models.Execution, error) {
	var e models.Execution
	var rawVars []byte
	err := row.Scan(
		&e.ID, &e.VersionID, &e.VariantID, &e.Provider, &e.Model, &rawVars,
		&e.RenderedPrompt, &e.Output, &e.Status, &e.ErrorMessage, &e.PromptTokens, &e.CompletionTokens,
		&e.TotalTokens, &e.EstimatedCost, &e.LatencyMs, &e.ExecutedBy, &e.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawVars, &e.InputVariables); err != nil {
		return nil, fmt.Errorf("decode input variables: %w", err)
	}
	return &e, nil
}
