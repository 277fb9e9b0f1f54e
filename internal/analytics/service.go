package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptdeck/promptdeck/internal/models"
)

// Service maintains the daily per-template rollups derived from executions
// and feedback. Rollup runs are idempotent: re-running a day overwrites the
// previous aggregate.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// RollupDay recomputes template_analytics for every template that had
// executions on the given day. Executions whose version was deleted carry a
// null template reference and are skipped.
func (s *Service) RollupDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)

	tag, err := s.db.Exec(ctx,
		`INSERT INTO template_analytics
		     (template_id, date, execution_count, success_count, failure_count,
		      total_tokens, total_cost, avg_latency_ms, avg_rating)
		 SELECT pv.template_id,
		        $1::date,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE e.status = $2),
		        COUNT(*) FILTER (WHERE e.status = $3),
		        COALESCE(SUM(e.total_tokens), 0),
		        COALESCE(SUM(e.estimated_cost), 0),
		        AVG(e.latency_ms) FILTER (WHERE e.status = $2),
		        AVG(f.rating)
		 FROM executions e
		 JOIN prompt_versions pv ON pv.id = e.version_id
		 LEFT JOIN execution_feedback f ON f.execution_id = e.id
		 WHERE e.executed_at >= $1 AND e.executed_at < $1::date + INTERVAL '1 day'
		 GROUP BY pv.template_id
		 ON CONFLICT (template_id, date) DO UPDATE
		 SET execution_count = EXCLUDED.execution_count,
		     success_count   = EXCLUDED.success_count,
		     failure_count   = EXCLUDED.failure_count,
		     total_tokens    = EXCLUDED.total_tokens,
		     total_cost      = EXCLUDED.total_cost,
		     avg_latency_ms  = EXCLUDED.avg_latency_ms,
		     avg_rating      = EXCLUDED.avg_rating`,
		day, models.StatusSuccess, models.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("rollup %s: %w", day.Format("2006-01-02"), err)
	}

	slog.Info("analytics rollup complete", "date", day.Format("2006-01-02"), "templates", tag.RowsAffected())
	return nil
}

// ForTemplate returns the stored daily aggregates for one template, newest
// first.
func (s *Service) ForTemplate(ctx context.Context, templateID uuid.UUID, limit int) ([]models.TemplateAnalytics, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, template_id, date, execution_count, success_count, failure_count,
		        total_tokens, total_cost, avg_latency_ms, avg_rating
		 FROM template_analytics
		 WHERE template_id = $1
		 ORDER BY date DESC LIMIT $2`,
		templateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query template analytics: %w", err)
	}
	defer rows.Close()

	var out []models.TemplateAnalytics
	for rows.Next() {
		var a models.TemplateAnalytics
		if err := rows.Scan(&a.ID, &a.TemplateID, &a.Date, &a.ExecutionCount, &a.SuccessCount, &a.FailureCount,
			&a.TotalTokens, &a.TotalCost, &a.AvgLatencyMs, &a.AvgRating); err != nil {
			return nil, fmt.Errorf("scan template analytics: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}
