package models

import (
	"time"

	"github.com/google/uuid"
)

// TemplateAnalytics is one day of aggregated execution stats for a template,
// maintained by the rollup worker. Unique per (template, date).
type TemplateAnalytics struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TemplateID     uuid.UUID `json:"template_id" db:"template_id"`
	Date           time.Time `json:"date" db:"date"`
	ExecutionCount int       `json:"execution_count" db:"execution_count"`
	SuccessCount   int       `json:"success_count" db:"success_count"`
	FailureCount   int       `json:"failure_count" db:"failure_count"`
	TotalTokens    int64     `json:"total_tokens" db:"total_tokens"`
	TotalCost      float64   `json:"total_cost" db:"total_cost"`
	AvgLatencyMs   *float64  `json:"avg_latency_ms,omitempty" db:"avg_latency_ms"`
	AvgRating      *float64  `json:"avg_rating,omitempty" db:"avg_rating"`
}
