package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Execution statuses. The lifecycle is forward-only:
// PENDING -> RUNNING -> SUCCESS | FAILED.
const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

var validTransitions = map[string][]string{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusSuccess, StatusFailed},
	StatusSuccess: {},
	StatusFailed:  {},
}

// Execution is one attempt to run a rendered prompt against a provider/model.
// Version and variant references are nullable and non-cascading: deleting a
// version must never delete its executions.
type Execution struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	VersionID        *uuid.UUID        `json:"version_id,omitempty" db:"version_id"`
	VariantID        *uuid.UUID        `json:"variant_id,omitempty" db:"variant_id"`
	Provider         string            `json:"provider" db:"provider"`
	Model            string            `json:"model" db:"model"`
	InputVariables   map[string]string `json:"input_variables" db:"input_variables"`
	RenderedPrompt   string            `json:"rendered_prompt" db:"rendered_prompt"`
	Output           string            `json:"output,omitempty" db:"output"`
	Status           string            `json:"status" db:"status"`
	ErrorMessage     string            `json:"error_message,omitempty" db:"error_message"`
	PromptTokens     int               `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int               `json:"total_tokens" db:"total_tokens"`
	EstimatedCost    float64           `json:"estimated_cost" db:"estimated_cost"`
	LatencyMs        int64             `json:"latency_ms" db:"latency_ms"`
	ExecutedBy       *uuid.UUID        `json:"executed_by,omitempty" db:"executed_by"`
	ExecutedAt       time.Time         `json:"executed_at" db:"executed_at"`
}

// Terminal reports whether the execution has reached a final status.
func (e *Execution) Terminal() bool {
	return e.Status == StatusSuccess || e.Status == StatusFailed
}

// Transition moves the execution to the given status, rejecting any move that
// would regress the state machine or leave a terminal state.
func (e *Execution) Transition(to string) error {
	for _, allowed := range validTransitions[e.Status] {
		if to == allowed {
			e.Status = to
			return nil
		}
	}
	return fmt.Errorf("invalid status transition %s -> %s", e.Status, to)
}

// ExecutionFeedback holds the single feedback record allowed per execution.
type ExecutionFeedback struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ExecutionID uuid.UUID  `json:"execution_id" db:"execution_id"`
	Score       int        `json:"score" db:"score"` // +1 or -1
	Rating      *int       `json:"rating,omitempty" db:"rating"`
	Notes       string     `json:"notes,omitempty" db:"notes"`
	AutoScore   *float64   `json:"auto_score,omitempty" db:"auto_score"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
