package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptdeck/promptdeck/internal/models"
)

var ErrFeedbackNotFound = errors.New("feedback not found")

// FeedbackService stores the single feedback record allowed per execution.
type FeedbackService struct {
	db *pgxpool.Pool
}

func NewFeedbackService(db *pgxpool.Pool) *FeedbackService {
	return &FeedbackService{db: db}
}

type FeedbackRequest struct {
	Score     int        `json:"score"` // +1 or -1
	Rating    *int       `json:"rating,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	AutoScore *float64   `json:"auto_score,omitempty"`
	Actor     *uuid.UUID `json:"-"`
}

// Upsert creates or replaces the feedback for an execution. The execution
// must already exist; feedback has its own lifecycle after that.
func (s *FeedbackService) Upsert(ctx context.Context, executionID uuid.UUID, req FeedbackRequest) (*models.ExecutionFeedback, error) {
	if req.Score != 1 && req.Score != -1 {
		return nil, fmt.Errorf("%w: score must be +1 or -1", ErrValidation)
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	var fb models.ExecutionFeedback
	err := s.db.QueryRow(ctx,
		`INSERT INTO execution_feedback (execution_id, score, rating, notes, auto_score, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (execution_id) DO UPDATE
		 SET score = EXCLUDED.score, rating = EXCLUDED.rating, notes = EXCLUDED.notes,
		     auto_score = EXCLUDED.auto_score
		 RETURNING id, execution_id, score, rating, notes, auto_score, created_by, created_at`,
		executionID, req.Score, req.Rating, req.Notes, req.AutoScore, req.Actor,
	).Scan(&fb.ID, &fb.ExecutionID, &fb.Score, &fb.Rating, &fb.Notes, &fb.AutoScore, &fb.CreatedBy, &fb.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert feedback: %w", err)
	}
	return &fb, nil
}

// Get returns the feedback for an execution, if any.
func (s *FeedbackService) Get(ctx context.Context, executionID uuid.UUID) (*models.ExecutionFeedback, error) {
	var fb models.ExecutionFeedback
	err := s.db.QueryRow(ctx,
		`SELECT id, execution_id, score, rating, notes, auto_score, created_by, created_at
		 FROM execution_feedback WHERE execution_id = $1`,
		executionID,
	).Scan(&fb.ID, &fb.ExecutionID, &fb.Score, &fb.Rating, &fb.Notes, &fb.AutoScore, &fb.CreatedBy, &fb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFeedbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feedback: %w", err)
	}
	return &fb, nil
}
