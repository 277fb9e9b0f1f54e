package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promptdeck/promptdeck/internal/analytics"
	"github.com/promptdeck/promptdeck/internal/queue"
)

// AnalyticsWorker recomputes daily template rollups.
type AnalyticsWorker struct {
	svc *analytics.Service
}

func NewAnalyticsWorker(svc *analytics.Service) *AnalyticsWorker {
	return &AnalyticsWorker{svc: svc}
}

func (w *AnalyticsWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.AnalyticsRollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	day := time.Now().UTC()
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return fmt.Errorf("parse rollup date: %w", err)
		}
		day = parsed
	}

	return w.svc.RollupDay(ctx, day)
}
