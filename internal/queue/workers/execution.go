package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/promptdeck/promptdeck/internal/execution"
	"github.com/promptdeck/promptdeck/internal/queue"
)

// ExecutionWorker drives queued PENDING executions to a terminal state.
type ExecutionWorker struct {
	svc *execution.Service
}

func NewExecutionWorker(svc *execution.Service) *ExecutionWorker {
	return &ExecutionWorker{svc: svc}
}

func (w *ExecutionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.ExecutionRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	id, err := uuid.Parse(payload.ExecutionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}

	exec, err := w.svc.Run(ctx, id)
	if err != nil {
		return fmt.Errorf("run execution %s: %w", id, err)
	}

	slog.Info("async execution processed", "execution_id", exec.ID, "status", exec.Status)
	return nil
}

// ProcessBatch acknowledges batch tasks without scheduling anything; batch
// execution is a stub.
func (w *ExecutionWorker) ProcessBatch(_ context.Context, t *asynq.Task) error {
	var payload queue.ExecutionBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	slog.Info("batch execution not implemented, acking", "batch_id", payload.BatchID, "size", len(payload.ExecutionIDs))
	return nil
}
