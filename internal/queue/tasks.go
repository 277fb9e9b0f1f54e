package queue

const (
	TypeExecutionRun    = "execution:run"
	TypeExecutionBatch  = "execution:batch"
	TypeAnalyticsRollup = "analytics:rollup"
)

type ExecutionRunPayload struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionBatchPayload is accepted but batch scheduling itself is a stub.
type ExecutionBatchPayload struct {
	BatchID      string   `json:"batch_id"`
	ExecutionIDs []string `json:"execution_ids"`
}

type AnalyticsRollupPayload struct {
	Date string `json:"date"` // YYYY-MM-DD
}
