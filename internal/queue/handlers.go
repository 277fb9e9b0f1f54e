package queue

import "github.com/hibiken/asynq"

// WorkerMux binds the three task types this system processes to their
// handlers. A nil field panics at startup rather than silently dropping
// tasks of that type.
type WorkerMux struct {
	Run    asynq.Handler // execution:run
	Batch  asynq.Handler // execution:batch
	Rollup asynq.Handler // analytics:rollup
}

// Build assembles the asynq routing table for the worker process.
func (m WorkerMux) Build() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeExecutionRun, m.Run)
	mux.Handle(TypeExecutionBatch, m.Batch)
	mux.Handle(TypeAnalyticsRollup, m.Rollup)
	return mux
}
