package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/promptdeck/promptdeck/internal/analytics"
	"github.com/promptdeck/promptdeck/internal/cache"
	"github.com/promptdeck/promptdeck/internal/config"
	"github.com/promptdeck/promptdeck/internal/database"
	"github.com/promptdeck/promptdeck/internal/execution"
	"github.com/promptdeck/promptdeck/internal/llm"
	"github.com/promptdeck/promptdeck/internal/prompt"
	"github.com/promptdeck/promptdeck/internal/queue"
	"github.com/promptdeck/promptdeck/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	promptSvc := prompt.NewService(db, cache.NewCache(rdb))
	execStore := execution.NewPostgresStore(db)
	registry := llm.NewRegistry(cfg.LLM)
	execSvc := execution.NewService(promptSvc, execStore, registry, cfg.LLM.DefaultModel, cfg.LLM.RequestTimeout)
	analyticsSvc := analytics.NewService(db)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	execWorker := workers.NewExecutionWorker(execSvc)
	analyticsWorker := workers.NewAnalyticsWorker(analyticsSvc)

	mux := queue.WorkerMux{
		Run:    asynq.HandlerFunc(execWorker.ProcessTask),
		Batch:  asynq.HandlerFunc(execWorker.ProcessBatch),
		Rollup: asynq.HandlerFunc(analyticsWorker.ProcessTask),
	}.Build()

	// Nightly rollup; an empty payload means "roll up today".
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		nil,
	)
	if _, err := scheduler.Register("5 0 * * *", asynq.NewTask(queue.TypeAnalyticsRollup, []byte(`{}`))); err != nil {
		slog.Error("register rollup schedule", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			slog.Error("scheduler error", "error", err)
		}
	}()

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(mux); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
