package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"task-orchestration-service/internal/config"
	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/task-worker/executors"
	"task-orchestration-service/internal/task-worker/runtime"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	if err := os.MkdirAll(cfg.ToolsRoot, 0o755); err != nil {
		log.Fatalw("Failed to create tools root", "root", cfg.ToolsRoot, logger.FieldError, err)
	}

	runID := uuid.NewString()
	log.Infow("Starting Task Worker", "run_id", runID, "manager", cfg.ManagerURL, "max_concurrent", cfg.MaxConcurrent)

	executor := executors.NewShellExecutor(cfg.Shell, cfg.ToolsRoot, runID, cfg.TaskTimeout, log)
	client := runtime.NewClient(runtime.Config{
		ManagerURL:    cfg.ManagerURL,
		Secret:        cfg.WorkerSecret,
		Name:          cfg.Name,
		ToolsRoot:     cfg.ToolsRoot,
		MaxConcurrent: cfg.MaxConcurrent,
		Aggressive:    cfg.AggressiveTasks,
	}, executor, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil {
		log.Errorw("Task Worker stopped", logger.FieldError, err)
		stop()
		os.Exit(1)
	}
	log.Info("Task Worker shut down.")
}
