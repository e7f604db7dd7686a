package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"go.uber.org/zap"

	"task-orchestration-service/internal/config"
	"task-orchestration-service/internal/logger"
	"task-orchestration-service/internal/task-manager/api"
	taskDB "task-orchestration-service/internal/task-manager/db"
	"task-orchestration-service/internal/task-manager/health"
	tmKafka "task-orchestration-service/internal/task-manager/kafka"
	"task-orchestration-service/internal/task-manager/registry"
	"task-orchestration-service/internal/task-manager/services"
	"task-orchestration-service/internal/task-manager/workerpool"
	gorm_db "task-orchestration-service/pkg/db"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.LoadManager()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatalw("Task Manager exited with error", logger.FieldError, err)
	}
	log.Info("Task Manager Service has been shut down.")
}

func run(cfg config.Manager, log *zap.SugaredLogger) error {
	log.Info("Task Manager Service starting...")
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	gormDB, err := gorm_db.NewGormDB(gorm_db.Config{Type: cfg.DBType, DSN: cfg.DBDSN})
	if err != nil {
		return err
	}
	if err := gorm_db.AutoMigrate(gormDB, taskDB.All()...); err != nil {
		return err
	}
	log.Infow("Database initialized", "type", cfg.DBType)

	reg := registry.New()
	targets := services.NewTargetStore(gormDB)
	templates := services.NewTemplateService(gormDB, targets, log)
	schedulerService, err := services.NewSchedulerService(templates, reg, services.SchedulerConfig{
		ToolsRoot:     cfg.ToolsRoot,
		SweepInterval: cfg.SweepInterval,
		Retention:     cfg.ExecutionRetention,
	}, log)
	if err != nil {
		return err
	}

	pool := workerpool.New(reg, schedulerService, workerpool.Config{
		Secret:       cfg.WorkerSecret,
		PingInterval: cfg.PingInterval,
	}, log)
	schedulerService.SetDispatcher(pool)

	if len(cfg.KafkaBrokers) > 0 {
		producer := tmKafka.NewEventProducer(cfg.KafkaBrokers, cfg.ResultEventsTopic, log)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tmKafka.Close(closeCtx, producer); err != nil {
				log.Errorw("Kafka producer close error", logger.FieldError, err)
			}
		}()
		services.NewResultService(producer, log).Register(schedulerService)
	} else {
		log.Info("KAFKA_BROKERS not set, execution events are not published")
	}

	if err := schedulerService.Start(appCtx); err != nil {
		return err
	}

	healthServer := health.NewServer(log)
	go func() {
		if err := healthServer.ListenAndServe(cfg.GRPCAddr); err != nil {
			log.Errorw("gRPC health server stopped", logger.FieldError, err)
		}
	}()
	go func() {
		if err := pool.ListenAndServe(cfg.WorkerAddr); err != nil {
			log.Errorw("Worker pool server stopped", logger.FieldError, err)
		}
	}()

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)
	h := server.Default(server.WithHostPorts(cfg.ServerAddr), server.WithExitWaitTime(5*time.Second))
	api.Register(h, api.Handlers{
		Templates: api.NewTaskTemplateHandler(templates, schedulerService, log),
		Tasks:     api.NewTaskHandler(schedulerService, pool, log),
		Targets:   api.NewTargetHandler(targets, templates, log),
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		log.Infow("Received signal, initiating graceful shutdown", "signal", sig.String())
		healthServer.SetServing(false)
		appCancel()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Hertz server shutdown error", logger.FieldError, err)
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Worker pool shutdown error", logger.FieldError, err)
		}
		schedulerService.Stop()
		healthServer.Stop()
	}()

	healthServer.SetServing(true)
	log.Infow("Task Manager Service fully initialized",
		"http_addr", cfg.ServerAddr,
		"worker_addr", cfg.WorkerAddr,
		"grpc_addr", cfg.GRPCAddr,
	)
	h.Spin()
	<-stopped
	return nil
}
