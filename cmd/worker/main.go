package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/db"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/metrics"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/notifications"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/queue"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/rebuild"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/storage"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/worker"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl := logger.Must(cfg.App.Env, cfg.App.LogLevel)
	defer func() { _ = zl.Sync() }()

	if cfg.Redis.Addr == "" {
		zl.Fatal("redis address is required (PORTAL_REDIS_ADDR)")
	}

	// 1. Init data files
	database, err := db.Open(cfg.Data, zl)
	if err != nil {
		zl.Fatal("failed to open data dir", zap.String("dir", cfg.Data.Dir), zap.Error(err))
	}

	// 2. Init Storage
	backend, err := storage.New(ctx, cfg.Storage, cfg.S3)
	if err != nil {
		zl.Fatal("failed to init storage backend", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}

	// 3. Init Queue
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	m := metrics.New()
	notifier := notifications.New(cfg.Notifications.SlackWebhookURL, zl)

	// 4. Init Processors
	runner := rebuild.NewRunner(database.Reports, backend, database.Archives, zl)
	rebuildProcessor := worker.NewRebuildProcessor(runner, queueClient, database.AuditLogs, m, database.BlockchainPath(), zl)
	verifyProcessor := worker.NewVerifyProcessor(database.Archives, backend, notifier, database.AuditLogs, m, zl)
	expireProcessor := worker.NewArchiveExpireProcessor(database.Archives, backend, zl)

	// 5. Start Scheduler
	scheduler := worker.NewRebuildScheduler(queueClient, zl, cfg.Worker.RebuildInterval, cfg.Worker.ArchiveRetentionDays)
	go scheduler.Run(ctx)

	// 6. Metrics endpoint
	var metricsSrv *http.Server
	if cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// 7. Start Worker Server
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
			Logger: zl.Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
				zl.Warn("task failed", zap.String("type", t.Type()), zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeChainRebuild, rebuildProcessor.ProcessTask)
	mux.HandleFunc(queue.TypeChainVerify, verifyProcessor.ProcessTask)
	mux.HandleFunc(queue.TypeArchiveExpire, expireProcessor.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			zl.Fatal("could not run worker server", zap.Error(err))
		}
	}()
	zl.Info("worker started",
		zap.String("storage", backend.Provider()),
		zap.Duration("rebuild_interval", cfg.Worker.RebuildInterval),
	)

	// 8. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down worker")
	cancel()
	srv.Shutdown()
	if metricsSrv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
