package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sabeel-delivery/sabeel/internal/app"
	"github.com/sabeel-delivery/sabeel/internal/cash"
	"github.com/sabeel-delivery/sabeel/internal/notify"
	"github.com/sabeel-delivery/sabeel/internal/platform/cache"
	"github.com/sabeel-delivery/sabeel/internal/platform/db"
	"github.com/sabeel-delivery/sabeel/internal/recon"
	"github.com/sabeel-delivery/sabeel/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	// Terminal delivery transport for the dispatch queue. Push and socket
	// transports slot in here without touching the emitting services.
	gateway := notify.LogGateway{Logger: logger}

	cashRepo := cash.NewRepository(pool)
	reconRepo := recon.NewRepository(pool)
	reconService := recon.NewService(reconRepo, redisClient, logger,
		recon.ServiceConfig{CacheTTL: cfg.ReconCacheTTL})

	digestJob := jobs.NewCashDigestJob(cashRepo, gateway, redisClient, logger)
	largeJob := jobs.NewCashLargeScanJob(cashRepo, gateway, redisClient, logger, cfg.LargeShortageThreshold)
	unresolvedJob := jobs.NewCashUnresolvedScanJob(cashRepo, gateway, redisClient, logger, cfg.UnresolvedShortageAfter)
	reportJob := jobs.NewReportDigestJob(reconService, gateway, logger)
	dispatchJob := jobs.NewDispatchJob(gateway, logger)

	digestTask, err := jobs.NewScanTask(jobs.TaskCashDigestDaily, jobs.ScanPayload{})
	if err != nil {
		logger.Error("build digest task", slog.Any("error", err))
		os.Exit(1)
	}
	largeTask, err := jobs.NewScanTask(jobs.TaskCashLargeScan, jobs.ScanPayload{})
	if err != nil {
		logger.Error("build large scan task", slog.Any("error", err))
		os.Exit(1)
	}
	unresolvedTask, err := jobs.NewScanTask(jobs.TaskCashUnresolvedScan, jobs.ScanPayload{})
	if err != nil {
		logger.Error("build unresolved scan task", slog.Any("error", err))
		os.Exit(1)
	}
	dailyReportTask := asynq.NewTask(jobs.TaskReportDaily, nil)
	weeklyReportTask := asynq.NewTask(jobs.TaskReportWeekly, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCashDigestDaily, Handler: digestJob.Handle},
			{Type: jobs.TaskCashLargeScan, Handler: largeJob.Handle},
			{Type: jobs.TaskCashUnresolvedScan, Handler: unresolvedJob.Handle},
			{Type: jobs.TaskReportDaily, Handler: reportJob.HandleDaily},
			{Type: jobs.TaskReportWeekly, Handler: reportJob.HandleWeekly},
			{Type: notify.TaskTypeDispatch, Handler: dispatchJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 23 * * *", Task: digestTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: largeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 8,20 * * *", Task: unresolvedTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 7 * * *", Task: dailyReportTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 7 * * 1", Task: weeklyReportTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
