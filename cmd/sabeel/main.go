package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sabeel-delivery/sabeel/internal/app"
	"github.com/sabeel-delivery/sabeel/internal/cash"
	"github.com/sabeel-delivery/sabeel/internal/notify"
	"github.com/sabeel-delivery/sabeel/internal/orders"
	"github.com/sabeel-delivery/sabeel/internal/platform/cache"
	"github.com/sabeel-delivery/sabeel/internal/platform/db"
	"github.com/sabeel-delivery/sabeel/internal/recon"
	"github.com/sabeel-delivery/sabeel/internal/shared"
	"github.com/sabeel-delivery/sabeel/internal/workers"
	"github.com/sabeel-delivery/sabeel/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	gateway := notify.QueueGateway{Client: asynqClient, Queue: jobs.QueueDefault, Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)
	directory := workers.NewRepository(pool)
	workersHandler := workers.NewHandler(logger, directory)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, directory, gateway, auditLogger, logger,
		orders.ServiceConfig{RoundingStep: cfg.OrderRoundingStep})
	ordersHandler := orders.NewHandler(logger, ordersService)

	cashRepo := cash.NewRepository(pool)
	cashService := cash.NewService(cashRepo, gateway, auditLogger, logger)
	cashHandler := cash.NewHandler(logger, cashService)

	reconRepo := recon.NewRepository(pool)
	reconService := recon.NewService(reconRepo, redisClient, logger,
		recon.ServiceConfig{CacheTTL: cfg.ReconCacheTTL})
	reconHandler := recon.NewHandler(logger, reconService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		OrdersHandler:  ordersHandler,
		CashHandler:    cashHandler,
		ReconHandler:   reconHandler,
		WorkersHandler: workersHandler,
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
