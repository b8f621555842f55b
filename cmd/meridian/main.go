package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-crm/meridian/cmd/meridian/cli"
	"github.com/meridian-crm/meridian/internal/app"
	"github.com/meridian-crm/meridian/internal/crm/payments"
	"github.com/meridian-crm/meridian/internal/crm/proforma"
	"github.com/meridian-crm/meridian/internal/crm/quotations"
	"github.com/meridian-crm/meridian/internal/crm/reconcile"
	"github.com/meridian-crm/meridian/internal/platform/cache"
	"github.com/meridian-crm/meridian/internal/platform/db"
	"github.com/meridian-crm/meridian/internal/shared"
	"github.com/meridian-crm/meridian/jobs"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := cli.RunJobs(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := cache.New(cfg.RedisAddr)
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	summaryCache := reconcile.NewSummaryCache(redisClient, cfg.SummaryCacheTTL, logger)

	quotationRepo := quotations.NewRepository(dbpool)
	quotationService := quotations.NewService(quotationRepo, approvalRecorder)
	quotationService.SetCacheInvalidator(summaryCache)

	proformaRepo := proforma.NewRepository(dbpool)
	proformaService := proforma.NewService(proformaRepo, quotationService, approvalRecorder)
	proformaService.SetCacheInvalidator(summaryCache)

	paymentRepo := payments.NewRepository(dbpool)
	paymentService := payments.NewService(paymentRepo, proformaService, idempotencyStore, approvalRecorder)
	paymentService.SetCacheInvalidator(summaryCache)

	facade := reconcile.NewFacade(logger, quotationService, proformaService, paymentService, summaryCache)

	quotationHandler := quotations.NewHandler(logger, quotationService, facade)
	proformaHandler := proforma.NewHandler(logger, proformaService)
	paymentHandler := payments.NewHandler(logger, paymentService)
	reconcileHandler := reconcile.NewHandler(logger, facade)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		QuotationHandler: quotationHandler,
		ProformaHandler:  proformaHandler,
		PaymentHandler:   paymentHandler,
		ReconcileHandler: reconcileHandler,
		JobHandler:       jobHandler,
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
