package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/greenpass/greenpass/internal/app"
	"github.com/greenpass/greenpass/internal/batch"
	"github.com/greenpass/greenpass/internal/invoice"
	"github.com/greenpass/greenpass/internal/observability"
	"github.com/greenpass/greenpass/internal/passport"
	"github.com/greenpass/greenpass/internal/platform/cache"
	"github.com/greenpass/greenpass/internal/platform/db"
	"github.com/greenpass/greenpass/internal/purchase"
	"github.com/greenpass/greenpass/internal/quotation"
	"github.com/greenpass/greenpass/internal/reconciliation"
	"github.com/greenpass/greenpass/internal/settings"
	"github.com/greenpass/greenpass/internal/shared"
	"github.com/greenpass/greenpass/internal/voucher"
	"github.com/greenpass/greenpass/jobs"
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
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	defaults, err := cfg.Settings()
	if err != nil {
		return err
	}
	codec, err := cfg.PassportCodec()
	if err != nil {
		return err
	}
	if _, plain := codec.(passport.PlainCodec); plain {
		logger.Warn("PII_KEY not set, passport snapshots are stored unencrypted")
	}

	pool, err := db.New(ctx, cfg.Database())
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient := jobs.NewClient(cfg.Redis().Asynq(), logger)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(cfg.Redis().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	settingsStore := settings.NewStore(pool, defaults, logger)
	approvals := shared.NewApprovalRecorder(pool, logger)

	invoiceService := invoice.NewService(invoice.NewRepository(pool), logger)
	quotationService := quotation.NewService(quotation.NewRepository(pool), logger,
		quotation.WithPublisher(jobClient),
		quotation.WithApprovals(approvals),
	)
	voucherService := voucher.NewService(voucher.NewRepository(pool, codec), logger,
		voucher.WithPublisher(jobClient),
		voucher.WithRecorder(metrics),
	)
	batchService := batch.NewService(batch.NewRepository(pool, codec), logger,
		batch.WithPublisher(jobClient),
		batch.WithRecorder(metrics),
		batch.WithCodeGenerator(voucher.NewCodeGenerator()),
	)
	purchaseService := purchase.NewService(purchase.NewRepository(pool, codec), batchService, logger,
		purchase.WithTTL(cfg.PurchaseSessionTTL),
	)
	if cfg.PaymentWebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set, online purchases cannot complete")
	}
	reconciliationService := reconciliation.NewService(reconciliation.NewRepository(pool), logger,
		invoiceService,
		reconciliation.LedgerFunc(batchService.DirectSaleCash),
	)
	reconciliationService.SetApprovals(approvals)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		Metrics:               metrics,
		Idempotency:           shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL),
		Ready:                 pool.Ping,
		QuotationHandler:      quotation.NewHandler(logger, quotationService, settingsStore),
		InvoiceHandler:        invoice.NewHandler(logger, invoiceService, settingsStore),
		BatchHandler:          batch.NewHandler(logger, batchService, settingsStore),
		VoucherHandler:        voucher.NewHandler(logger, voucherService),
		PurchaseHandler:       purchase.NewHandler(logger, purchaseService, settingsStore, cfg.PaymentWebhookSecret),
		ReconciliationHandler: reconciliation.NewHandler(logger, reconciliationService),
		JobHandler:            jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
