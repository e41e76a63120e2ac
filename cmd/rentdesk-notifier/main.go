package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rentdesk/internal/config"
	"rentdesk/internal/logging"
	"rentdesk/internal/notify"
	"rentdesk/internal/store/postgres"
	"rentdesk/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	workerErrors   = expvar.NewInt("notifier_worker_errors_total")
	deliveryErrors = expvar.NewInt("notifier_delivery_errors_total")
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry := telemetry.Setup("rentdesk-notifier", logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	st := postgres.NewStore(pool)

	catalog := notify.DefaultCatalog()
	if cfg.TemplateCatalogPath != "" {
		catalog, err = notify.LoadCatalog(cfg.TemplateCatalogPath)
		if err != nil {
			logger.Fatal("load templates", zap.String("path", cfg.TemplateCatalogPath), zap.Error(err))
		}
	}

	worker := notify.NewWorker(st, logger, notify.Config{
		BatchSize:     cfg.NotifyBatchSize,
		MaxAttempts:   cfg.NotifyMaxAttempts,
		PublicBaseURL: cfg.PublicBaseURL,
		Catalog:       catalog,
	})
	provider := notify.NewProvider(notify.ProviderConfig{
		Kind:       cfg.EmailProvider,
		WebhookURL: cfg.EmailWebhookURL,
		Token:      cfg.EmailWebhookToken,
	}, logger)
	deliverer := notify.NewDeliverer(st, provider, logger, notify.DeliveryConfig{
		BatchSize:   cfg.NotifyBatchSize,
		MaxAttempts: cfg.NotifyMaxAttempts,
		From:        cfg.EmailFrom,
	})

	interval := cfg.NotifyPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	go notify.Start(ctx, interval, worker, func(err error) {
		workerErrors.Add(1)
		logger.Warn("outbox batch failed", zap.Error(err))
	})
	go notify.Start(ctx, interval, deliverer, func(err error) {
		deliveryErrors.Add(1)
		logger.Warn("email delivery batch failed", zap.Error(err))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "rentdesk-notifier"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("rentdesk-notifier listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
