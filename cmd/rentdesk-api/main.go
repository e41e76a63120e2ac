package main

import (
	"context"
	"errors"
	"expvar"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rentdesk/internal/config"
	"rentdesk/internal/httpapi"
	"rentdesk/internal/hub"
	"rentdesk/internal/logging"
	"rentdesk/internal/mailbox"
	"rentdesk/internal/notify"
	"rentdesk/internal/realtime"
	"rentdesk/internal/store/postgres"
	"rentdesk/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
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

	shutdownTelemetry := telemetry.Setup("rentdesk-api", logger)
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
	h := hub.New(logger)
	sealer, err := mailbox.NewSealer(cfg.MailboxSecret)
	if err != nil {
		logger.Warn("MAILBOX_SECRET not set, mailbox passwords cannot be stored")
	}
	api := httpapi.NewHandler(st, httpapi.Options{
		SessionTTL:        cfg.SessionTTL,
		DefaultAdminFeeBP: cfg.DefaultAdminFeeBP,
		MailboxSealer:     sealer,
		Logger:            logger,
	})
	limiter, err := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		AgencyPerMinute: cfg.TenantRateLimitPerMinute,
		AgencyBurst:     cfg.TenantRateLimitBurst,
		TrustedProxies:  cfg.TrustedProxies,
	})
	if err != nil {
		logger.Fatal("rate limiter config", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle(realtime.Prefix+"/", realtime.Handler(st, h, logger))
	mux.Handle("/", api.Routes())

	handler := httpapi.LoggingMiddleware(logger, httpapi.AuthMiddleware(st, limiter.Middleware(mux)))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler, "rentdesk-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := realtime.Relay(ctx, st, h, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("realtime relay stopped", zap.Error(err))
		}
	}()

	if cfg.TicketStaleScanInterval > 0 {
		sweep := notify.NewStaleSweep(st, cfg.TicketStaleAfter, logger)
		go notify.Start(ctx, cfg.TicketStaleScanInterval, sweep, func(err error) {
			logger.Warn("stale ticket sweep failed", zap.Error(err))
		})
	}

	go func() {
		logger.Info("rentdesk-api listening", zap.String("addr", server.Addr))
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
