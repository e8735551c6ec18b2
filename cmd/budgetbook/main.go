package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetbook/internal/auth"
	"budgetbook/internal/backend"
	"budgetbook/internal/cli"
	apphttp "budgetbook/internal/http"
	applog "budgetbook/internal/log"
	"budgetbook/internal/services"
)

func main() {
	cfg, logger := cli.MustLoad(applog.ComponentApp)
	logger.Info("Starting budgetbook", "backend", cfg.DataBackend, "port", cfg.Port)

	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).Create(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	months := services.NewMonthService(res.Backend, cfg.CacheSize, cfg.CacheTTL, logger.WithComponent(applog.ComponentCache).Slog())
	txs := services.NewTransactionService(res.Backend, months, logger.Slog())

	var verifier auth.Verifier
	if cfg.GoogleClientID != "" {
		verifier = auth.NewGoogleVerifier(cfg.GoogleClientID)
		logger.Info("Google ID token validation enabled")
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set, API calls are not authenticated")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Months:       months,
		Transactions: txs,
		Verifier:     verifier,
		Logger:       logger,
		SessionTTL:   cfg.SessionTTL,
		RateLimitRPM: cfg.RateLimitRPM,
		Currency:     cfg.CurrencySymbol,
		Ready:        backend.Ready(res.Backend),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", applog.FieldError, err)
		}
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
