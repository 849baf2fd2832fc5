// Command gateway starts the AI mediation pipeline and its ops HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/polisim/ai-gateway/internal/adapter/ai/offline"
	"github.com/polisim/ai-gateway/internal/adapter/ai/real"
	"github.com/polisim/ai-gateway/internal/adapter/events"
	"github.com/polisim/ai-gateway/internal/adapter/httpserver"
	"github.com/polisim/ai-gateway/internal/adapter/observability"
	"github.com/polisim/ai-gateway/internal/adapter/secrets"
	"github.com/polisim/ai-gateway/internal/config"
	"github.com/polisim/ai-gateway/internal/domain"
	"github.com/polisim/ai-gateway/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secretProvider := secrets.NewEnvProvider()
	if _, ok := secretProvider.GetSecret(cfg.BackendKeyName); !ok {
		slog.Warn("backend credential not configured; running on offline fallbacks",
			slog.String("secret", cfg.BackendKeyName))
	}

	fallback, err := offline.New(cfg.FallbackCacheSize, cfg.FallbackCacheTTL)
	if err != nil {
		slog.Error("fallback generator init failed", slog.Any("error", err))
		os.Exit(1)
	}

	var sink domain.EventSink = events.NewLogSink()
	if cfg.EventsEnabled {
		producer, err := events.NewProducer(ctx, cfg.KafkaBrokers, cfg.EventsTopic)
		if err != nil {
			slog.Error("events producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer producer.Close()
		sink = producer
	}

	svc := usecase.New(cfg, usecase.Deps{
		AI:       real.New(cfg, secretProvider),
		Fallback: fallback,
		Secrets:  secretProvider,
		Events:   sink,
	})
	svc.Start()
	defer svc.Close()

	// The ops server doubles as the host tick while the gateway runs
	// standalone; embedded deployments drive svc.Tick from their own loop.
	go func() {
		ticker := time.NewTicker(cfg.BatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				svc.Tick()
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpserver.BuildRouter(svc, secretProvider, cfg.BackendKeyName),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("ops server listening", slog.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("ops server shutdown failed", slog.Any("error", err))
	}
}
