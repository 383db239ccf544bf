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

	"veriprint/internal/audit"
	"veriprint/internal/enrollment"
	enrollmetrics "veriprint/internal/enrollment/metrics"
	"veriprint/internal/feature"
	"veriprint/internal/matcher"
	"veriprint/internal/platform/config"
	"veriprint/internal/platform/httpserver"
	"veriprint/internal/platform/logger"
	"veriprint/internal/platform/postgres"
	"veriprint/internal/platform/redis"
	"veriprint/internal/ratelimit"
	rlstore "veriprint/internal/ratelimit/store"
	"veriprint/internal/template/codec"
	tmplmetrics "veriprint/internal/template/metrics"
	tmplservice "veriprint/internal/template/service"
	"veriprint/internal/template/store"
	httpapi "veriprint/internal/transport/http"
	"veriprint/internal/verification"
	verifymetrics "veriprint/internal/verification/metrics"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat)

	ctx := context.Background()

	keyring, err := codec.NewStaticKeyring(cfg.KeyringSecret, cfg.KeyringVersion)
	if err != nil {
		log.Error("keyring init failed", "error", err)
		os.Exit(1)
	}
	sealer := codec.New(keyring)

	// Stores fall back to in-memory when their backends are not configured,
	// which keeps local development dependency-free.
	var templateStore tmplservice.Store = store.NewInMemoryStore()
	checks := map[string]httpapi.HealthChecker{}
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		templateStore = store.NewPostgres(db.DB)
		checks["postgres"] = db
	}

	var counterStore ratelimit.CounterStore = rlstore.NewInMemoryCounterStore()
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		counterStore = rlstore.NewRedisCounterStore(redisClient.Client)
		checks["redis"] = redisClient
	}

	limiter, err := ratelimit.New(counterStore, cfg.RateLimitMax, cfg.RateLimitWindow, ratelimit.WithLogger(log))
	if err != nil {
		log.Error("rate limiter init failed", "error", err)
		os.Exit(1)
	}

	var sink audit.Sink = audit.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	publisher := audit.NewPublisher(sink, log, 256)
	defer publisher.Close()

	templates := tmplservice.New(templateStore, sealer, cfg.TemplateValidity,
		tmplservice.WithLogger(log),
		tmplservice.WithAuditPublisher(publisher),
		tmplservice.WithMetrics(tmplmetrics.New()),
	)

	extractor := feature.NewExtractor()

	verifier := verification.New(limiter, templates, extractor,
		matcher.New(cfg.SimilarityThreshold),
		cfg.CaptureMinBytes, cfg.CaptureMaxBytes,
		verification.WithLogger(log),
		verification.WithAuditPublisher(publisher),
		verification.WithMetrics(verifymetrics.New()),
	)

	enroller := enrollment.New(templates, extractor,
		cfg.MinEnrollQuality, cfg.CaptureMinBytes, cfg.CaptureMaxBytes,
		enrollment.WithLogger(log),
		enrollment.WithMetrics(enrollmetrics.New()),
	)

	handler := httpapi.New(verifier, enroller, templates, log)
	router := httpapi.NewRouter(handler, checks)
	srv := httpserver.New(cfg.Addr, router)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runSweeper(sweepCtx, log, templates, cfg.SweepInterval)

	go func() {
		log.Info("veriprint listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// runSweeper expires templates past their validity window on a fixed
// schedule until the context is cancelled.
func runSweeper(ctx context.Context, log *slog.Logger, templates *tmplservice.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := templates.SweepExpired(ctx); err != nil {
				log.ErrorContext(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}
