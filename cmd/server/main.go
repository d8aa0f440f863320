package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/bus"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/cache"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/config"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/db"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/httpapi"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/kernel"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/outbox"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "kernel-component").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Pretty logging for local dev
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, cfg.TablePrefix); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The cache is advisory; a cold Redis must not block startup.
		log.Warn().Err(err).Msg("redis unreachable at startup, continuing without warm cache")
	}

	st := store.NewStore(pool, cfg.TablePrefix)
	objCache := cache.New(rdb, cfg.CacheTTL)
	core := kernel.NewCore(st, objCache)

	producer := bus.WithBreaker(bus.NewKafka(cfg.KafkaBrokers))
	defer producer.Close()

	dispatcher := outbox.New(st, producer, outbox.Config{
		PollInterval:     cfg.OutboxPollInterval,
		BatchSize:        cfg.OutboxBatchSize,
		Retention:        cfg.OutboxRetention,
		SweepInterval:    cfg.OutboxSweepInterval,
		DeletedRetention: cfg.DeletedRetention,
	})

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := dispatcher.Run(dispatchCtx); err != nil {
			log.Error().Err(err).Msg("outbox dispatcher stopped")
		}
	}()

	srv := &httpapi.Server{Core: core, Store: st}
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	stopDispatch()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("outbox dispatcher did not stop in time")
	}

	log.Info().Msg("server stopped")
}
