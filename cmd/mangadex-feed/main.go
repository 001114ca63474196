// Command mangadex-feed keeps a growing collection of complete MangaDex
// manga (title, description, author, cover) and serves it over HTTP.
//
// Endpoints:
//
//	GET  /health          liveness
//	GET  /manga           completed manga (?since=N for the tail)
//	POST /manga/more      request the next listing page
//	GET  /manga/pending   manga waiting for enrichment (?older_than=30s)
//	GET  /metrics         Prometheus metrics
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

	"github.com/Sternrassler/mangadex-client/pkg/client"
	"github.com/Sternrassler/mangadex-client/pkg/join"
	"github.com/Sternrassler/mangadex-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("mangadex-feed failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Setup(cfg.loggingConfig())
	logger := logging.NewLogger(logging.ComponentFeed)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	clientCfg := client.DefaultConfig(redisClient, cfg.UserAgent)
	clientCfg.RateLimit = cfg.RateLimit
	mdx, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create mangadex client: %w", err)
	}
	defer mdx.Close()

	engine, err := join.New(mdx, join.Config{
		Endpoints:      cfg.endpoints(),
		Query:          cfg.query(),
		MaxConcurrency: cfg.MaxConcurrency,
		FetchTimeout:   cfg.FetchTimeout,
		Shards:         join.DefaultShards,
	})
	if err != nil {
		return fmt.Errorf("create join engine: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           (&server{engine: engine, logger: logger}).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Str("user_agent", cfg.UserAgent).
			Bool("cache", redisClient != nil).
			Msg("Starting mangadex-feed")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return loadInitialPages(gctx, engine, cfg.InitialPages, logger)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("Shutting down")

		engine.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := engine.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("In-flight fetches did not finish before shutdown")
		}
		return nil
	})

	return g.Wait()
}

// loadInitialPages loads n pages one after the other. Each page waits for the
// previous one so that it starts at the next offset.
func loadInitialPages(ctx context.Context, engine *join.Engine, n int, logger zerolog.Logger) error {
	for i := 0; i < n; i++ {
		offset, err := engine.RequestPage(ctx)
		if err != nil {
			if errors.Is(err, join.ErrClosed) {
				return nil
			}
			return err
		}
		if err := engine.Wait(ctx); err != nil {
			return nil
		}
		logger.Info().
			Int("page", i+1).
			Int("offset", offset).
			Int("completed", engine.Len()).
			Msg("Initial page loaded")
	}
	return nil
}
