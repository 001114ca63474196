package main

import (
	"fmt"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/logging"
	"github.com/Sternrassler/mangadex-client/pkg/manga"
	"github.com/Sternrassler/mangadex-client/pkg/pagination"
	"github.com/caarlos0/env/v11"
)

// config is read from the environment.
type config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// RedisURL enables the lookup cache and shared rate limit state,
	// e.g. redis://localhost:6379/0. Empty disables both.
	RedisURL string `env:"REDIS_URL"`

	UserAgent      string `env:"USER_AGENT" envDefault:"mangadex-feed/0.1.0"`
	APIBaseURL     string `env:"MANGADEX_API_URL" envDefault:"https://api.mangadex.org"`
	UploadsBaseURL string `env:"MANGADEX_UPLOADS_URL" envDefault:"https://uploads.mangadex.org"`

	Language     string `env:"LANGUAGE" envDefault:"en"`
	PageSize     int    `env:"PAGE_SIZE" envDefault:"20"`
	InitialPages int    `env:"INITIAL_PAGES" envDefault:"1"`

	RateLimit      float64       `env:"RATE_LIMIT" envDefault:"5"`
	MaxConcurrency int64         `env:"MAX_CONCURRENCY" envDefault:"8"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT" envDefault:"0s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// loadConfig parses environ, or the process environment when environ is nil.
func loadConfig(environ map[string]string) (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.InitialPages < 0 {
		return cfg, fmt.Errorf("INITIAL_PAGES must be >= 0 (got %d)", cfg.InitialPages)
	}
	if err := cfg.query().Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c config) query() pagination.Query {
	return pagination.Query{Language: c.Language, Limit: c.PageSize}
}

func (c config) endpoints() manga.Endpoints {
	return manga.Endpoints{API: c.APIBaseURL, Uploads: c.UploadsBaseURL}
}

func (c config) loggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
