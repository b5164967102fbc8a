// Package app builds the service's components from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/schoolbot/schoolbot/config"
	"github.com/schoolbot/schoolbot/internal/cache"
	"github.com/schoolbot/schoolbot/internal/corpus"
	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/embeddings"
	"github.com/schoolbot/schoolbot/internal/keyword"
	"github.com/schoolbot/schoolbot/internal/links"
	"github.com/schoolbot/schoolbot/internal/observability"
	"github.com/schoolbot/schoolbot/internal/resolver"
)

// App holds every long-lived component
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    db.Store
	Cache    cache.Client
	Provider embeddings.Provider
	Corpus   *corpus.Holder
	Resolver *resolver.Resolver
	Builder  *embeddings.Builder
}

// NewLogger builds the process logger from configuration
func NewLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
}

// New opens the store and cache and wires the resolution pipeline. The
// corpus is not loaded; call Corpus.Refresh before serving.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	c, err := NewCache(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	provider := NewProvider(cfg, c, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Cache:    c,
		Provider: provider,
		Corpus:   corpus.NewHolder(store, logger),
		Resolver: resolver.New(
			ResolverConfig(cfg),
			keyword.New(KeywordConfig(cfg)),
			links.New(LinksConfig(cfg)),
			provider,
			logger,
		),
		Builder: embeddings.NewBuilder(store, provider, embeddings.BuilderConfig{
			Concurrency:   cfg.Embeddings.Concurrency,
			PageTextLimit: cfg.Embeddings.PageTextLimit,
		}, logger),
	}, nil
}

// Close releases the store and cache
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close cache")
		}
	}
	a.Store.Close()
}

// CheckProvider verifies the embedding model is reachable. Only the Ollama
// provider can list its models; other providers pass.
func (a *App) CheckProvider(ctx context.Context) error {
	if a.Config.Embeddings.Provider != "ollama" {
		return nil
	}
	p := embeddings.NewOllamaProvider(a.Config.Embeddings.BaseURL, a.Config.Embeddings.Model, a.Config.Embeddings.Timeout)
	return p.EnsureModel(ctx)
}

// OpenStore opens the configured database
func OpenStore(cfg *config.Config) (db.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		store, err := db.New(cfg.Database.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := db.OpenSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// NewCache returns the configured cache, or nil when caching is off
func NewCache(cfg *config.Config) (cache.Client, error) {
	switch cfg.Cache.Driver {
	case "redis":
		c, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, nil
	case "memory":
		return cache.NewMemoryClient(cfg.Cache.MaxSize), nil
	default:
		return nil, nil
	}
}

// NewProvider builds the embedding provider chain: the configured backend,
// retried and throttled, then cached by content hash when c is not nil.
func NewProvider(cfg *config.Config, c cache.Client, logger zerolog.Logger) embeddings.Provider {
	var base embeddings.Provider
	switch cfg.Embeddings.Provider {
	case "openai":
		// the stock base URL and model name are Ollama's
		baseURL, model := cfg.Embeddings.BaseURL, cfg.Embeddings.Model
		def := config.Default()
		if baseURL == def.Embeddings.BaseURL {
			baseURL = ""
		}
		if model == def.Embeddings.Model {
			model = ""
		}
		base = embeddings.NewOpenAIProvider(cfg.Embeddings.APIKey, baseURL, model)
	default:
		base = embeddings.NewOllamaProvider(cfg.Embeddings.BaseURL, cfg.Embeddings.Model, cfg.Embeddings.Timeout)
	}

	var p embeddings.Provider = embeddings.NewRetrying(base, embeddings.RetryConfig{
		Attempts:      cfg.Embeddings.Retries,
		Backoff:       cfg.Embeddings.Backoff,
		RatePerSecond: cfg.Embeddings.RatePerSecond,
		Burst:         cfg.Embeddings.Burst,
	}, logger)

	if c != nil {
		p = embeddings.NewCached(p, c, cfg.Cache.TTL, logger)
	}
	return p
}

// ResolverConfig maps configuration onto the resolver
func ResolverConfig(cfg *config.Config) resolver.Config {
	r := cfg.Resolver
	return resolver.Config{
		Budget:            r.Budget,
		SemanticReserve:   r.SemanticReserve,
		LinkReserve:       r.LinkReserve,
		SemanticThreshold: r.SemanticThreshold,
		FallbackText:      r.FallbackText,
		MenuHint:          r.MenuHint,
		GreetingText:      r.GreetingText,
		RefusalText:       r.RefusalText,
		BannedWords:       r.BannedWords,
		BannedExemptions:  r.BannedExemptions,
	}
}

// KeywordConfig maps configuration onto the keyword ranker
func KeywordConfig(cfg *config.Config) keyword.Config {
	kc := keyword.Config{
		ImportantKeywords: cfg.Keyword.ImportantKeywords,
		Threshold:         cfg.Keyword.Threshold,
		SubstringScore:    cfg.Keyword.SubstringScore,
	}
	for _, r := range cfg.Keyword.Rules {
		kc.Rules = append(kc.Rules, keyword.Rule{
			Name:     r.Name,
			Markers:  r.Markers,
			Excludes: r.Excludes,
			Category: db.ParseCategory(r.Category),
			Keywords: r.Keywords,
			Score:    r.Score,
		})
	}
	return kc
}

// LinksConfig maps configuration onto the link recommender
func LinksConfig(cfg *config.Config) links.Config {
	l := cfg.Links
	return links.Config{
		MaxCards:         l.MaxCards,
		Threshold:        l.Threshold,
		RelaxedThreshold: l.RelaxedThreshold,
		BoostPerKeyword:  l.BoostPerKeyword,
		MaxBoost:         l.MaxBoost,
		SnippetWidth:     l.SnippetWidth,
	}
}
