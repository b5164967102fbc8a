package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// KeywordRule is a category-gated keyword rule as written in the config file
type KeywordRule struct {
	Name     string   `yaml:"name"`
	Markers  []string `yaml:"markers"`
	Excludes []string `yaml:"excludes,omitempty"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Score    float64  `yaml:"score"`
}

// Config holds application configuration
type Config struct {
	Database struct {
		Driver           string `yaml:"driver"` // postgres or sqlite
		ConnectionString string `yaml:"connection_string"`
		SQLitePath       string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Embeddings struct {
		Provider      string        `yaml:"provider"` // ollama or openai
		Model         string        `yaml:"model"`
		BaseURL       string        `yaml:"base_url"`
		APIKey        string        `yaml:"api_key,omitempty"`
		Timeout       time.Duration `yaml:"timeout"`
		Retries       int           `yaml:"retries"`
		Backoff       time.Duration `yaml:"backoff"`
		RatePerSecond float64       `yaml:"rate_per_second"`
		Burst         int           `yaml:"burst"`
		Concurrency   int           `yaml:"concurrency"`
		PageTextLimit int           `yaml:"page_text_limit"`
	} `yaml:"embeddings"`
	Cache struct {
		Driver string `yaml:"driver"` // memory, redis or none
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password,omitempty"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		TTL     time.Duration `yaml:"ttl"`
		MaxSize int           `yaml:"max_size"`
	} `yaml:"cache"`
	Resolver struct {
		Budget            time.Duration `yaml:"budget"`
		SemanticReserve   time.Duration `yaml:"semantic_reserve"`
		LinkReserve       time.Duration `yaml:"link_reserve"`
		SemanticThreshold float64       `yaml:"semantic_threshold"`
		FallbackText      string        `yaml:"fallback_text"`
		MenuHint          string        `yaml:"menu_hint"`
		GreetingText      string        `yaml:"greeting_text"`
		RefusalText       string        `yaml:"refusal_text"`
		BannedWords       []string      `yaml:"banned_words"`
		BannedExemptions  []string      `yaml:"banned_exemptions"`
	} `yaml:"resolver"`
	Keyword struct {
		Threshold         float64       `yaml:"threshold"`
		SubstringScore    float64       `yaml:"substring_score"`
		ImportantKeywords []string      `yaml:"important_keywords,omitempty"` // built-in list when empty
		Rules             []KeywordRule `yaml:"rules,omitempty"`              // built-in rules when empty
	} `yaml:"keyword"`
	Links struct {
		MaxCards         int     `yaml:"max_cards"`
		Threshold        float64 `yaml:"threshold"`
		RelaxedThreshold float64 `yaml:"relaxed_threshold"`
		BoostPerKeyword  float64 `yaml:"boost_per_keyword"`
		MaxBoost         float64 `yaml:"max_boost"`
		SnippetWidth     int     `yaml:"snippet_width"`
	} `yaml:"links"`
	Corpus struct {
		RefreshInterval time.Duration `yaml:"refresh_interval"`
	} `yaml:"corpus"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultPath returns ~/.schoolbot/config.yaml
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".schoolbot", "config.yaml")
}

// Load loads configuration from path (DefaultPath when empty), falling back to
// defaults when the file does not exist, then applies .env and environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save saves configuration to path (DefaultPath when empty)
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.ConnectionString = v
	}
	if v := os.Getenv("SCHOOLBOT_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		u, err := url.Parse(v)
		if err != nil {
			return fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		c.Cache.Driver = "redis"
		c.Cache.Redis.Addr = u.Host
		if pw, ok := u.User.Password(); ok {
			c.Cache.Redis.Password = pw
		}
		if db := filepath.Base(u.Path); db != "" && db != "/" && db != "." {
			n, err := strconv.Atoi(db)
			if err != nil {
				return fmt.Errorf("invalid redis db in REDIS_URL: %q", db)
			}
			c.Cache.Redis.DB = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		c.Server.Addr = ":" + v
	}
	return nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.ConnectionString == "" {
			return errors.New("database.connection_string is required for postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Embeddings.Provider {
	case "ollama":
	case "openai":
		if c.Embeddings.APIKey == "" {
			return errors.New("embeddings.api_key (or OPENAI_API_KEY) is required for openai")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embeddings.Provider)
	}

	switch c.Cache.Driver {
	case "memory", "none", "":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for redis")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	if c.Resolver.Budget < 0 {
		return errors.New("resolver.budget must not be negative")
	}
	if c.Links.MaxCards <= 0 {
		return errors.New("links.max_cards must be positive")
	}
	if c.Links.RelaxedThreshold > c.Links.Threshold {
		return errors.New("links.relaxed_threshold must not exceed links.threshold")
	}
	if c.Embeddings.Concurrency <= 0 {
		return errors.New("embeddings.concurrency must be positive")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	homeDir := os.Getenv("HOME")

	cfg.Database.Driver = "sqlite"
	cfg.Database.ConnectionString = "postgres://postgres@localhost/schoolbot?sslmode=disable"
	cfg.Database.SQLitePath = filepath.Join(homeDir, ".schoolbot", "school_data.db")

	cfg.Server.Addr = ":5000"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.BaseURL = "http://localhost:11434"
	cfg.Embeddings.Timeout = 30 * time.Second
	cfg.Embeddings.Retries = 3
	cfg.Embeddings.Backoff = 500 * time.Millisecond
	cfg.Embeddings.RatePerSecond = 5
	cfg.Embeddings.Burst = 5
	cfg.Embeddings.Concurrency = 4
	cfg.Embeddings.PageTextLimit = 2000

	cfg.Cache.Driver = "memory"
	cfg.Cache.Redis.Addr = "localhost:6379"
	cfg.Cache.TTL = 24 * time.Hour
	cfg.Cache.MaxSize = 10000

	cfg.Resolver.Budget = 4500 * time.Millisecond
	cfg.Resolver.SemanticReserve = 1000 * time.Millisecond
	cfg.Resolver.LinkReserve = 1200 * time.Millisecond
	cfg.Resolver.SemanticThreshold = 0.75
	cfg.Resolver.FallbackText = "죄송합니다. 해당 질문에 대한 답변을 찾을 수 없습니다. 다른 질문을 해주세요."
	cfg.Resolver.MenuHint = "아래 메뉴로 계속해 보세요!"
	cfg.Resolver.GreetingText = "무엇을 도와드릴까요?\n예) 학사일정, 오늘 급식, 가정통신문"
	cfg.Resolver.RefusalText = "부적절한 표현이 포함되어 답변할 수 없습니다. 학교 생활에 관한 질문을 해주세요."
	cfg.Resolver.BannedWords = []string{"욕설", "비속어", "폭력", "자살", "살인", "테러"}
	cfg.Resolver.BannedExemptions = []string{"학교폭력", "상담", "문의", "도움", "안내"}

	cfg.Keyword.Threshold = 0.15
	cfg.Keyword.SubstringScore = 0.3
	cfg.Links.MaxCards = 3
	cfg.Links.Threshold = 0.70
	cfg.Links.RelaxedThreshold = 0.60
	cfg.Links.BoostPerKeyword = 0.03
	cfg.Links.MaxBoost = 0.10
	cfg.Links.SnippetWidth = 120

	cfg.Corpus.RefreshInterval = 10 * time.Minute

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"

	return cfg
}
