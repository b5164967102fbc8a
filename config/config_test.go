package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "SCHOOLBOT_DB_DRIVER", "SQLITE_PATH", "OPENAI_API_KEY",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT", "PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4500*time.Millisecond, cfg.Resolver.Budget)
	assert.Equal(t, 0.75, cfg.Resolver.SemanticThreshold)
	assert.Equal(t, 0.15, cfg.Keyword.Threshold)
	assert.Equal(t, 3, cfg.Links.MaxCards)
	assert.Empty(t, cfg.Keyword.Rules)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Embeddings.Model, cfg.Embeddings.Model)
}

func TestSaveThenLoad(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Resolver.Budget = 3 * time.Second
	cfg.Links.RelaxedThreshold = 0.55
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, loaded.Resolver.Budget)
	assert.Equal(t, 0.55, loaded.Links.RelaxedThreshold)
	assert.Equal(t, cfg.Resolver.BannedWords, loaded.Resolver.BannedWords)
}

func TestLoadKeywordRules(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `keyword:
  threshold: 0.2
  rules:
    - name: meal
      markers: [급식]
      category: meal
      keywords: [메뉴, 식단]
      score: 0.7
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.Keyword.Threshold)
	require.Len(t, cfg.Keyword.Rules, 1)
	assert.Equal(t, KeywordRule{
		Name:     "meal",
		Markers:  []string{"급식"},
		Category: "meal",
		Keywords: []string{"메뉴", "식단"},
		Score:    0.7,
	}, cfg.Keyword.Rules[0])
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolver:\n  budget: 2s\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Resolver.Budget)
	assert.Equal(t, 1200*time.Millisecond, cfg.Resolver.LinkReserve)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("SCHOOLBOT_DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u@db/school")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_URL", "redis://:secret@cache:6380/2")
	t.Setenv("PORT", "8080")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u@db/school", cfg.Database.ConnectionString)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6380", cfg.Cache.Redis.Addr)
	assert.Equal(t, "secret", cfg.Cache.Redis.Password)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverrideRejectsBadPort(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "http")

	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"openai without key", func(c *Config) { c.Embeddings.Provider = "openai"; c.Embeddings.APIKey = "" }},
		{"relaxed above strict", func(c *Config) { c.Links.RelaxedThreshold = 0.9 }},
		{"no cards", func(c *Config) { c.Links.MaxCards = 0 }},
		{"negative budget", func(c *Config) { c.Resolver.Budget = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
