package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbot/schoolbot/config"
	"github.com/schoolbot/schoolbot/internal/cache"
	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/embeddings"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "school_data.db")
	return cfg
}

func TestNewWiresSQLiteApp(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Resolver)
	assert.NotNil(t, a.Builder)
	assert.IsType(t, &embeddings.Cached{}, a.Provider)
	assert.IsType(t, &cache.MemoryClient{}, a.Cache)

	snap, err := a.Corpus.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.QA.Len())

	counts, err := a.Store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.QAEntries)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := New(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewCacheDrivers(t *testing.T) {
	cfg := testConfig(t)

	cfg.Cache.Driver = "none"
	c, err := NewCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, c)

	cfg.Cache.Driver = "memory"
	c, err = NewCache(cfg)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NoError(t, c.Close())
}

func TestNewProviderChain(t *testing.T) {
	cfg := testConfig(t)

	p := NewProvider(cfg, nil, zerolog.Nop())
	assert.IsType(t, &embeddings.Retrying{}, p)
	assert.Equal(t, "nomic-embed-text", p.Model())

	cfg.Embeddings.Provider = "openai"
	cfg.Embeddings.APIKey = "sk-test"
	p = NewProvider(cfg, nil, zerolog.Nop())
	assert.Equal(t, embeddings.DefaultOpenAIModel, p.Model())
}

func TestKeywordConfigMapsRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keyword.Rules = []config.KeywordRule{
		{Name: "meal", Markers: []string{"급식"}, Category: "급식", Keywords: []string{"메뉴"}, Score: 0.9},
	}

	kc := KeywordConfig(cfg)
	require.Len(t, kc.Rules, 1)
	assert.Equal(t, db.CategoryMeal, kc.Rules[0].Category)
	assert.Equal(t, 0.15, kc.Threshold)

	assert.Empty(t, KeywordConfig(testConfig(t)).Rules)
}

func TestResolverAndLinksConfig(t *testing.T) {
	cfg := testConfig(t)

	rc := ResolverConfig(cfg)
	assert.Equal(t, cfg.Resolver.Budget, rc.Budget)
	assert.Equal(t, 0.75, rc.SemanticThreshold)

	lc := LinksConfig(cfg)
	assert.Equal(t, 3, lc.MaxCards)
	assert.Equal(t, 0.60, lc.RelaxedThreshold)
}
