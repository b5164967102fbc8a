package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolbot/schoolbot/internal/cache"
)

// Cached serves repeated query embeddings from a cache. Cache failures fall
// through to the provider.
type Cached struct {
	next   Provider
	cache  cache.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps next
func NewCached(next Provider, c cache.Client, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, logger: logger}
}

// Model returns the wrapped provider's model
func (c *Cached) Model() string {
	return c.next.Model()
}

// Embed returns the cached vector for the exact trimmed text, or computes
// and stores one.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key("emb", c.next.Model(), queryKey(text))

	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var vec []float32
		if jerr := json.Unmarshal(data, &vec); jerr == nil && len(vec) > 0 {
			return vec, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cached embedding")
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn().Err(err).Msg("embedding cache get failed")
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("embedding cache set failed")
		}
	}
	return vec, nil
}

// queryKey hashes the trimmed text. Unlike ContentHash it keeps stop words
// and particles, so distinct utterances never share a vector.
func queryKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
