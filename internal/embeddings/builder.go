package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/vector"
)

// Outcome of bringing one stored vector up to date
type Outcome int

const (
	Skipped Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "skipped"
	}
}

// BuildStats summarizes an incremental build
type BuildStats struct {
	Created  int64         `json:"created"`
	Updated  int64         `json:"updated"`
	Skipped  int64         `json:"skipped"`
	Failed   int64         `json:"failed"`
	Pruned   int64         `json:"pruned"`
	Duration time.Duration `json:"duration"`
}

func (s BuildStats) String() string {
	return fmt.Sprintf("created %d / updated %d / skipped %d / failed %d / pruned %d",
		s.Created, s.Updated, s.Skipped, s.Failed, s.Pruned)
}

type counters struct {
	created, updated, skipped, failed atomic.Int64
}

func (c *counters) record(o Outcome) {
	switch o {
	case Created:
		c.created.Add(1)
	case Updated:
		c.updated.Add(1)
	default:
		c.skipped.Add(1)
	}
}

func (c *counters) stats() BuildStats {
	return BuildStats{
		Created: c.created.Load(),
		Updated: c.updated.Load(),
		Skipped: c.skipped.Load(),
		Failed:  c.failed.Load(),
	}
}

// BuilderConfig tunes incremental builds
type BuilderConfig struct {
	Concurrency   int
	PageTextLimit int // runes of title+content sent to the provider
}

// Builder keeps stored QA and page vectors in step with their text. It only
// calls the provider for rows whose text changed.
type Builder struct {
	store    db.Store
	provider Provider
	cfg      BuilderConfig
	logger   zerolog.Logger
}

// NewBuilder creates a builder
func NewBuilder(store db.Store, provider Provider, cfg BuilderConfig, logger zerolog.Logger) *Builder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PageTextLimit <= 0 {
		cfg.PageTextLimit = 2000
	}
	return &Builder{store: store, provider: provider, cfg: cfg, logger: logger}
}

// EnsureCurrent returns the stored vector for qaID when its hash matches
// text, otherwise embeds text and stores vector, hash and timestamp in one
// write. On provider failure the stored row is left untouched.
func (b *Builder) EnsureCurrent(ctx context.Context, qaID int64, text string) ([]float32, error) {
	vec, _, err := b.ensureQA(ctx, qaID, text)
	return vec, err
}

func (b *Builder) ensureQA(ctx context.Context, qaID int64, text string) ([]float32, Outcome, error) {
	hash := ContentHash(text)

	existing, err := b.store.GetQAEmbedding(ctx, qaID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, Skipped, fmt.Errorf("failed to load embedding %d: %w", qaID, err)
	}

	if existing != nil && existing.ContentHash == hash && existing.DecodeErr == nil &&
		vector.Validate(existing.Vector) == nil {
		return existing.Vector, Skipped, nil
	}

	vec, err := b.provider.Embed(ctx, text)
	if err != nil {
		return nil, Skipped, fmt.Errorf("failed to embed qa %d: %w", qaID, err)
	}
	if err := vector.Validate(vec); err != nil {
		return nil, Skipped, fmt.Errorf("provider returned unusable vector for qa %d: %w", qaID, err)
	}

	emb := &db.QAEmbedding{
		QAID:        qaID,
		Vector:      vec,
		ContentHash: hash,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := b.store.UpsertQAEmbedding(ctx, emb); err != nil {
		return nil, Skipped, err
	}

	if existing == nil {
		return vec, Created, nil
	}
	return vec, Updated, nil
}

// BuildQA brings every QA vector up to date, then prunes vectors whose entry
// is gone. Per-entry failures are counted and logged, not returned.
func (b *Builder) BuildQA(ctx context.Context) (BuildStats, error) {
	start := time.Now()

	entries, err := b.store.ListQAEntries(ctx)
	if err != nil {
		return BuildStats{}, fmt.Errorf("failed to list qa entries: %w", err)
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for _, e := range entries {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, outcome, err := b.ensureQA(gctx, e.ID, e.Question)
			if err != nil {
				c.failed.Add(1)
				b.logger.Warn().Err(err).
					Str("error_kind", errorKind(err)).
					Int64("qa_id", e.ID).
					Msg("qa embedding failed")
				return nil
			}
			c.record(outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c.stats(), err
	}

	stats := c.stats()
	stats.Pruned, err = b.store.PruneQAEmbeddings(ctx)
	if err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)

	b.logger.Info().
		Int64("created", stats.Created).
		Int64("updated", stats.Updated).
		Int64("skipped", stats.Skipped).
		Int64("failed", stats.Failed).
		Int64("pruned", stats.Pruned).
		Dur("duration", stats.Duration).
		Msg("qa embeddings built")
	return stats, nil
}

// BuildPages embeds pages that have no vector or were re-fetched since their
// vector was built, then prunes vectors whose page is gone.
func (b *Builder) BuildPages(ctx context.Context) (BuildStats, error) {
	start := time.Now()

	pages, err := b.store.ListPages(ctx)
	if err != nil {
		return BuildStats{}, fmt.Errorf("failed to list pages: %w", err)
	}
	stored, err := b.store.ListPageEmbeddings(ctx)
	if err != nil {
		return BuildStats{}, fmt.Errorf("failed to list page embeddings: %w", err)
	}
	existing := make(map[int64]db.PageEmbedding, len(stored))
	for _, e := range stored {
		existing[e.PageID] = e
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for _, p := range pages {
		prev, had := existing[p.ID]
		if had && prev.DecodeErr == nil && vector.Validate(prev.Vector) == nil && prev.FetchedAt.Equal(p.FetchedAt) {
			c.record(Skipped)
			continue
		}

		text := PageText(p, b.cfg.PageTextLimit)
		if text == "" {
			c.record(Skipped)
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			vec, err := b.provider.Embed(gctx, text)
			if err == nil {
				err = vector.Validate(vec)
			}
			if err == nil {
				err = b.store.UpsertPageEmbedding(gctx, &db.PageEmbedding{
					PageID:    p.ID,
					Vector:    vec,
					FetchedAt: p.FetchedAt,
					UpdatedAt: time.Now().UTC(),
				})
			}
			if err != nil {
				c.failed.Add(1)
				b.logger.Warn().Err(err).
					Str("error_kind", errorKind(err)).
					Int64("page_id", p.ID).
					Str("url", p.URL).
					Msg("page embedding failed")
				return nil
			}
			if had {
				c.record(Updated)
			} else {
				c.record(Created)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c.stats(), err
	}

	stats := c.stats()
	stats.Pruned, err = b.store.PrunePageEmbeddings(ctx)
	if err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)

	b.logger.Info().
		Int64("created", stats.Created).
		Int64("updated", stats.Updated).
		Int64("skipped", stats.Skipped).
		Int64("failed", stats.Failed).
		Int64("pruned", stats.Pruned).
		Dur("duration", stats.Duration).
		Msg("page embeddings built")
	return stats, nil
}

// PageText is the text embedded for a page: title and content, cut to limit runes
func PageText(p db.Page, limit int) string {
	text := strings.TrimSpace(strings.TrimSpace(p.Title) + "\n" + strings.TrimSpace(p.Content))
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	return text
}

func errorKind(err error) string {
	var pe *ProviderError
	switch {
	case errors.As(err, &pe):
		return "provider_error"
	case errors.Is(err, vector.ErrMalformedVector):
		return "malformed_vector"
	default:
		return "store_error"
	}
}
