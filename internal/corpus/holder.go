package corpus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolbot/schoolbot/internal/db"
)

// Holder publishes the current snapshot to concurrent readers.
type Holder struct {
	store  db.Store
	logger zerolog.Logger
	cur    atomic.Pointer[Snapshot]
}

// NewHolder creates a holder serving an empty snapshot until the first Refresh
func NewHolder(store db.Store, logger zerolog.Logger) *Holder {
	h := &Holder{store: store, logger: logger}
	h.cur.Store(Empty())
	return h
}

// Current returns the snapshot in effect
func (h *Holder) Current() *Snapshot {
	return h.cur.Load()
}

// Refresh loads both corpora and swaps in a new snapshot. On error the
// previous snapshot stays in effect.
func (h *Holder) Refresh(ctx context.Context) (*Snapshot, error) {
	entries, err := h.store.ListQAEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load qa entries: %w", err)
	}
	qaEmb, err := h.store.ListQAEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load qa embeddings: %w", err)
	}
	pages, err := h.store.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	pageEmb, err := h.store.ListPageEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load page embeddings: %w", err)
	}

	snap := Build(entries, qaEmb, pages, pageEmb, h.logger)
	h.cur.Store(snap)

	st := snap.Stats()
	h.logger.Info().
		Int("qa_entries", st.QAEntries).
		Int("qa_vectors", st.QAVectors).
		Int("pages", st.Pages).
		Int("page_vectors", st.PageVectors).
		Msg("corpus snapshot loaded")
	return snap, nil
}

// Run refreshes every interval until ctx is done
func (h *Holder) Run(ctx context.Context, interval time.Duration) {
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
			if _, err := h.Refresh(ctx); err != nil {
				h.logger.Error().Err(err).Msg("corpus refresh failed")
			}
		}
	}
}
