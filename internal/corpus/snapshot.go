package corpus

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/vector"
)

// ErrCorpusEmpty is reported when a stage has nothing to search
var ErrCorpusEmpty = errors.New("corpus empty")

// Snapshot is an immutable view of both corpora and their vectors. A refresh
// builds a new Snapshot; existing ones are never modified.
type Snapshot struct {
	QA          *QAStore
	QAVectors   []vector.Item
	Pages       []db.Page
	PageVectors map[int64][]float32
	LoadedAt    time.Time
}

// Build assembles a snapshot. Vectors that are malformed or whose entry is
// unknown are left out and logged.
func Build(entries []db.QAEntry, qaEmb []db.QAEmbedding, pages []db.Page, pageEmb []db.PageEmbedding, logger zerolog.Logger) *Snapshot {
	snap := &Snapshot{
		QA:          NewQAStore(entries),
		Pages:       append([]db.Page(nil), pages...),
		PageVectors: make(map[int64][]float32, len(pageEmb)),
		LoadedAt:    time.Now(),
	}

	for _, e := range qaEmb {
		if err := usable(e.Vector, e.DecodeErr); err != nil {
			logger.Warn().Err(err).
				Str("error_kind", "malformed_vector").
				Int64("qa_id", e.QAID).
				Msg("skipping qa embedding")
			continue
		}
		if _, ok := snap.QA.Get(e.QAID); !ok {
			logger.Debug().Int64("qa_id", e.QAID).Msg("skipping orphaned qa embedding")
			continue
		}
		snap.QAVectors = append(snap.QAVectors, vector.Item{Key: e.QAID, Vector: e.Vector})
	}

	known := make(map[int64]bool, len(pages))
	for _, p := range pages {
		known[p.ID] = true
	}
	for _, e := range pageEmb {
		if err := usable(e.Vector, e.DecodeErr); err != nil {
			logger.Warn().Err(err).
				Str("error_kind", "malformed_vector").
				Int64("page_id", e.PageID).
				Msg("skipping page embedding")
			continue
		}
		if !known[e.PageID] {
			logger.Debug().Int64("page_id", e.PageID).Msg("skipping orphaned page embedding")
			continue
		}
		snap.PageVectors[e.PageID] = e.Vector
	}

	return snap
}

// Empty returns a snapshot with no data
func Empty() *Snapshot {
	return Build(nil, nil, nil, nil, zerolog.Nop())
}

func usable(v []float32, decodeErr error) error {
	if decodeErr != nil {
		return errors.Join(vector.ErrMalformedVector, decodeErr)
	}
	return vector.Validate(v)
}

// Stats summarizes snapshot sizes
type Stats struct {
	QAEntries   int       `json:"qa_entries"`
	QAVectors   int       `json:"qa_vectors"`
	Pages       int       `json:"pages"`
	PageVectors int       `json:"page_vectors"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Stats returns the snapshot sizes
func (s *Snapshot) Stats() Stats {
	return Stats{
		QAEntries:   s.QA.Len(),
		QAVectors:   len(s.QAVectors),
		Pages:       len(s.Pages),
		PageVectors: len(s.PageVectors),
		LoadedAt:    s.LoadedAt,
	}
}
