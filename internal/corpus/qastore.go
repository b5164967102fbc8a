// Package corpus holds immutable snapshots of the QA and page corpora.
package corpus

import (
	"strings"

	"github.com/schoolbot/schoolbot/internal/db"
)

// QAStore is a read-only view over curated QA entries, in corpus order.
type QAStore struct {
	entries []db.QAEntry
	lowered []string
	byID    map[int64]int
}

// NewQAStore copies entries into a new store
func NewQAStore(entries []db.QAEntry) *QAStore {
	s := &QAStore{
		entries: make([]db.QAEntry, len(entries)),
		lowered: make([]string, len(entries)),
		byID:    make(map[int64]int, len(entries)),
	}
	copy(s.entries, entries)
	for i, e := range s.entries {
		s.lowered[i] = fold(e.Question)
		if _, dup := s.byID[e.ID]; !dup {
			s.byID[e.ID] = i
		}
	}
	return s
}

// Len returns the number of entries
func (s *QAStore) Len() int {
	return len(s.entries)
}

// Entries returns the entries in corpus order. Callers must not modify them.
func (s *QAStore) Entries() []db.QAEntry {
	return s.entries
}

// Get looks up an entry by id
func (s *QAStore) Get(id int64) (db.QAEntry, bool) {
	i, ok := s.byID[id]
	if !ok {
		return db.QAEntry{}, false
	}
	return s.entries[i], true
}

// ExactMatch returns the first entry whose question equals the utterance
// after trimming and lower-casing. No other normalization is applied.
func (s *QAStore) ExactMatch(utterance string) (db.QAEntry, bool) {
	u := fold(utterance)
	if u == "" {
		return db.QAEntry{}, false
	}
	for i, q := range s.lowered {
		if q == u {
			return s.entries[i], true
		}
	}
	return db.QAEntry{}, false
}

// SubstringCandidates returns every entry whose question contains the
// utterance or is contained in it, in corpus order.
func (s *QAStore) SubstringCandidates(utterance string) []db.QAEntry {
	u := fold(utterance)
	if u == "" {
		return nil
	}
	var out []db.QAEntry
	for i, q := range s.lowered {
		if q == "" {
			continue
		}
		if strings.Contains(q, u) || strings.Contains(u, q) {
			out = append(out, s.entries[i])
		}
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
