// Package dbtest provides an in-memory db.Store for tests.
package dbtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/schoolbot/schoolbot/internal/db"
)

// MemStore is a goroutine-safe in-memory db.Store.
type MemStore struct {
	mu      sync.Mutex
	entries []db.QAEntry
	qaEmb   map[int64]db.QAEmbedding
	pages   []db.Page
	pageEmb map[int64]db.PageEmbedding

	Err     error // returned by every call when set
	Upserts int
}

var _ db.Store = (*MemStore)(nil)

// New creates an empty store
func New() *MemStore {
	return &MemStore{
		qaEmb:   make(map[int64]db.QAEmbedding),
		pageEmb: make(map[int64]db.PageEmbedding),
	}
}

// AddQA appends entries, assigning ids when zero
func (m *MemStore) AddQA(entries ...db.QAEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.ID == 0 {
			e.ID = int64(len(m.entries) + 1)
		}
		m.entries = append(m.entries, e)
	}
}

// RemoveQA deletes an entry by id
func (m *MemStore) RemoveQA(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// AddPages appends pages, assigning ids when zero
func (m *MemStore) AddPages(pages ...db.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pages {
		if p.ID == 0 {
			p.ID = int64(len(m.pages) + 1)
		}
		m.pages = append(m.pages, p)
	}
}

// SetPage replaces the page with the same id
func (m *MemStore) SetPage(p db.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pages {
		if m.pages[i].ID == p.ID {
			m.pages[i] = p
		}
	}
}

func (m *MemStore) ListQAEntries(ctx context.Context) ([]db.QAEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]db.QAEntry(nil), m.entries...), nil
}

func (m *MemStore) ListQAEmbeddings(ctx context.Context) ([]db.QAEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]db.QAEmbedding, 0, len(m.qaEmb))
	for _, e := range m.qaEmb {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QAID < out[j].QAID })
	return out, nil
}

func (m *MemStore) GetQAEmbedding(ctx context.Context, qaID int64) (*db.QAEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.qaEmb[qaID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &e, nil
}

func (m *MemStore) UpsertQAEmbedding(ctx context.Context, emb *db.QAEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if emb.UpdatedAt.IsZero() {
		emb.UpdatedAt = time.Now().UTC()
	}
	e := *emb
	e.Vector = append([]float32(nil), emb.Vector...)
	m.qaEmb[emb.QAID] = e
	m.Upserts++
	return nil
}

func (m *MemStore) PruneQAEmbeddings(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	live := make(map[int64]bool, len(m.entries))
	for _, e := range m.entries {
		live[e.ID] = true
	}
	var n int64
	for id := range m.qaEmb {
		if !live[id] {
			delete(m.qaEmb, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ListPages(ctx context.Context) ([]db.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]db.Page(nil), m.pages...), nil
}

func (m *MemStore) ListPageEmbeddings(ctx context.Context) ([]db.PageEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]db.PageEmbedding, 0, len(m.pageEmb))
	for _, e := range m.pageEmb {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

func (m *MemStore) GetPageEmbedding(ctx context.Context, pageID int64) (*db.PageEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.pageEmb[pageID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &e, nil
}

func (m *MemStore) UpsertPageEmbedding(ctx context.Context, emb *db.PageEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if emb.UpdatedAt.IsZero() {
		emb.UpdatedAt = time.Now().UTC()
	}
	e := *emb
	e.Vector = append([]float32(nil), emb.Vector...)
	m.pageEmb[emb.PageID] = e
	m.Upserts++
	return nil
}

func (m *MemStore) PrunePageEmbeddings(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	live := make(map[int64]bool, len(m.pages))
	for _, p := range m.pages {
		live[p.ID] = true
	}
	var n int64
	for id := range m.pageEmb {
		if !live[id] {
			delete(m.pageEmb, id)
			n++
		}
	}
	return n, nil
}

// PutQAEmbedding stores an embedding row as-is, including malformed ones
func (m *MemStore) PutQAEmbedding(e db.QAEmbedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qaEmb[e.QAID] = e
}

// PutPageEmbedding stores an embedding row as-is
func (m *MemStore) PutPageEmbedding(e db.PageEmbedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageEmb[e.PageID] = e
}

func (m *MemStore) Counts(ctx context.Context) (*db.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return &db.Counts{
		QAEntries:      int64(len(m.entries)),
		QAEmbeddings:   int64(len(m.qaEmb)),
		Pages:          int64(len(m.pages)),
		PageEmbeddings: int64(len(m.pageEmb)),
	}, nil
}

func (m *MemStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *MemStore) Migrate(ctx context.Context) error { return nil }

func (m *MemStore) Close() {}

// ErrUnavailable is a convenience error for failure tests
var ErrUnavailable = errors.New("store unavailable")
