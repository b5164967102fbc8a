package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned by single-row lookups that match nothing
var ErrNotFound = errors.New("not found")

// Store is the persistence surface shared by the Postgres and SQLite backends.
// Upserts are single statements, so a concurrent reader sees either the old
// row or the new one.
type Store interface {
	ListQAEntries(ctx context.Context) ([]QAEntry, error)
	ListQAEmbeddings(ctx context.Context) ([]QAEmbedding, error)
	GetQAEmbedding(ctx context.Context, qaID int64) (*QAEmbedding, error)
	UpsertQAEmbedding(ctx context.Context, emb *QAEmbedding) error
	PruneQAEmbeddings(ctx context.Context) (int64, error)

	ListPages(ctx context.Context) ([]Page, error)
	ListPageEmbeddings(ctx context.Context) ([]PageEmbedding, error)
	GetPageEmbedding(ctx context.Context, pageID int64) (*PageEmbedding, error)
	UpsertPageEmbedding(ctx context.Context, emb *PageEmbedding) error
	PrunePageEmbeddings(ctx context.Context) (int64, error)

	Counts(ctx context.Context) (*Counts, error)
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close()
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLite)(nil)
)
