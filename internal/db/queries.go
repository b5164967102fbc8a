package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/schoolbot/schoolbot/internal/vector"
)

// ListQAEntries retrieves all QA entries in id order
func (db *DB) ListQAEntries(ctx context.Context) ([]QAEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, category, question, answer, COALESCE(link, '')
		 FROM qa_entries ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list qa entries: %w", err)
	}
	defer rows.Close()

	var entries []QAEntry
	for rows.Next() {
		var e QAEntry
		var category string
		if err := rows.Scan(&e.ID, &category, &e.Question, &e.Answer, &e.Link); err != nil {
			return nil, fmt.Errorf("failed to scan qa entry: %w", err)
		}
		e.Category = ParseCategory(category)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListQAEmbeddings retrieves every stored QA vector. The vector is read as text
// and decoded per row so one bad row only marks itself.
func (db *DB) ListQAEmbeddings(ctx context.Context) ([]QAEmbedding, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT qa_id, embedding::text, content_hash, updated_at
		 FROM qa_embeddings ORDER BY qa_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list qa embeddings: %w", err)
	}
	defer rows.Close()

	var embs []QAEmbedding
	for rows.Next() {
		var e QAEmbedding
		var raw string
		if err := rows.Scan(&e.QAID, &raw, &e.ContentHash, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan qa embedding: %w", err)
		}
		e.Vector, e.DecodeErr = decodePGVector(raw)
		embs = append(embs, e)
	}
	return embs, rows.Err()
}

// GetQAEmbedding retrieves one QA vector, or ErrNotFound
func (db *DB) GetQAEmbedding(ctx context.Context, qaID int64) (*QAEmbedding, error) {
	var e QAEmbedding
	var raw string
	err := db.pool.QueryRow(ctx,
		`SELECT qa_id, embedding::text, content_hash, updated_at
		 FROM qa_embeddings WHERE qa_id = $1`,
		qaID,
	).Scan(&e.QAID, &raw, &e.ContentHash, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get qa embedding: %w", err)
	}
	e.Vector, e.DecodeErr = decodePGVector(raw)
	return &e, nil
}

// UpsertQAEmbedding writes vector, hash and timestamp in one statement
func (db *DB) UpsertQAEmbedding(ctx context.Context, emb *QAEmbedding) error {
	if emb.UpdatedAt.IsZero() {
		emb.UpdatedAt = time.Now().UTC()
	}
	vec := pgvector.NewVector(emb.Vector)
	_, err := db.pool.Exec(ctx,
		`INSERT INTO qa_embeddings (qa_id, embedding, content_hash, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (qa_id) DO UPDATE SET
		   embedding = EXCLUDED.embedding,
		   content_hash = EXCLUDED.content_hash,
		   updated_at = EXCLUDED.updated_at`,
		emb.QAID, vec, emb.ContentHash, emb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert qa embedding %d: %w", emb.QAID, err)
	}
	return nil
}

// PruneQAEmbeddings deletes vectors whose QA entry no longer exists
func (db *DB) PruneQAEmbeddings(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM qa_embeddings
		 WHERE qa_id NOT IN (SELECT id FROM qa_entries)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune qa embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPages retrieves all crawled pages in id order
func (db *DB) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, url, title, content, fetched_at FROM pages ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Content, &p.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListPageEmbeddings retrieves every stored page vector
func (db *DB) ListPageEmbeddings(ctx context.Context) ([]PageEmbedding, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT page_id, embedding::text, fetched_at, updated_at
		 FROM page_embeddings ORDER BY page_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list page embeddings: %w", err)
	}
	defer rows.Close()

	var embs []PageEmbedding
	for rows.Next() {
		var e PageEmbedding
		var raw string
		if err := rows.Scan(&e.PageID, &raw, &e.FetchedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page embedding: %w", err)
		}
		e.Vector, e.DecodeErr = decodePGVector(raw)
		embs = append(embs, e)
	}
	return embs, rows.Err()
}

// GetPageEmbedding retrieves one page vector, or ErrNotFound
func (db *DB) GetPageEmbedding(ctx context.Context, pageID int64) (*PageEmbedding, error) {
	var e PageEmbedding
	var raw string
	err := db.pool.QueryRow(ctx,
		`SELECT page_id, embedding::text, fetched_at, updated_at
		 FROM page_embeddings WHERE page_id = $1`,
		pageID,
	).Scan(&e.PageID, &raw, &e.FetchedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page embedding: %w", err)
	}
	e.Vector, e.DecodeErr = decodePGVector(raw)
	return &e, nil
}

// UpsertPageEmbedding writes a page vector in one statement
func (db *DB) UpsertPageEmbedding(ctx context.Context, emb *PageEmbedding) error {
	if emb.UpdatedAt.IsZero() {
		emb.UpdatedAt = time.Now().UTC()
	}
	vec := pgvector.NewVector(emb.Vector)
	_, err := db.pool.Exec(ctx,
		`INSERT INTO page_embeddings (page_id, embedding, fetched_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (page_id) DO UPDATE SET
		   embedding = EXCLUDED.embedding,
		   fetched_at = EXCLUDED.fetched_at,
		   updated_at = EXCLUDED.updated_at`,
		emb.PageID, vec, emb.FetchedAt, emb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert page embedding %d: %w", emb.PageID, err)
	}
	return nil
}

// PrunePageEmbeddings deletes vectors whose page no longer exists
func (db *DB) PrunePageEmbeddings(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM page_embeddings
		 WHERE page_id NOT IN (SELECT id FROM pages)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune page embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Counts returns row counts for the corpus tables
func (db *DB) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := db.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM qa_entries),
		   (SELECT COUNT(*) FROM qa_embeddings),
		   (SELECT COUNT(*) FROM pages),
		   (SELECT COUNT(*) FROM page_embeddings)`,
	).Scan(&c.QAEntries, &c.QAEmbeddings, &c.Pages, &c.PageEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return &c, nil
}

// decodePGVector parses pgvector's "[x,y,...]" text form. Anything that is
// not a finite, non-empty vector wraps vector.ErrMalformedVector.
func decodePGVector(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return nil, fmt.Errorf("decode vector %q: %w", raw, vector.ErrMalformedVector)
	}
	var vec pgvector.Vector
	if err := vec.Scan(raw); err != nil {
		return nil, fmt.Errorf("decode vector: %w: %w", vector.ErrMalformedVector, err)
	}
	out := vec.Slice()
	if err := vector.Validate(out); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return out, nil
}
