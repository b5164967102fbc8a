package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/schoolbot/schoolbot/internal/db/migrations"
)

// SQLite is the file-backed store. Its layout matches the school_data.db file
// produced by the import and crawler tools, with vectors kept as JSON text.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db, path: path}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path
func (s *SQLite) Path() string {
	return s.path
}

// Ping checks the connection
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLite) Close() {
	s.db.Close()
}

// Migrate applies pending schema migrations
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	pending, err := pendingMigrations(migrations.SQLite, "sqlite", current)
	if err != nil {
		return err
	}

	for _, m := range pending {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.name, err)
		}
	}
	return nil
}

// ListQAEntries retrieves all QA entries in id order
func (s *SQLite) ListQAEntries(ctx context.Context) ([]QAEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, question, answer, COALESCE(link, '')
		 FROM qa_data ORDER BY id`,
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

// ListQAEmbeddings retrieves every stored QA vector
func (s *SQLite) ListQAEmbeddings(ctx context.Context) ([]QAEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT qa_id, vector, text_hash, updated_at FROM qa_embeddings ORDER BY qa_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list qa embeddings: %w", err)
	}
	defer rows.Close()

	var embs []QAEmbedding
	for rows.Next() {
		e, err := scanQAEmbedding(rows)
		if err != nil {
			return nil, err
		}
		embs = append(embs, *e)
	}
	return embs, rows.Err()
}

// GetQAEmbedding retrieves one QA vector, or ErrNotFound
func (s *SQLite) GetQAEmbedding(ctx context.Context, qaID int64) (*QAEmbedding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT qa_id, vector, text_hash, updated_at FROM qa_embeddings WHERE qa_id = ?`,
		qaID,
	)
	e, err := scanQAEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// UpsertQAEmbedding writes vector, hash and timestamp in one statement
func (s *SQLite) UpsertQAEmbedding(ctx context.Context, emb *QAEmbedding) error {
	if emb.UpdatedAt.IsZero() {
		emb.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO qa_embeddings (qa_id, vector, text_hash, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(qa_id) DO UPDATE SET
		   vector = excluded.vector,
		   text_hash = excluded.text_hash,
		   updated_at = excluded.updated_at`,
		emb.QAID, string(data), emb.ContentHash, formatTime(emb.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert qa embedding %d: %w", emb.QAID, err)
	}
	return nil
}

// PruneQAEmbeddings deletes vectors whose QA entry no longer exists
func (s *SQLite) PruneQAEmbeddings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM qa_embeddings WHERE qa_id NOT IN (SELECT id FROM qa_data)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune qa embeddings: %w", err)
	}
	return res.RowsAffected()
}

// ListPages retrieves all crawled pages in id order
func (s *SQLite) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(url, ''), COALESCE(title, ''), COALESCE(content, ''), fetched_at
		 FROM pages ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var fetched sql.NullString
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Content, &fetched); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.FetchedAt = parseTime(fetched.String)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListPageEmbeddings retrieves every stored page vector
func (s *SQLite) ListPageEmbeddings(ctx context.Context) ([]PageEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_id, vector, fetched_at, updated_at FROM page_embeddings ORDER BY page_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list page embeddings: %w", err)
	}
	defer rows.Close()

	var embs []PageEmbedding
	for rows.Next() {
		e, err := scanPageEmbedding(rows)
		if err != nil {
			return nil, err
		}
		embs = append(embs, *e)
	}
	return embs, rows.Err()
}

// GetPageEmbedding retrieves one page vector, or ErrNotFound
func (s *SQLite) GetPageEmbedding(ctx context.Context, pageID int64) (*PageEmbedding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT page_id, vector, fetched_at, updated_at FROM page_embeddings WHERE page_id = ?`,
		pageID,
	)
	e, err := scanPageEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// UpsertPageEmbedding writes a page vector in one statement
func (s *SQLite) UpsertPageEmbedding(ctx context.Context, emb *PageEmbedding) error {
	if emb.UpdatedAt.IsZero() {
		emb.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO page_embeddings (page_id, vector, fetched_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(page_id) DO UPDATE SET
		   vector = excluded.vector,
		   fetched_at = excluded.fetched_at,
		   updated_at = excluded.updated_at`,
		emb.PageID, string(data), formatTime(emb.FetchedAt), formatTime(emb.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert page embedding %d: %w", emb.PageID, err)
	}
	return nil
}

// PrunePageEmbeddings deletes vectors whose page no longer exists
func (s *SQLite) PrunePageEmbeddings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM page_embeddings WHERE page_id NOT IN (SELECT id FROM pages)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune page embeddings: %w", err)
	}
	return res.RowsAffected()
}

// Counts returns row counts for the corpus tables
func (s *SQLite) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM qa_data),
		   (SELECT COUNT(*) FROM qa_embeddings),
		   (SELECT COUNT(*) FROM pages),
		   (SELECT COUNT(*) FROM page_embeddings)`,
	).Scan(&c.QAEntries, &c.QAEmbeddings, &c.Pages, &c.PageEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQAEmbedding(row rowScanner) (*QAEmbedding, error) {
	var e QAEmbedding
	var raw string
	var updated sql.NullString
	if err := row.Scan(&e.QAID, &raw, &e.ContentHash, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan qa embedding: %w", err)
	}
	e.UpdatedAt = parseTime(updated.String)
	e.Vector, e.DecodeErr = decodeJSONVector(raw)
	return &e, nil
}

func scanPageEmbedding(row rowScanner) (*PageEmbedding, error) {
	var e PageEmbedding
	var raw string
	var fetched, updated sql.NullString
	if err := row.Scan(&e.PageID, &raw, &fetched, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan page embedding: %w", err)
	}
	e.FetchedAt = parseTime(fetched.String)
	e.UpdatedAt = parseTime(updated.String)
	e.Vector, e.DecodeErr = decodeJSONVector(raw)
	return &e, nil
}

func decodeJSONVector(raw string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return vec, nil
}

// timeLayouts covers what the crawler and sqlite's CURRENT_TIMESTAMP write
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
