package db

import (
	"strings"
	"time"
)

// Category tags a QA entry with the part of the school it belongs to
type Category string

const (
	CategoryKindergarten  Category = "kindergarten"
	CategoryElementary    Category = "elementary"
	CategoryMeal          Category = "meal"
	CategoryUncategorized Category = "uncategorized"
)

// ParseCategory maps an imported category label onto the fixed enumeration
func ParseCategory(label string) Category {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "유치원", "병설유치원", "kindergarten":
		return CategoryKindergarten
	case "초등", "초등학교", "elementary":
		return CategoryElementary
	case "급식", "식단", "meal":
		return CategoryMeal
	default:
		return CategoryUncategorized
	}
}

// QAEntry is a curated question/answer record
type QAEntry struct {
	ID       int64
	Category Category
	Question string
	Answer   string
	Link     string
}

// QAEmbedding is the stored vector for a QA entry's question
type QAEmbedding struct {
	QAID        int64
	Vector      []float32
	ContentHash string
	UpdatedAt   time.Time
	// DecodeErr is set when the stored vector could not be decoded
	DecodeErr error
}

// Page is a crawled web page
type Page struct {
	ID        int64
	URL       string
	Title     string
	Content   string
	FetchedAt time.Time
}

// PageEmbedding is the stored vector for a page. FetchedAt is the page's
// fetch timestamp at the time it was embedded.
type PageEmbedding struct {
	PageID    int64
	Vector    []float32
	FetchedAt time.Time
	UpdatedAt time.Time
	DecodeErr error
}

// Counts reports row counts per table
type Counts struct {
	QAEntries      int64 `json:"qa_entries"`
	QAEmbeddings   int64 `json:"qa_embeddings"`
	Pages          int64 `json:"pages"`
	PageEmbeddings int64 `json:"page_embeddings"`
}
