// Package links recommends crawled pages when no curated answer fits.
package links

import (
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/vector"
)

// Config tunes ranking and acceptance
type Config struct {
	MaxCards         int
	Threshold        float64 // minimum base similarity
	RelaxedThreshold float64 // second pass when nothing clears Threshold
	BoostPerKeyword  float64
	MaxBoost         float64
	SnippetWidth     int // runes
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{
		MaxCards:         3,
		Threshold:        0.70,
		RelaxedThreshold: 0.60,
		BoostPerKeyword:  0.03,
		MaxBoost:         0.10,
		SnippetWidth:     120,
	}
}

// Query is the utterance as seen by the recommender
type Query struct {
	Vector   []float32
	Keywords []string
}

// Candidate is a page with its stored vector
type Candidate struct {
	Page   db.Page
	Vector []float32
}

// Card is one recommended link
type Card struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	URL     string  `json:"url"`
	Base    float64 `json:"base"`
	Score   float64 `json:"score"`
}

// Recommender ranks pages. It holds no mutable state.
type Recommender struct {
	cfg Config
}

// New creates a recommender
func New(cfg Config) *Recommender {
	if cfg.MaxCards <= 0 {
		cfg.MaxCards = 3
	}
	if cfg.SnippetWidth <= 0 {
		cfg.SnippetWidth = 120
	}
	return &Recommender{cfg: cfg}
}

type scoredPage struct {
	cand  Candidate
	base  float64
	score float64
}

// Recommend ranks pages by similarity plus a capped title/URL keyword boost,
// keeps at most MaxCards distinct normalized URLs whose base similarity
// clears the threshold (retrying once at the relaxed threshold), and builds
// a snippet for each. An empty result means no confident recommendation.
func (r *Recommender) Recommend(q Query, pages []Candidate) []Card {
	if len(q.Vector) == 0 || len(pages) == 0 {
		return nil
	}

	keywords := make([]string, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	scored := make([]scoredPage, 0, len(pages))
	for _, c := range pages {
		if len(c.Vector) != len(q.Vector) {
			continue
		}
		base := vector.Cosine(q.Vector, c.Vector)
		scored = append(scored, scoredPage{
			cand:  c,
			base:  base,
			score: base + r.boost(keywords, c.Page),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	accepted := r.accept(scored, r.cfg.Threshold)
	if len(accepted) == 0 && r.cfg.RelaxedThreshold < r.cfg.Threshold {
		accepted = r.accept(scored, r.cfg.RelaxedThreshold)
	}
	if len(accepted) == 0 {
		return nil
	}

	cards := make([]Card, 0, len(accepted))
	for _, sp := range accepted {
		p := sp.cand.Page
		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = p.URL
		}
		cards = append(cards, Card{
			Title:   title,
			Snippet: Snippet(p.Content, keywords, r.cfg.SnippetWidth),
			URL:     p.URL,
			Base:    sp.base,
			Score:   sp.score,
		})
	}
	return cards
}

// boost counts keywords found in the title or URL
func (r *Recommender) boost(keywords []string, p db.Page) float64 {
	if len(keywords) == 0 {
		return 0
	}
	title := strings.ToLower(p.Title)
	u := strings.ToLower(p.URL)
	if unescaped, err := url.PathUnescape(u); err == nil {
		u = unescaped
	}

	count := 0
	for _, kw := range keywords {
		if strings.Contains(title, kw) || strings.Contains(u, kw) {
			count++
		}
	}
	return math.Min(r.cfg.MaxBoost, r.cfg.BoostPerKeyword*float64(count))
}

// accept walks pages best first. A page below threshold is passed over
// without claiming its URL.
func (r *Recommender) accept(scored []scoredPage, threshold float64) []scoredPage {
	seen := make(map[string]bool)
	var out []scoredPage
	for _, sp := range scored {
		if len(out) == r.cfg.MaxCards {
			break
		}
		if sp.base < threshold {
			continue
		}
		key := NormalizeURL(sp.cand.Page.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sp)
	}
	return out
}

// NormalizeURL drops the query string, fragment and trailing slash, and
// lower-cases scheme and host.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimRight(raw, "/")
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
