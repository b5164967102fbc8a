// Package keyword scores QA candidates by lexical overlap with an utterance.
package keyword

import (
	"strings"

	"github.com/schoolbot/schoolbot/internal/db"
)

// Rule claims utterances that contain one of its markers and none of its
// excludes. While a rule owns an utterance only candidates of its category
// can score, and they score Score when a rule keyword appears in both the
// utterance and the question.
type Rule struct {
	Name     string
	Markers  []string
	Excludes []string
	Category db.Category
	Keywords []string
	Score    float64
}

// Applies reports whether the rule owns the lower-cased utterance
func (r Rule) Applies(utterance string) bool {
	if !containsAny(utterance, r.Markers) {
		return false
	}
	return !containsAny(utterance, r.Excludes)
}

// Config tunes the ranker
type Config struct {
	Rules             []Rule
	ImportantKeywords []string
	Threshold         float64
	SubstringScore    float64
}

// DefaultConfig returns the built-in rules and thresholds
func DefaultConfig() Config {
	return Config{
		Rules:             DefaultRules(),
		ImportantKeywords: DefaultImportantKeywords(),
		Threshold:         0.15,
		SubstringScore:    0.3,
	}
}

// Ranker scores candidates. It holds no mutable state.
type Ranker struct {
	cfg Config
}

// New creates a ranker. Empty rule or keyword lists fall back to the defaults.
func New(cfg Config) *Ranker {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	if len(cfg.ImportantKeywords) == 0 {
		cfg.ImportantKeywords = DefaultImportantKeywords()
	}
	return &Ranker{cfg: cfg}
}

// Match is an accepted candidate
type Match struct {
	Entry db.QAEntry
	Score float64
	Rule  string // owning rule, "general", or "substring"
}

// Score returns the candidate's score in [0, 1]
func (r *Ranker) Score(utterance string, candidate db.QAEntry) float64 {
	score, _ := r.score(strings.ToLower(strings.TrimSpace(utterance)), candidate)
	return score
}

func (r *Ranker) score(utterance string, candidate db.QAEntry) (float64, string) {
	question := strings.ToLower(candidate.Question)

	for _, rule := range r.cfg.Rules {
		if !rule.Applies(utterance) {
			continue
		}
		if candidate.Category != rule.Category {
			return 0, rule.Name
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(utterance, kw) && strings.Contains(question, kw) {
				return clamp(rule.Score), rule.Name
			}
		}
		return 0, rule.Name
	}

	var present, matched int
	for _, kw := range r.cfg.ImportantKeywords {
		if !strings.Contains(utterance, kw) {
			continue
		}
		present++
		if strings.Contains(question, kw) {
			matched++
		}
	}
	if present == 0 {
		return 0, "general"
	}
	return float64(matched) / float64(present), "general"
}

// Best returns the first candidate reaching the highest score. When no
// candidate scores above zero, the first substring candidate is taken at
// the substring score. The match is accepted only at or above the threshold.
func (r *Ranker) Best(utterance string, candidates, substring []db.QAEntry) (Match, bool) {
	u := strings.ToLower(strings.TrimSpace(utterance))
	if u == "" {
		return Match{}, false
	}

	var best Match
	for _, c := range candidates {
		score, rule := r.score(u, c)
		if score > best.Score {
			best = Match{Entry: c, Score: score, Rule: rule}
		}
	}

	if best.Score == 0 && len(substring) > 0 {
		best = Match{Entry: substring[0], Score: clamp(r.cfg.SubstringScore), Rule: "substring"}
	}

	if best.Score == 0 || best.Score < r.cfg.Threshold {
		return Match{}, false
	}
	return best, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
