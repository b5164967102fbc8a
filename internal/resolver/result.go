package resolver

import (
	"time"

	"github.com/schoolbot/schoolbot/internal/links"
)

// Kind tags how a request was answered
type Kind string

const (
	KindExact     Kind = "exact"
	KindKeyword   Kind = "keyword"
	KindSemantic  Kind = "semantic"
	KindLinkCards Kind = "link-cards"
	KindFallback  Kind = "fallback"
)

// Stage names used in results and logs
const (
	StageGuard    = "guard"
	StageExact    = "exact"
	StageKeyword  = "keyword"
	StageSemantic = "semantic"
	StageLinks    = "links"
	StageFallback = "fallback"
)

// Fallback reasons
const (
	ReasonEmptyInput      = "empty_input"
	ReasonBanned          = "banned"
	ReasonNoMatch         = "no_match"
	ReasonBudgetExhausted = "budget_exhausted"
)

// Result is built once per request and not modified afterwards.
type Result struct {
	Kind    Kind          `json:"kind"`
	Text    string        `json:"text,omitempty"`
	Link    string        `json:"link,omitempty"`
	Hint    string        `json:"hint,omitempty"`
	Cards   []links.Card  `json:"cards,omitempty"`
	Score   float64       `json:"score"`
	QAID    int64         `json:"qa_id,omitempty"`
	Stage   string        `json:"stage"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// IsAnswer reports whether the result carries a direct answer
func (r *Result) IsAnswer() bool {
	switch r.Kind {
	case KindExact, KindKeyword, KindSemantic:
		return true
	}
	return false
}
