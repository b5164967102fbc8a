// Package resolver answers an utterance by running the matching stages in
// order of cost until one produces an answer or the time budget runs out.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolbot/schoolbot/internal/corpus"
	"github.com/schoolbot/schoolbot/internal/embeddings"
	"github.com/schoolbot/schoolbot/internal/keyword"
	"github.com/schoolbot/schoolbot/internal/links"
	"github.com/schoolbot/schoolbot/internal/observability"
	"github.com/schoolbot/schoolbot/internal/textnorm"
	"github.com/schoolbot/schoolbot/internal/vector"
)

// Config tunes the cascade
type Config struct {
	Budget            time.Duration
	SemanticReserve   time.Duration
	LinkReserve       time.Duration
	SemanticThreshold float64
	FallbackText      string
	MenuHint          string
	GreetingText      string
	RefusalText       string
	BannedWords       []string
	BannedExemptions  []string
}

// DefaultConfig returns the stock budget and texts
func DefaultConfig() Config {
	return Config{
		Budget:            4500 * time.Millisecond,
		SemanticReserve:   1000 * time.Millisecond,
		LinkReserve:       1200 * time.Millisecond,
		SemanticThreshold: 0.75,
		FallbackText:      "죄송합니다. 해당 질문에 대한 답변을 찾을 수 없습니다. 다른 질문을 해주세요.",
		MenuHint:          "아래 메뉴로 계속해 보세요!",
		GreetingText:      "무엇을 도와드릴까요?\n예) 학사일정, 오늘 급식, 가정통신문",
		RefusalText:       "부적절한 표현이 포함되어 답변할 수 없습니다. 학교 생활에 관한 질문을 해주세요.",
		BannedWords:       []string{"욕설", "비속어", "폭력", "자살", "살인", "테러"},
		BannedExemptions:  []string{"학교폭력", "상담", "문의", "도움", "안내"},
	}
}

var errQueryUnavailable = errors.New("query embedding unavailable")

// Request is one inbound utterance
type Request struct {
	Utterance string
	UserID    string
}

// Resolver runs EXACT, KEYWORD, SEMANTIC and LINKS in turn and falls back to
// an apology. It is safe for concurrent use.
type Resolver struct {
	cfg      Config
	ranker   *keyword.Ranker
	links    *links.Recommender
	provider embeddings.Provider
	logger   zerolog.Logger
}

// New creates a resolver. provider may be nil, which disables the semantic
// and link stages.
func New(cfg Config, ranker *keyword.Ranker, rec *links.Recommender, provider embeddings.Provider, logger zerolog.Logger) *Resolver {
	if ranker == nil {
		ranker = keyword.New(keyword.DefaultConfig())
	}
	if rec == nil {
		rec = links.New(links.DefaultConfig())
	}
	return &Resolver{cfg: cfg, ranker: ranker, links: rec, provider: provider, logger: logger}
}

// request carries per-request state through the stages
type request struct {
	utterance string
	snap      *corpus.Snapshot
	budget    Budget
	log       zerolog.Logger

	queried  bool
	queryVec []float32
	queryErr error
}

// Resolve always returns a result; stage failures are logged and the
// cascade moves on.
func (r *Resolver) Resolve(ctx context.Context, snap *corpus.Snapshot, req Request) *Result {
	budget := NewBudget(r.cfg.Budget)
	if snap == nil {
		snap = corpus.Empty()
	}

	rq := &request{
		utterance: strings.TrimSpace(req.Utterance),
		snap:      snap,
		budget:    budget,
		log:       observability.WithRequest(ctx, r.logger).With().Str("user_id", req.UserID).Logger(),
	}

	res := r.resolve(ctx, rq)
	res.Elapsed = budget.Elapsed()

	rq.log.Info().
		Str("kind", string(res.Kind)).
		Str("stage", res.Stage).
		Str("reason", res.Reason).
		Float64("score", res.Score).
		Dur("elapsed", res.Elapsed).
		Msg("resolved")
	return res
}

func (r *Resolver) resolve(ctx context.Context, rq *request) *Result {
	if rq.utterance == "" {
		return &Result{Kind: KindFallback, Text: r.cfg.GreetingText, Stage: StageGuard, Reason: ReasonEmptyInput}
	}
	if r.banned(rq.utterance) {
		return &Result{Kind: KindFallback, Text: r.cfg.RefusalText, Hint: r.cfg.MenuHint, Stage: StageGuard, Reason: ReasonBanned}
	}

	if res := r.stage(rq, StageExact, func() (*Result, error) { return r.exact(rq) }); res != nil {
		return res
	}
	if res := r.stage(rq, StageKeyword, func() (*Result, error) { return r.keyword(rq) }); res != nil {
		return res
	}

	if len(rq.snap.QAVectors) == 0 || r.provider == nil {
		r.skip(rq, StageSemantic, corpus.ErrCorpusEmpty)
	} else {
		if !rq.budget.Allows(r.cfg.SemanticReserve) {
			return r.exhausted(rq, StageSemantic)
		}
		if res := r.stage(rq, StageSemantic, func() (*Result, error) { return r.semantic(ctx, rq) }); res != nil {
			return res
		}
	}

	if len(rq.snap.PageVectors) == 0 || r.provider == nil {
		r.skip(rq, StageLinks, corpus.ErrCorpusEmpty)
	} else {
		if !rq.budget.Allows(r.cfg.LinkReserve) {
			return r.exhausted(rq, StageLinks)
		}
		if res := r.stage(rq, StageLinks, func() (*Result, error) { return r.recommend(ctx, rq) }); res != nil {
			return res
		}
	}

	return r.fallback(ReasonNoMatch)
}

// stage runs fn, turning errors and panics into "no result"
func (r *Resolver) stage(rq *request, name string, fn func() (*Result, error)) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			rq.log.Error().
				Str("stage", name).
				Str("error_kind", "panic").
				Interface("panic", p).
				Msg("stage panicked")
			res = nil
		}
	}()

	res, err := fn()
	if err != nil {
		rq.log.Warn().Err(err).
			Str("stage", name).
			Str("error_kind", errorKind(err)).
			Msg("stage failed")
		return nil
	}
	return res
}

func (r *Resolver) skip(rq *request, name string, reason error) {
	rq.log.Debug().
		Str("stage", name).
		Str("error_kind", errorKind(reason)).
		Msg("stage skipped")
}

func (r *Resolver) exhausted(rq *request, name string) *Result {
	rq.log.Warn().
		Str("stage", name).
		Str("error_kind", "budget_exhausted").
		Dur("remaining", rq.budget.Remaining()).
		Msg("budget exhausted")
	return r.fallback(ReasonBudgetExhausted)
}

func (r *Resolver) fallback(reason string) *Result {
	return &Result{Kind: KindFallback, Text: r.cfg.FallbackText, Hint: r.cfg.MenuHint, Stage: StageFallback, Reason: reason}
}

func (r *Resolver) exact(rq *request) (*Result, error) {
	if rq.snap.QA.Len() == 0 {
		return nil, corpus.ErrCorpusEmpty
	}
	e, ok := rq.snap.QA.ExactMatch(rq.utterance)
	if !ok {
		return nil, nil
	}
	return &Result{Kind: KindExact, Text: e.Answer, Link: e.Link, Score: 1, QAID: e.ID, Stage: StageExact}, nil
}

func (r *Resolver) keyword(rq *request) (*Result, error) {
	if rq.snap.QA.Len() == 0 {
		return nil, corpus.ErrCorpusEmpty
	}
	m, ok := r.ranker.Best(rq.utterance, rq.snap.QA.Entries(), rq.snap.QA.SubstringCandidates(rq.utterance))
	if !ok {
		return nil, nil
	}
	return &Result{Kind: KindKeyword, Text: m.Entry.Answer, Link: m.Entry.Link, Score: m.Score, QAID: m.Entry.ID, Stage: StageKeyword}, nil
}

func (r *Resolver) semantic(ctx context.Context, rq *request) (*Result, error) {
	qv, err := r.queryVector(ctx, rq)
	if err != nil {
		return nil, err
	}
	top := vector.TopK(qv, rq.snap.QAVectors, 1)
	if len(top) == 0 || top[0].Score < r.cfg.SemanticThreshold {
		return nil, nil
	}
	e, ok := rq.snap.QA.Get(top[0].Key)
	if !ok {
		return nil, fmt.Errorf("vector for unknown qa %d", top[0].Key)
	}
	return &Result{Kind: KindSemantic, Text: e.Answer, Link: e.Link, Score: top[0].Score, QAID: e.ID, Stage: StageSemantic}, nil
}

func (r *Resolver) recommend(ctx context.Context, rq *request) (*Result, error) {
	qv, err := r.queryVector(ctx, rq)
	if err != nil {
		return nil, err
	}

	cands := make([]links.Candidate, 0, len(rq.snap.PageVectors))
	for _, p := range rq.snap.Pages {
		if v, ok := rq.snap.PageVectors[p.ID]; ok {
			cands = append(cands, links.Candidate{Page: p, Vector: v})
		}
	}

	cards := r.links.Recommend(links.Query{Vector: qv, Keywords: textnorm.ExtractKeywords(rq.utterance)}, cands)
	if len(cards) == 0 {
		return nil, nil
	}
	return &Result{Kind: KindLinkCards, Cards: cards, Score: cards[0].Base, Stage: StageLinks}, nil
}

// queryVector embeds the utterance at most once per request, bounded by the
// remaining budget. A failure is remembered so later stages do not retry.
func (r *Resolver) queryVector(ctx context.Context, rq *request) ([]float32, error) {
	if rq.queried {
		return rq.queryVec, rq.queryErr
	}
	rq.queried = true
	rq.queryErr = errQueryUnavailable

	callCtx, cancel := context.WithDeadline(ctx, rq.budget.Deadline())
	defer cancel()

	vec, err := r.provider.Embed(callCtx, rq.utterance)
	if err == nil {
		err = vector.Validate(vec)
	}
	if err != nil {
		var pe *embeddings.ProviderError
		if !errors.As(err, &pe) {
			err = &embeddings.ProviderError{Model: r.provider.Model(), Attempts: 1, Err: err}
		}
		rq.queryErr = err
		return nil, err
	}
	rq.queryVec, rq.queryErr = vec, nil
	return vec, nil
}

func (r *Resolver) banned(utterance string) bool {
	for _, ex := range r.cfg.BannedExemptions {
		if ex != "" && strings.Contains(utterance, ex) {
			return false
		}
	}
	lower := strings.ToLower(utterance)
	for _, w := range r.cfg.BannedWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func errorKind(err error) string {
	var pe *embeddings.ProviderError
	switch {
	case errors.As(err, &pe):
		return "provider_error"
	case errors.Is(err, corpus.ErrCorpusEmpty):
		return "corpus_empty"
	case errors.Is(err, vector.ErrMalformedVector):
		return "malformed_vector"
	case errors.Is(err, context.DeadlineExceeded):
		return "budget_exhausted"
	default:
		return "internal"
	}
}
