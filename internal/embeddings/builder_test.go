package embeddings

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/db/dbtest"
)

func newBuilder(store db.Store, p Provider) *Builder {
	return NewBuilder(store, p, BuilderConfig{Concurrency: 2}, zerolog.Nop())
}

func TestContentHashUsesNormalizedText(t *testing.T) {
	assert.Equal(t, ContentHash("급식 메뉴!"), ContentHash("  급식   메뉴 "))
	assert.NotEqual(t, ContentHash("급식 메뉴"), ContentHash("방과후 신청"))
	assert.Len(t, ContentHash("x"), 64)
}

func TestEnsureCurrentSkipsUnchangedHash(t *testing.T) {
	store := dbtest.New()
	p := &stubProvider{}
	b := newBuilder(store, p)
	ctx := context.Background()

	first, err := b.EnsureCurrent(ctx, 1, "오늘 급식 메뉴")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Calls())

	second, err := b.EnsureCurrent(ctx, 1, "오늘 급식 메뉴")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Calls(), "unchanged text must not reach the provider")
	assert.Equal(t, first, second)

	_, err = b.EnsureCurrent(ctx, 1, "오늘 급식 메뉴 알려줘")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Calls())

	stored, err := store.GetQAEmbedding(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ContentHash("오늘 급식 메뉴 알려줘"), stored.ContentHash)
}

func TestEnsureCurrentReembedsMalformedRow(t *testing.T) {
	store := dbtest.New()
	store.PutQAEmbedding(db.QAEmbedding{QAID: 7, ContentHash: ContentHash("개학일"), DecodeErr: assert.AnError})
	p := &stubProvider{}

	vec, err := newBuilder(store, p).EnsureCurrent(context.Background(), 7, "개학일")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, 1, p.Calls())
}

func TestEnsureCurrentFailureLeavesRowUntouched(t *testing.T) {
	store := dbtest.New()
	ctx := context.Background()
	old := db.QAEmbedding{QAID: 3, Vector: []float32{9, 9}, ContentHash: ContentHash("old"), UpdatedAt: time.Unix(100, 0).UTC()}
	store.PutQAEmbedding(old)

	p := &stubProvider{err: errProviderDown}
	retrying := NewRetrying(p, RetryConfig{Attempts: 3}, zerolog.Nop())

	_, err := newBuilder(store, retrying).EnsureCurrent(ctx, 3, "new text")
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Attempts)
	assert.ErrorIs(t, err, errProviderDown)

	stored, err := store.GetQAEmbedding(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, old, *stored)
	assert.Equal(t, 0, store.Upserts)
}

func TestBuildQA(t *testing.T) {
	store := dbtest.New()
	store.AddQA(
		db.QAEntry{ID: 1, Question: "급식 시간"},
		db.QAEntry{ID: 2, Question: "방과후 신청"},
		db.QAEntry{ID: 3, Question: "전학 절차"},
	)
	store.PutQAEmbedding(db.QAEmbedding{QAID: 2, Vector: []float32{1, 1}, ContentHash: ContentHash("방과후 신청")})
	store.PutQAEmbedding(db.QAEmbedding{QAID: 3, Vector: []float32{1, 1}, ContentHash: "stale"})
	store.PutQAEmbedding(db.QAEmbedding{QAID: 42, Vector: []float32{1, 1}, ContentHash: "orphan"})

	p := &stubProvider{}
	stats, err := newBuilder(store, p).BuildQA(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Created)
	assert.Equal(t, int64(1), stats.Updated)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(1), stats.Pruned)
	assert.Equal(t, 2, p.Calls())
	assert.Contains(t, stats.String(), "created 1 / updated 1 / skipped 1")

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.QAEmbeddings)
}

func TestBuildQACountsFailures(t *testing.T) {
	store := dbtest.New()
	store.AddQA(db.QAEntry{ID: 1, Question: "급식 시간"}, db.QAEntry{ID: 2, Question: "방과후 신청"})

	stats, err := newBuilder(store, &stubProvider{err: errProviderDown}).BuildQA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Failed)

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.QAEmbeddings)
}

func TestBuildPagesUsesFetchTimestamp(t *testing.T) {
	store := dbtest.New()
	fetched := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	store.AddPages(
		db.Page{ID: 1, URL: "https://school.example/a", Title: "방과후 안내", Content: "방과후 학교", FetchedAt: fetched},
		db.Page{ID: 2, URL: "https://school.example/b", Title: "급식", Content: "식단표", FetchedAt: fetched},
		db.Page{ID: 3, URL: "https://school.example/c"},
	)
	p := &stubProvider{}
	b := newBuilder(store, p)
	ctx := context.Background()

	stats, err := b.BuildPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Created)
	assert.Equal(t, int64(1), stats.Skipped, "page with no text is skipped")
	assert.Equal(t, 2, p.Calls())

	stats, err = b.BuildPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Skipped)
	assert.Equal(t, 2, p.Calls())

	store.SetPage(db.Page{ID: 2, URL: "https://school.example/b", Title: "급식", Content: "새 식단표", FetchedAt: fetched.Add(time.Hour)})
	stats, err = b.BuildPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Updated)
	assert.Equal(t, 3, p.Calls())

	emb, err := store.GetPageEmbedding(ctx, 2)
	require.NoError(t, err)
	assert.True(t, emb.FetchedAt.Equal(fetched.Add(time.Hour)))
}

func TestPageTextTruncatesRunes(t *testing.T) {
	p := db.Page{Title: "제목", Content: "가나다라마바사"}
	assert.Equal(t, "제목\n가나", PageText(p, 5))
	assert.Equal(t, "제목\n가나다라마바사", PageText(p, 0))
	assert.Equal(t, "본문", PageText(db.Page{Content: "본문"}, 100))
}
