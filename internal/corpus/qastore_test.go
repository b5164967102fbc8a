package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbot/schoolbot/internal/db"
)

func sampleEntries() []db.QAEntry {
	return []db.QAEntry{
		{ID: 1, Category: db.CategoryMeal, Question: "오늘 급식 메뉴 알려줘", Answer: "오늘은 비빔밥입니다."},
		{ID: 2, Category: db.CategoryElementary, Question: "방과후 신청 방법", Answer: "가정통신문을 확인하세요."},
		{ID: 3, Category: db.CategoryKindergarten, Question: "유치원 운영시간", Answer: "9시부터 5시까지입니다."},
		{ID: 4, Category: db.CategoryElementary, Question: "  Oneul Geupsik  ", Answer: "romanized"},
		{ID: 5, Category: db.CategoryMeal, Question: "오늘 급식 메뉴 알려줘", Answer: "duplicate"},
	}
}

func TestExactMatchEveryEntry(t *testing.T) {
	entries := sampleEntries()
	store := NewQAStore(entries)

	for _, e := range entries[:4] {
		got, ok := store.ExactMatch(e.Question)
		require.True(t, ok, e.Question)
		assert.Equal(t, e.ID, got.ID)
	}
}

func TestExactMatchTrimAndCase(t *testing.T) {
	store := NewQAStore(sampleEntries())

	got, ok := store.ExactMatch("  oneul GEUPSIK")
	require.True(t, ok)
	assert.Equal(t, int64(4), got.ID)

	got, ok = store.ExactMatch("오늘 급식 메뉴 알려줘")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID, "first entry in corpus order wins")

	_, ok = store.ExactMatch("오늘 급식 메뉴 알려줘?")
	assert.False(t, ok, "punctuation is not normalized away")

	_, ok = store.ExactMatch("   ")
	assert.False(t, ok)
}

func TestSubstringCandidates(t *testing.T) {
	store := NewQAStore(sampleEntries())

	got := store.SubstringCandidates("방과후 신청")
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	got = store.SubstringCandidates("혹시 유치원 운영시간 알 수 있나요")
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)

	got = store.SubstringCandidates("급식")
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 5}, []int64{got[0].ID, got[1].ID})

	assert.Empty(t, store.SubstringCandidates(""))
	assert.Empty(t, store.SubstringCandidates("졸업식"))
}

func TestNewQAStoreCopiesInput(t *testing.T) {
	entries := sampleEntries()
	store := NewQAStore(entries)
	entries[0].Answer = "changed"

	got, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, "오늘은 비빔밥입니다.", got.Answer)
}
