package corpus

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/db/dbtest"
)

func TestBuildExcludesBadVectors(t *testing.T) {
	entries := sampleEntries()
	qaEmb := []db.QAEmbedding{
		{QAID: 1, Vector: []float32{1, 0}},
		{QAID: 2, DecodeErr: errors.New("bad json")},
		{QAID: 3, Vector: []float32{float32(math.NaN()), 1}},
		{QAID: 99, Vector: []float32{0, 1}},
	}
	pages := []db.Page{{ID: 10, URL: "https://school.example/a", Title: "A"}}
	pageEmb := []db.PageEmbedding{
		{PageID: 10, Vector: []float32{0.5, 0.5}},
		{PageID: 11, Vector: []float32{0.5, 0.5}},
		{PageID: 12},
	}

	snap := Build(entries, qaEmb, pages, pageEmb, zerolog.Nop())

	require.Len(t, snap.QAVectors, 1)
	assert.Equal(t, int64(1), snap.QAVectors[0].Key)
	assert.Len(t, snap.PageVectors, 1)
	assert.Contains(t, snap.PageVectors, int64(10))

	st := snap.Stats()
	assert.Equal(t, 5, st.QAEntries)
	assert.Equal(t, 1, st.Pages)
}

func TestHolderRefreshSwapsSnapshot(t *testing.T) {
	store := dbtest.New()
	holder := NewHolder(store, zerolog.Nop())

	before := holder.Current()
	require.NotNil(t, before)
	assert.Equal(t, 0, before.QA.Len())

	store.AddQA(db.QAEntry{Question: "급식 시간", Answer: "12시"})
	store.PutQAEmbedding(db.QAEmbedding{QAID: 1, Vector: []float32{1, 2}})

	snap, err := holder.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, holder.Current())
	assert.Equal(t, 1, snap.QA.Len())
	assert.Len(t, snap.QAVectors, 1)
	assert.Equal(t, 0, before.QA.Len(), "old snapshot is untouched")
}

func TestHolderRefreshErrorKeepsSnapshot(t *testing.T) {
	store := dbtest.New()
	store.AddQA(db.QAEntry{Question: "급식 시간", Answer: "12시"})
	holder := NewHolder(store, zerolog.Nop())

	_, err := holder.Refresh(context.Background())
	require.NoError(t, err)
	good := holder.Current()

	store.Err = dbtest.ErrUnavailable
	_, err = holder.Refresh(context.Background())
	assert.ErrorIs(t, err, dbtest.ErrUnavailable)
	assert.Same(t, good, holder.Current())
}

func TestHolderRunStopsOnCancel(t *testing.T) {
	store := dbtest.New()
	holder := NewHolder(store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		holder.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	store.AddQA(db.QAEntry{Question: "개학일", Answer: "3월 2일"})
	assert.Eventually(t, func() bool {
		return holder.Current().QA.Len() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
