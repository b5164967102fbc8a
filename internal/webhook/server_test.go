package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbot/schoolbot/internal/corpus"
	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/db/dbtest"
	"github.com/schoolbot/schoolbot/internal/links"
	"github.com/schoolbot/schoolbot/internal/observability"
	"github.com/schoolbot/schoolbot/internal/resolver"
)

func setupServer(t *testing.T) (*dbtest.MemStore, *corpus.Holder, http.Handler) {
	t.Helper()

	store := dbtest.New()
	store.AddQA(
		db.QAEntry{ID: 1, Category: db.CategoryMeal, Question: "오늘 급식 메뉴 알려줘", Answer: "오늘은 비빔밥입니다."},
		db.QAEntry{ID: 2, Category: db.CategoryUncategorized, Question: "교과서 구매", Answer: "https://www.ktbookmall.com"},
	)
	holder := corpus.NewHolder(store, zerolog.Nop())
	_, err := holder.Refresh(context.Background())
	require.NoError(t, err)

	res := resolver.New(resolver.DefaultConfig(), nil, nil, nil, zerolog.Nop())
	srv := NewServer(res, holder, store, zerolog.Nop())
	return store, holder, srv.Router()
}

func postSkill(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, SkillResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/skill", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp SkillResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func envelope(utterance string) string {
	b, _ := json.Marshal(map[string]any{
		"userRequest": map[string]any{
			"utterance": utterance,
			"user":      map[string]any{"id": "u-1"},
		},
	})
	return string(b)
}

func TestSkillExactAnswer(t *testing.T) {
	_, _, h := setupServer(t)

	rec, resp := postSkill(t, h, envelope("오늘 급식 메뉴 알려줘"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "2.0", resp.Version)
	require.Len(t, resp.Template.Outputs, 1)
	require.NotNil(t, resp.Template.Outputs[0].SimpleText)
	assert.Equal(t, "오늘은 비빔밥입니다.", resp.Template.Outputs[0].SimpleText.Text)
	assert.Len(t, resp.Template.QuickReplies, 3)
}

func TestSkillLinkOnlyAnswerGetsButton(t *testing.T) {
	_, _, h := setupServer(t)

	_, resp := postSkill(t, h, envelope("교과서 구매"))

	card := resp.Template.Outputs[0].TextCard
	require.NotNil(t, card)
	assert.Equal(t, "교과서 구매는 아래 링크에서 가능합니다.", card.Text)
	require.Len(t, card.Buttons, 1)
	assert.Equal(t, "webLink", card.Buttons[0].Action)
	assert.Equal(t, "https://www.ktbookmall.com", card.Buttons[0].WebLinkURL)
}

func TestSkillEmptyAndMalformedBodies(t *testing.T) {
	_, _, h := setupServer(t)
	greeting := resolver.DefaultConfig().GreetingText

	for _, body := range []string{"", "{", envelope("   ")} {
		rec, resp := postSkill(t, h, body)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, resp.Template.Outputs[0].SimpleText)
		assert.Equal(t, greeting, resp.Template.Outputs[0].SimpleText.Text)
	}
}

func TestSkillFallbackCarriesHint(t *testing.T) {
	_, _, h := setupServer(t)

	_, resp := postSkill(t, h, envelope("주차장 위치"))

	text := resp.Template.Outputs[0].SimpleText.Text
	cfg := resolver.DefaultConfig()
	assert.Equal(t, cfg.FallbackText+"\n"+cfg.MenuHint, text)
	assert.Equal(t, "학사일정", resp.Template.QuickReplies[0].MessageText)
}

func TestSkillRootAlias(t *testing.T) {
	_, _, h := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(envelope("오늘 급식 메뉴 알려줘")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "비빔밥")
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	store, _, h := setupServer(t)

	get := func() map[string]any {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	body := get()
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, float64(2), body["corpus"].(map[string]any)["qa_entries"])

	store.Err = dbtest.ErrUnavailable
	body = get()
	assert.Equal(t, "disconnected", body["database"])
}

func TestStats(t *testing.T) {
	_, _, h := setupServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var body struct {
		OK     bool      `json:"ok"`
		Tables db.Counts `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, int64(2), body.Tables.QAEntries)
}

func TestAdminRefresh(t *testing.T) {
	store, holder, h := setupServer(t)
	store.AddQA(db.QAEntry{ID: 3, Question: "주차장 위치", Answer: "정문 옆입니다."})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, holder.Current().QA.Len())

	_, resp := postSkill(t, h, envelope("주차장 위치"))
	assert.Equal(t, "정문 옆입니다.", resp.Template.Outputs[0].SimpleText.Text)

	store.Err = dbtest.ErrUnavailable
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 3, holder.Current().QA.Len())
}

func TestRenderLinkCards(t *testing.T) {
	res := &resolver.Result{
		Kind: resolver.KindLinkCards,
		Cards: []links.Card{
			{Title: "방과후 학교 안내", Snippet: "…방과후 프로그램…", URL: "https://school.example/afterschool"},
			{Title: "가정통신문", Snippet: "공지", URL: "https://school.example/notice"},
		},
	}

	resp := Render(res, nil)

	card := resp.Template.Outputs[0].ListCard
	require.NotNil(t, card)
	assert.Equal(t, listCardHeader, card.Header.Title)
	require.Len(t, card.Items, 2)
	assert.Equal(t, "https://school.example/afterschool", card.Items[0].Link.Web)
	assert.Empty(t, resp.Template.QuickReplies)
}

func TestRenderAnswerWithLink(t *testing.T) {
	res := &resolver.Result{Kind: resolver.KindKeyword, Text: "신청서는 여기서 - https://school.example/form", Link: ""}
	out := Render(res, DefaultQuickReplies).Template.Outputs[0]
	require.NotNil(t, out.TextCard)
	assert.Equal(t, "신청서는 여기서", out.TextCard.Text)
	assert.Equal(t, "https://school.example/form", out.TextCard.Buttons[0].WebLinkURL)

	res = &resolver.Result{Kind: resolver.KindExact, Text: "급식표를 확인하세요.", Link: "https://school.example/meal"}
	out = Render(res, DefaultQuickReplies).Template.Outputs[0]
	require.NotNil(t, out.TextCard)
	assert.Equal(t, "급식표를 확인하세요.", out.TextCard.Text)
	assert.Equal(t, "https://school.example/meal", out.TextCard.Buttons[0].WebLinkURL)
}
