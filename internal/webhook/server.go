// Package webhook exposes the resolver to the chat platform's skill webhook.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolbot/schoolbot/internal/corpus"
	"github.com/schoolbot/schoolbot/internal/db"
	"github.com/schoolbot/schoolbot/internal/observability"
	"github.com/schoolbot/schoolbot/internal/resolver"
)

const maxBodyBytes = 64 << 10

// Resolver answers one utterance against a snapshot
type Resolver interface {
	Resolve(ctx context.Context, snap *corpus.Snapshot, req resolver.Request) *resolver.Result
}

// Corpus serves and reloads the corpus snapshot
type Corpus interface {
	Current() *corpus.Snapshot
	Refresh(ctx context.Context) (*corpus.Snapshot, error)
}

// Server holds the webhook dependencies
type Server struct {
	resolver     Resolver
	corpus       Corpus
	store        db.Store
	logger       zerolog.Logger
	quickReplies []QuickReply
}

// NewServer creates a webhook server
func NewServer(res Resolver, c Corpus, store db.Store, logger zerolog.Logger) *Server {
	return &Server{
		resolver:     res,
		corpus:       c,
		store:        store,
		logger:       logger,
		quickReplies: DefaultQuickReplies,
	}
}

// Router returns the HTTP handler with every route mounted
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.accessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "schoolbot is running"})
	})
	r.Post("/", s.Skill)
	r.Post("/skill", s.Skill)
	r.Get("/health", s.Health)
	r.Get("/stats", s.Stats)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/refresh", s.Refresh)
	})

	return r
}

// Skill handles POST /skill. The platform expects a reply body even for
// malformed requests, so decoding failures are answered like empty input.
func (s *Server) Skill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, s.logger)

	var req SkillRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn().Err(err).Str("error_kind", "bad_request").Msg("failed to decode skill request")
	}

	res := s.resolver.Resolve(ctx, s.corpus.Current(), resolver.Request{
		Utterance: req.UserRequest.Utterance,
		UserID:    req.UserRequest.User.ID,
	})

	writeJSON(w, http.StatusOK, Render(res, s.quickReplies))
}

// Health handles GET /health. It always answers 200 and reports the
// database state in the body.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{
		"status":   "healthy",
		"database": "connected",
		"corpus":   s.corpus.Current().Stats(),
	}
	if err := s.store.Ping(ctx); err != nil {
		resp["database"] = "disconnected"
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats handles GET /stats with per-table row counts
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		l := observability.WithRequest(r.Context(), s.logger)
		l.Error().Err(err).Msg("failed to count tables")
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tables": counts})
}

// Refresh handles POST /admin/refresh
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.corpus.Refresh(r.Context())
	if err != nil {
		l := observability.WithRequest(r.Context(), s.logger)
		l.Error().Err(err).Msg("failed to refresh corpus")
		writeError(w, http.StatusInternalServerError, "refresh failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "corpus": snap.Stats()})
}

// requestID tags the request context with an id, reusing the caller's
// X-Request-ID when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(observability.ContextWithRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		l := observability.WithRequest(r.Context(), s.logger)
		l.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
