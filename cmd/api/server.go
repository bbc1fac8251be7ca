package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/relatedwork/internal/auth"
	"github.com/seanblong/relatedwork/internal/indexer"
	"github.com/seanblong/relatedwork/internal/jira"
	"github.com/seanblong/relatedwork/internal/metrics"
	"github.com/seanblong/relatedwork/internal/remote"
	"github.com/seanblong/relatedwork/internal/search"
	"github.com/seanblong/relatedwork/internal/similarity"
	"github.com/seanblong/relatedwork/internal/textindex"
	"github.com/seanblong/relatedwork/pkg/models"
)

type textSearcher interface {
	Query(ctx context.Context, q string, k int, minScore *float64) ([]models.RankedResult, error)
}

type similarFinder interface {
	Similar(ctx context.Context, key string, opts similarity.Options) (search.Similar, error)
}

type indexLoader interface {
	Load(ctx context.Context, limit int, forceRefresh bool) (indexer.Result, error)
}

type issueSearcher interface {
	SearchIssues(ctx context.Context, p jira.SearchParams, maxResults int) (jira.SearchResult, error)
}

// defaults are the per-request values used when a query parameter is absent.
type defaults struct {
	SearchResults int
	MaxResults    int
	MinScore      float64
	LoadLimit     int
}

// server holds the HTTP handlers. A nil collaborator disables its endpoints
// with 503.
type server struct {
	text     textSearcher
	similar  similarFinder
	loader   indexLoader
	issues   issueSearcher
	auth     *auth.Authenticator
	defaults defaults

	loading sync.Mutex
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
	}))
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/search", s.handleSearch)
		r.Get("/similar/{key}", s.handleSimilar)
		r.Get("/issues", s.handleIssues)
		r.Post("/index/load", s.handleLoad)
	})
	return r
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.text == nil {
		writeError(w, http.StatusServiceUnavailable, "text index not configured")
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	k, err := intParam(r, "k", s.defaults.SearchResults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minScore, err := optFloatParam(r, "min_score")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	res, err := s.text.Query(ctx, q, k, minScore)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	for i := range res {
		res[i].Score = finite(res[i].Score)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if s.similar == nil {
		writeError(w, http.StatusServiceUnavailable, "issue tracker not configured")
		return
	}
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing issue key")
		return
	}
	k, err := intParam(r, "k", s.defaults.MaxResults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minScore, err := optFloatParam(r, "min_score")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if minScore == nil {
		minScore = similarity.MinScore(s.defaults.MinScore)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	res, err := s.similar.Similar(ctx, key, similarity.Options{MinScore: minScore, Limit: k})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleIssues(w http.ResponseWriter, r *http.Request) {
	if s.issues == nil {
		writeError(w, http.StatusServiceUnavailable, "issue tracker not configured")
		return
	}
	v := r.URL.Query()
	p := jira.SearchParams{
		Keywords:   v.Get("keywords"),
		Components: jira.SplitList(v.Get("components")),
		Labels:     jira.SplitList(v.Get("labels")),
		Projects:   jira.SplitList(v.Get("projects")),
	}
	k, err := intParam(r, "k", s.defaults.MaxResults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	res, err := s.issues.SearchIssues(ctx, p, k)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if res.Items == nil {
		res.Items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		writeError(w, http.StatusServiceUnavailable, "no pull request source configured")
		return
	}
	limit, err := intParam(r, "limit", s.defaults.LoadLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		if force, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid force: "+v)
			return
		}
	}

	if !s.loading.TryLock() {
		writeError(w, http.StatusConflict, "index load already running")
		return
	}
	defer s.loading.Unlock()

	res, err := s.loader.Load(r.Context(), limit, force)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name + ": " + v)
	}
	return n, nil
}

func optFloatParam(r *http.Request, name string) (*float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return nil, errors.New("invalid " + name + ": " + v)
	}
	return &f, nil
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// statusFor maps a failure to its HTTP status: malformed queries are the
// caller's fault, upstream failures are a bad gateway.
func statusFor(err error) int {
	var pe *textindex.ParseError
	var re *remote.RemoteError
	switch {
	case errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.As(err, &re):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
