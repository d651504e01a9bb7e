// Package server exposes the scoring pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/extract"
	"github.com/sells-group/listing-trust/internal/governor"
	"github.com/sells-group/listing-trust/internal/match"
	"github.com/sells-group/listing-trust/internal/metrics"
	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/pipeline"
	"github.com/sells-group/listing-trust/internal/resilience"
	"github.com/sells-group/listing-trust/internal/translate"
)

// UserHeader carries the caller's user id. It is trusted as given.
const UserHeader = "X-User-ID"

const (
	maxBodyBytes     = 1 << 20
	maxMatchListings = 500
	defaultTimeout   = 30 * time.Second
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the server's collaborators.
type Config struct {
	Pipeline   *pipeline.Pipeline
	Extractor  *extract.Extractor
	Translator *translate.Translator
	// Health is checked by GET /health; nil reports ok.
	Health         Pinger
	CORSOrigins    []string
	RequestTimeout time.Duration
	MatchWorkers   int
}

// Server holds the HTTP handlers.
type Server struct {
	pipeline   *pipeline.Pipeline
	extractor  *extract.Extractor
	translator *translate.Translator
	health     Pinger
	workers    int
	router     chi.Router
}

// New builds the router. Pipeline is required; a nil Extractor or
// Translator gets a deterministic-only default.
func New(cfg Config) *Server {
	s := &Server{
		pipeline:   cfg.Pipeline,
		extractor:  cfg.Extractor,
		translator: cfg.Translator,
		health:     cfg.Health,
		workers:    cfg.MatchWorkers,
	}
	if s.extractor == nil {
		s.extractor = extract.New()
	}
	if s.translator == nil {
		s.translator = translate.New(nil)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(jsonRecoverer)
	r.Use(metrics.Middleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", UserHeader, chiMiddleware.RequestIDHeader},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(chiMiddleware.Timeout(timeout))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/trust/score", s.handleScore)
		r.Post("/listings/{id}/trust", s.handleScoreByID)
		r.Post("/extract", s.handleExtract)
		r.Post("/match", s.handleMatch)
		r.Post("/translate", s.handleTranslate)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			zap.L().Warn("server: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var l model.Listing
	if !decodeBody(w, r, &l) {
		return
	}
	ev, err := s.pipeline.Evaluate(r.Context(), s.request(r, &l))
	s.writeEvaluation(w, ev, err)
}

func (s *Server) handleScoreByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := s.pipeline.EvaluateByID(r.Context(), id, s.request(r, nil))
	s.writeEvaluation(w, ev, err)
}

type extractRequest struct {
	Text  string                 `json:"text"`
	Prior *model.ExtractedFields `json:"prior,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "text is required")
		return
	}
	if len(req.Text) > model.MaxDescriptionLen {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "text is too long")
		return
	}
	writeJSON(w, http.StatusOK, s.extractor.Extract(r.Context(), req.Text, req.Prior))
}

type matchRequest struct {
	Preferences model.MatchPreferences `json:"preferences"`
	Listings    []*model.Listing       `json:"listings"`
}

type matchResponse struct {
	Results []model.MatchResult `json:"results"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Listings) > maxMatchListings {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "too many listings")
		return
	}
	results, err := match.Rank(r.Context(), req.Preferences, req.Listings, s.workers)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if results == nil {
		results = []model.MatchResult{}
	}
	writeJSON(w, http.StatusOK, matchResponse{Results: results})
}

type translateRequest struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.translator.Translate(r.Context(), req.Text, req.Target)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) request(r *http.Request, l *model.Listing) pipeline.Request {
	return pipeline.Request{
		UserID:   strings.TrimSpace(r.Header.Get(UserHeader)),
		Fallback: remoteIP(r),
		Listing:  l,
	}
}

func (s *Server) writeEvaluation(w http.ResponseWriter, ev pipeline.Evaluation, err error) {
	setRateHeaders(w, ev.Decision)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev.Result)
}

// setRateHeaders reports the governor's budget. It writes nothing when no
// governor ran.
func setRateHeaders(w http.ResponseWriter, d governor.Decision) {
	if d.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return false
	}
	return true
}

// writeFailure maps pipeline errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	if rl, ok := resilience.AsRateLimited(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Code:              CodeRateLimited,
			Message:           "rate limit exceeded",
			RetryAfterSeconds: rl.RetryAfterSeconds,
		})
		return
	}
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, safeMessage(err))
	case errors.Is(err, model.ErrListingNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "listing not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "request timed out")
	default:
		zap.L().Error("server: request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// safeMessage returns the outermost validation message, without the
// sentinel suffix or any wrapped driver text.
func safeMessage(err error) string {
	msg, _, _ := strings.Cut(err.Error(), ": ")
	if msg == "" {
		return model.ErrInvalidInput.Error()
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
