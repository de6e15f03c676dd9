// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/playstack/internal/adapters/repository"
	service "github.com/okian/playstack/internal/app"
	"github.com/okian/playstack/internal/domain/aggregate"
	"github.com/okian/playstack/internal/domain/freshness"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/internal/domain/overlay"
	"github.com/okian/playstack/internal/domain/ratelimit"
)

// Headers read or written by the API.
const (
	HeaderTenantKey  = "X-Tenant-Key"
	HeaderRequestID  = "X-Request-ID"
	HeaderRetryAfter = "Retry-After"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 10 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Summarize(ctx context.Context, tenantKey string, req service.Request) (aggregate.Result, error)
	Latest(teamID string) (aggregate.Result, bool)
	SetPreferences(ctx context.Context, teamID string, p model.Preferences) error
	Preferences(teamID string) (model.Preferences, bool)
	Ingest(ctx context.Context, teamID string, events []model.PlayEvent, games []model.GameMeta) (int, bool, error)
	Freshness(lastUpdated *string, now time.Time) freshness.Status
	Now() time.Time
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	stacksHandler      *StacksHandler
	preferencesHandler *PreferencesHandler
	eventsHandler      *EventsHandler
	freshnessHandler   *FreshnessHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		stacksHandler:      NewStacksHandler(deps),
		preferencesHandler: NewPreferencesHandler(deps),
		eventsHandler:      NewEventsHandler(deps),
		freshnessHandler:   NewFreshnessHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /freshness", MetricsMiddleware(s.freshnessHandler.HandleFreshness, "freshness"))
	mux.HandleFunc("POST /teams/{teamId}/stacks", MetricsMiddleware(s.stacksHandler.HandlePostStacks, "stacks"))
	mux.HandleFunc("GET /teams/{teamId}/summary", MetricsMiddleware(s.stacksHandler.HandleGetSummary, "summary"))
	mux.HandleFunc("GET /teams/{teamId}/preferences", MetricsMiddleware(s.preferencesHandler.HandleGetPreferences, "preferences"))
	mux.HandleFunc("PUT /teams/{teamId}/preferences", MetricsMiddleware(s.preferencesHandler.HandlePutPreferences, "preferences"))
	mux.HandleFunc("POST /teams/{teamId}/events", MetricsMiddleware(s.eventsHandler.HandlePostEvents, "events"))
}

// Handler returns the routes wrapped with the request ID middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return RequestIDMiddleware(mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RetryAt int64  `json:"retry_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeLimited answers a denied call with 429, a Retry-After in whole
// seconds rounded up and the reset time in epoch milliseconds.
func writeLimited(w http.ResponseWriter, le *ratelimit.LimitError, now time.Time) {
	wait := time.Duration(le.RetryAt-now.UnixMilli()) * time.Millisecond
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(secs, 10))
	writeJSON(w, le.Status, errorResponse{Code: "rate_limited", Message: le.Error(), RetryAt: le.RetryAt})
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error, now time.Time) {
	var le *ratelimit.LimitError
	var ve *overlay.ValidationError
	switch {
	case errors.As(err, &le):
		writeLimited(w, le, now)
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "limiter_unavailable", err)
	case errors.As(err, &ve),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidTeamID),
		errors.Is(err, aggregate.ErrInvalidTeamID),
		errors.Is(err, repository.ErrInvalidTeamID),
		errors.Is(err, repository.ErrTeamMismatch):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrTooManyEvents):
		writeError(w, http.StatusRequestEntityTooLarge, "too_many_events", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeBody reads a JSON body of at most maxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return wrapKind(op, ErrBadRequest, err)
	}
	return nil
}
