package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/playstack/internal/domain/freshness"
)

// FreshnessDependencies defines the interface for freshness checks.
type FreshnessDependencies interface {
	Freshness(lastUpdated *string, now time.Time) freshness.Status
	Now() time.Time
}

// FreshnessHandler reports how current a data feed is.
type FreshnessHandler struct {
	deps FreshnessDependencies
}

// NewFreshnessHandler creates a new freshness handler.
func NewFreshnessHandler(deps FreshnessDependencies) *FreshnessHandler {
	return &FreshnessHandler{deps: deps}
}

type freshnessResponse struct {
	State       freshness.State `json:"state"`
	Label       string          `json:"label"`
	LastUpdated *string         `json:"last_updated"`
	Now         int64           `json:"now"`
}

// HandleFreshness handles GET /freshness?last_updated=<ts>&now=<ms>. A
// missing last_updated is offline; a missing now uses the server clock.
func (h *FreshnessHandler) HandleFreshness(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_freshness"
	q := r.URL.Query()

	now := h.deps.Now()
	if raw := strings.TrimSpace(q.Get("now")); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		now = time.UnixMilli(ms)
	}

	var lastUpdated *string
	if q.Has("last_updated") {
		v := q.Get("last_updated")
		lastUpdated = &v
	}
	st := h.deps.Freshness(lastUpdated, now)
	writeJSON(w, http.StatusOK, freshnessResponse{
		State:       st.State,
		Label:       st.Label,
		LastUpdated: lastUpdated,
		Now:         now.UnixMilli(),
	})
}
