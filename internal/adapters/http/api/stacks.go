package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/playstack/internal/app"
	"github.com/okian/playstack/internal/domain/aggregate"
)

// StacksDependencies defines the interface for stack summaries.
type StacksDependencies interface {
	Summarize(ctx context.Context, tenantKey string, req service.Request) (aggregate.Result, error)
	Latest(teamID string) (aggregate.Result, bool)
	Now() time.Time
}

// StacksHandler serves per-game stacks and team summaries.
type StacksHandler struct {
	deps StacksDependencies
}

// NewStacksHandler creates a new stacks handler.
func NewStacksHandler(deps StacksDependencies) *StacksHandler {
	return &StacksHandler{deps: deps}
}

// HandlePostStacks handles POST /teams/{teamId}/stacks. The tenant charged
// for the call comes from X-Tenant-Key, falling back to the team ID.
func (h *StacksHandler) HandlePostStacks(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_stacks"
	teamID := strings.TrimSpace(r.PathValue("teamId"))
	if teamID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, nil))
		return
	}
	var req service.Request
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	req.TeamID = teamID

	tenantKey := strings.TrimSpace(r.Header.Get(HeaderTenantKey))
	if tenantKey == "" {
		tenantKey = teamID
	}
	res, err := h.deps.Summarize(r.Context(), tenantKey, req)
	if err != nil {
		writeServiceError(w, err, h.deps.Now())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetSummary handles GET /teams/{teamId}/summary.
func (h *StacksHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_summary"
	teamID := strings.TrimSpace(r.PathValue("teamId"))
	res, ok := h.deps.Latest(teamID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNotFound, nil))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
