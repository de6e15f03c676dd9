package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/okian/playstack/internal/domain/model"
)

// EventDependencies defines the interface for event ingestion.
type EventDependencies interface {
	Ingest(ctx context.Context, teamID string, events []model.PlayEvent, games []model.GameMeta) (int, bool, error)
}

// EventsHandler handles event ingestion requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type eventsRequest struct {
	Events []model.PlayEvent `json:"events"`
	Games  []model.GameMeta  `json:"games"`
}

type ackResponse struct {
	Status string `json:"status"`
	Events int    `json:"events"`
}

// HandlePostEvents handles POST /teams/{teamId}/events. Events are upserted
// by ID; a full recompute queue answers 429 after the events are stored, so
// a retry is safe.
func (h *EventsHandler) HandlePostEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_events"
	teamID := strings.TrimSpace(r.PathValue("teamId"))
	var req eventsRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if len(req.Events) == 0 && len(req.Games) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errEmptyBatch))
		return
	}
	for i := range req.Events {
		if strings.TrimSpace(req.Events[i].ID) == "" {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errMissingEventID))
			return
		}
	}

	count, queued, err := h.deps.Ingest(r.Context(), teamID, req.Events, req.Games)
	if err != nil {
		writeServiceError(w, err, time.Time{})
		return
	}
	if !queued {
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, nil))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Events: count})
}
