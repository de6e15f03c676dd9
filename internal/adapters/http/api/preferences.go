package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/okian/playstack/internal/domain/model"
)

// PreferencesDependencies defines the interface for tenant preferences.
type PreferencesDependencies interface {
	SetPreferences(ctx context.Context, teamID string, p model.Preferences) error
	Preferences(teamID string) (model.Preferences, bool)
}

// PreferencesHandler stores and returns tenant preferences.
type PreferencesHandler struct {
	deps PreferencesDependencies
}

// NewPreferencesHandler creates a new preferences handler.
func NewPreferencesHandler(deps PreferencesDependencies) *PreferencesHandler {
	return &PreferencesHandler{deps: deps}
}

// HandlePutPreferences handles PUT /teams/{teamId}/preferences.
func (h *PreferencesHandler) HandlePutPreferences(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_preferences"
	teamID := strings.TrimSpace(r.PathValue("teamId"))
	var prefs model.Preferences
	if err := decodeBody(w, r, op, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.SetPreferences(r.Context(), teamID, prefs); err != nil {
		writeServiceError(w, err, time.Time{})
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandleGetPreferences handles GET /teams/{teamId}/preferences.
func (h *PreferencesHandler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_preferences"
	prefs, ok := h.deps.Preferences(strings.TrimSpace(r.PathValue("teamId")))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNotFound, nil))
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
