package httpapi

import (
	"net/http"
	"strconv"

	"github.com/lukasbauer/apriori/internal/store"
)

// handleAdminCallEvents returns the lifecycle audit trail of one call.
func (r *Router) handleAdminCallEvents(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error": "invalid call id"}`, http.StatusBadRequest)
		return
	}

	events, err := r.svc.Reporting.ListCallEvents(req.Context(), id)
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Int64("call_id", id).Msg("admin: failed to list call events")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []store.CallEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"call_id": id, "events": events})
}
