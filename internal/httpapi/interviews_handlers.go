package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/store"
)

// highRiskThreshold is the default floor for /admin/interviews/high-risk.
const highRiskThreshold = 0.7

// interviewFilter reads the list query: department, min_risk, q, limit, offset.
func interviewFilter(req *http.Request) (store.InterviewFilter, error) {
	q := req.URL.Query()
	f := store.InterviewFilter{Department: q.Get("department"), Search: q.Get("q")}

	if raw := q.Get("min_risk"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return f, errors.New("min_risk must be between 0 and 1")
		}
		f.MinRisk = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > store.MaxInterviewLimit {
			return f, errors.New("limit must be between 1 and " + strconv.Itoa(store.MaxInterviewLimit))
		}
		f.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = v
	}
	return f, nil
}

func (r *Router) handleListInterviews(w http.ResponseWriter, req *http.Request) {
	f, err := interviewFilter(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	r.listInterviews(w, req, f)
}

// handleHighRiskInterviews lists interviews at or above the high-risk floor, riskiest first.
func (r *Router) handleHighRiskInterviews(w http.ResponseWriter, req *http.Request) {
	f, err := interviewFilter(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if f.MinRisk == 0 {
		f.MinRisk = highRiskThreshold
	}
	f.SortByRisk = true
	r.listInterviews(w, req, f)
}

func (r *Router) listInterviews(w http.ResponseWriter, req *http.Request, f store.InterviewFilter) {
	list, err := r.svc.Interviews.ListInterviews(req.Context(), f)
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("admin: failed to list interviews")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []store.InterviewDetail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interviews": list, "count": len(list)})
}

func (r *Router) handleGetInterview(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error": "invalid interview id"}`, http.StatusBadRequest)
		return
	}

	iv, err := r.svc.Interviews.GetInterview(req.Context(), id)
	if errors.Is(err, followup.ErrNotFound) {
		http.Error(w, `{"error": "interview not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Int64("interview_id", id).Msg("admin: failed to load interview")
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}
