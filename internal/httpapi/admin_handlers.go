package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/jobs"
	"github.com/lukasbauer/apriori/internal/lock"
	"github.com/lukasbauer/apriori/internal/report"
)

const maxPeriodDays = 365

// periodDays reads ?days, defaulting to the configured period.
func (r *Router) periodDays(req *http.Request) (int, error) {
	raw := req.URL.Query().Get("days")
	if raw == "" {
		return r.cfg.DefaultDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxPeriodDays {
		return 0, fmt.Errorf("days must be between 1 and %d", maxPeriodDays)
	}
	return days, nil
}

// withPassLock runs pass under key. ok is false when another pass holds the lock.
func (r *Router) withPassLock(ctx context.Context, key string, ttl time.Duration, pass func(context.Context) error) (ok bool, err error) {
	lease, err := r.svc.Locker.Acquire(ctx, key, ttl)
	if errors.Is(err, lock.ErrNotAcquired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(rctx); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("admin: failed to release pass lock")
		}
	}()

	passCtx, stop := lock.KeepAlive(ctx, lease, ttl)
	defer stop()
	return true, pass(passCtx)
}

// handleAdminSchedule runs one scheduling pass for the requested call type.
func (r *Router) handleAdminSchedule(w http.ResponseWriter, req *http.Request) {
	var body struct {
		CallType string `json:"call_type"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
			return
		}
	}
	if body.CallType == "" {
		body.CallType = string(followup.CallTypeRetentionCheck)
	}
	ct, err := followup.ParseCallType(body.CallType)
	if err != nil {
		http.Error(w, `{"error": "unknown call_type"}`, http.StatusBadRequest)
		return
	}

	var summary followup.ScheduleSummary
	ran, err := r.withPassLock(req.Context(), jobs.ScheduleLockKey, r.cfg.ScheduleLockTTL, func(ctx context.Context) error {
		var err error
		summary, err = r.svc.Scheduler.RunPass(ctx, ct)
		return err
	})
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("admin: schedule pass failed")
		captureError(req, err, "admin schedule pass failed")
		http.Error(w, `{"error": "schedule pass failed"}`, http.StatusInternalServerError)
		return
	}
	if !ran {
		http.Error(w, `{"error": "a schedule pass is already running"}`, http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleAdminExecute starts every due call.
func (r *Router) handleAdminExecute(w http.ResponseWriter, req *http.Request) {
	var summary followup.ExecuteSummary
	ran, err := r.withPassLock(req.Context(), jobs.ExecuteLockKey, r.cfg.ExecuteLockTTL, func(ctx context.Context) error {
		var err error
		summary, err = r.svc.Executor.RunPass(ctx)
		return err
	})
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("admin: execute pass failed")
		captureError(req, err, "admin execute pass failed")
		http.Error(w, `{"error": "execute pass failed"}`, http.StatusInternalServerError)
		return
	}
	if !ran {
		http.Error(w, `{"error": "an execute pass is already running"}`, http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleAdminAnalytics summarizes follow-up calls created in the period.
func (r *Router) handleAdminAnalytics(w http.ResponseWriter, req *http.Request) {
	days, err := r.periodDays(req)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": %q}`, err.Error()), http.StatusBadRequest)
		return
	}
	since := r.now().AddDate(0, 0, -days)

	calls, err := r.svc.Reporting.ListCalls(req.Context(), since)
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("admin: failed to list calls")
		http.Error(w, `{"error": "failed to load calls"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period_days": days,
		"since":       since,
		"analytics":   followup.SummarizeCalls(calls),
	})
}

// handleAdminInsights returns the aggregate exit-interview insights for the period.
func (r *Router) handleAdminInsights(w http.ResponseWriter, req *http.Request) {
	days, err := r.periodDays(req)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": %q}`, err.Error()), http.StatusBadRequest)
		return
	}
	in, err := report.Load(req.Context(), r.svc.Reporting, r.now(), days)
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("admin: failed to load insights")
		http.Error(w, `{"error": "failed to load insights"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period_days": days,
		"since":       in.Since,
		"insights":    in.Aggregate,
		"departments": in.Departments,
		"calls":       in.Calls,
	})
}

// handleAdminExport streams the insights workbook.
func (r *Router) handleAdminExport(w http.ResponseWriter, req *http.Request) {
	days, err := r.periodDays(req)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": %q}`, err.Error()), http.StatusBadRequest)
		return
	}
	in, err := report.Load(req.Context(), r.svc.Reporting, r.now(), days)
	if err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("admin: failed to load insights")
		http.Error(w, `{"error": "failed to load insights"}`, http.StatusInternalServerError)
		return
	}

	// Render fully before writing headers so a failure can still answer 500.
	var buf bytes.Buffer
	if err := report.WriteInsightsWorkbook(&buf, in); err != nil {
		requestLogger(req, r.logger).Error().Err(err).Msg("admin: failed to render workbook")
		captureError(req, err, "insights workbook failed")
		http.Error(w, `{"error": "failed to render workbook"}`, http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("insights-%s.xlsx", r.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
