package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/metrics"
)

// DefaultDedupWindow is how far back an existing call blocks a new one.
const DefaultDedupWindow = 30 * day

// DedupStatuses are the statuses that count as an existing call.
var DedupStatuses = []CallStatus{StatusScheduled, StatusCompleted}

// SkipReason explains why a candidate got no call.
type SkipReason string

const SkipRecentCall SkipReason = "recent_call"

// ScheduleDecision is the outcome of scheduling one candidate.
type ScheduleDecision struct {
	Call    *FollowUpCall
	Skipped bool
	Reason  SkipReason
}

// ScheduleResult is one row of a pass summary.
type ScheduleResult struct {
	EmployeeID  string     `json:"employee_id"`
	Status      string     `json:"status"` // scheduled, skipped, failed
	CallID      int64      `json:"call_id,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ScheduleSummary reports a scheduling pass. Partial failures do not abort the pass.
type ScheduleSummary struct {
	CallType   CallType         `json:"call_type"`
	Candidates int              `json:"candidates"`
	Scheduled  int              `json:"scheduled"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Results    []ScheduleResult `json:"results"`
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	DedupWindow     time.Duration  // default 30 days
	DefaultLocation *time.Location // used when the employee has no valid time zone, default UTC
	Now             func() time.Time
}

// Scheduler applies the scheduling policy: deduplication, call time and agent provisioning.
type Scheduler struct {
	repo       Repository
	voice      VoiceAgents
	sink       EventSink
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	onboarding *Selector
	exits      *Selector
	cfg        SchedulerConfig
}

// NewScheduler creates a scheduler. sink and m may be nil.
func NewScheduler(repo Repository, voice VoiceAgents, sink EventSink, m *metrics.Metrics, logger zerolog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = nopSink{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Scheduler{
		repo:       repo,
		voice:      voice,
		sink:       sink,
		metrics:    m,
		logger:     logger,
		onboarding: NewSelector(),
		exits:      NewSelector(ExitPendingRule{}),
		cfg:        cfg,
	}
}

// OptimalCallTime returns tomorrow at the window's hour in loc, moved forward
// past Saturday and Sunday.
func OptimalCallTime(now time.Time, window ContactWindow, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day()+1, window.Hour(), 0, 0, 0, loc)
	for target.Weekday() == time.Saturday || target.Weekday() == time.Sunday {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// Schedule creates a scheduled call for c unless a recent one exists.
func (s *Scheduler) Schedule(ctx context.Context, c Candidate, ct CallType) (ScheduleDecision, error) {
	now := s.cfg.Now()
	since := now.Add(-s.cfg.DedupWindow)

	recent, err := s.repo.HasRecentCall(ctx, c.EmployeeID, since, DedupStatuses)
	if err != nil {
		return ScheduleDecision{}, fmt.Errorf("failed to check recent calls: %w", err)
	}
	if recent {
		return s.skip(c, SkipRecentCall), nil
	}

	profile, err := s.ensureProfile(ctx, c, now)
	if err != nil {
		return ScheduleDecision{}, err
	}

	req := AgentRequest{
		CallType:     ct,
		Name:         c.Name,
		Department:   c.Department,
		Position:     c.Position,
		ManagerName:  c.ManagerName,
		TenureMonths: c.TenureMonths,
	}
	if profile != nil {
		req.PreviousConcerns = profile.ConcernsMentioned
		req.CommunicationStyle = profile.CommunicationStyle
		if profile.ManagerName != "" {
			req.ManagerName = profile.ManagerName
		}
	}

	agentID, err := s.voice.CreateAgent(ctx, req)
	if err != nil {
		return ScheduleDecision{}, fmt.Errorf("failed to create voice agent: %w", err)
	}

	call := &FollowUpCall{
		EmployeeID:         c.EmployeeID,
		CallType:           ct,
		ScheduledAt:        OptimalCallTime(now, c.PreferredContactTime, s.location(c.TimeZone)).UTC(),
		AgentID:            agentID,
		Status:             StatusScheduled,
		RetentionRiskLevel: riskOrUnknown(c.RiskLevel),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.CreateCall(ctx, call, since); err != nil {
		if errors.Is(err, ErrDuplicateCall) {
			return s.skip(c, SkipRecentCall), nil
		}
		return ScheduleDecision{}, fmt.Errorf("failed to create call: %w", err)
	}

	s.metrics.CallsScheduled.WithLabelValues(string(ct)).Inc()
	s.sink.Publish(ctx, newLifecycleEvent(*call, "", StatusScheduled, now, map[string]any{
		"scheduled_at": call.ScheduledAt,
		"agent_id":     agentID,
		"reason":       c.Reason,
	}))
	s.logger.Info().
		Int64("call_id", call.ID).
		Str("employee_id", c.EmployeeID).
		Time("scheduled_at", call.ScheduledAt).
		Msg("Scheduler: call scheduled")

	return ScheduleDecision{Call: call}, nil
}

// RunPass selects candidates for ct and schedules each of them.
func (s *Scheduler) RunPass(ctx context.Context, ct CallType) (ScheduleSummary, error) {
	statuses, selector := []EmployeeStatus{EmployeeActive}, s.onboarding
	if ct == CallTypeExitInterview {
		statuses, selector = []EmployeeStatus{EmployeeExitInterviewPending}, s.exits
	}

	employees, err := s.repo.ListEmployees(ctx, statuses)
	if err != nil {
		return ScheduleSummary{CallType: ct}, fmt.Errorf("failed to list employees: %w", err)
	}

	candidates := selector.SelectCandidates(employees, s.cfg.Now())
	summary := ScheduleSummary{CallType: ct, Candidates: len(candidates), Results: []ScheduleResult{}}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		decision, err := s.Schedule(ctx, c, ct)
		switch {
		case err != nil:
			summary.Failed++
			summary.Results = append(summary.Results, ScheduleResult{EmployeeID: c.EmployeeID, Status: "failed", Error: err.Error()})
			s.metrics.ScheduleErrors.Inc()
			s.logger.Error().Err(err).Str("employee_id", c.EmployeeID).Msg("Scheduler: failed to schedule candidate")
		case decision.Skipped:
			summary.Skipped++
			summary.Results = append(summary.Results, ScheduleResult{EmployeeID: c.EmployeeID, Status: "skipped", Reason: string(decision.Reason)})
		default:
			at := decision.Call.ScheduledAt
			summary.Scheduled++
			summary.Results = append(summary.Results, ScheduleResult{
				EmployeeID:  c.EmployeeID,
				Status:      "scheduled",
				CallID:      decision.Call.ID,
				ScheduledAt: &at,
			})
		}
	}

	s.logger.Info().
		Str("call_type", string(ct)).
		Int("candidates", summary.Candidates).
		Int("scheduled", summary.Scheduled).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Scheduler: pass finished")
	return summary, nil
}

func (s *Scheduler) skip(c Candidate, reason SkipReason) ScheduleDecision {
	s.metrics.CallsSkipped.WithLabelValues(string(reason)).Inc()
	s.logger.Debug().Str("employee_id", c.EmployeeID).Str("reason", string(reason)).Msg("Scheduler: candidate skipped")
	return ScheduleDecision{Skipped: true, Reason: reason}
}

// ensureProfile loads the employee's profile, creating an empty one when absent.
func (s *Scheduler) ensureProfile(ctx context.Context, c Candidate, now time.Time) (*EmployeeProfile, error) {
	p, err := s.repo.GetProfile(ctx, c.EmployeeID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	p = &EmployeeProfile{
		EmployeeID:          c.EmployeeID,
		ConcernsMentioned:   ConcernSet{},
		SatisfactionHistory: SatisfactionHistory{},
		ManagerName:         c.ManagerName,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		s.logger.Warn().Err(err).Str("employee_id", c.EmployeeID).Msg("Scheduler: failed to create profile")
		return nil, nil
	}
	return p, nil
}

func (s *Scheduler) location(name string) *time.Location {
	if name == "" {
		return s.cfg.DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.logger.Warn().Str("time_zone", name).Msg("Scheduler: unknown time zone, using default")
		return s.cfg.DefaultLocation
	}
	return loc
}

func riskOrUnknown(r RiskLevel) RiskLevel {
	if r == "" {
		return RiskUnknown
	}
	return r
}
