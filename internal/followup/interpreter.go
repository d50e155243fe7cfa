package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/costs"
	"github.com/lukasbauer/apriori/internal/metrics"
	"github.com/lukasbauer/apriori/internal/webhook"
)

// humanFollowupConcernThreshold is the concern count above which HR is alerted.
const humanFollowupConcernThreshold = 2

// InterpretOutcome is what happened to one webhook delivery.
type InterpretOutcome string

const (
	OutcomeProcessed InterpretOutcome = "processed"
	OutcomeNotFound  InterpretOutcome = "not_found"
	OutcomeDuplicate InterpretOutcome = "duplicate"
	OutcomeIgnored   InterpretOutcome = "ignored"
)

// Interpretation is the result of interpreting a webhook.
type Interpretation struct {
	Outcome            InterpretOutcome `json:"outcome"`
	CallID             int64            `json:"call_id,omitempty"`
	EmployeeID         string           `json:"employee_id,omitempty"`
	CallType           CallType         `json:"call_type,omitempty"`
	Status             CallStatus       `json:"status,omitempty"`
	RetentionRisk      RiskLevel        `json:"retention_risk_level,omitempty"`
	NeedsHumanFollowup bool             `json:"needs_human_followup"`
	InterviewID        int64            `json:"interview_id,omitempty"`
	AnalysisOutcome    analysis.Outcome `json:"analysis_outcome,omitempty"`
	ProfileUpdated     bool             `json:"profile_updated"`
}

// InterpreterConfig configures an Interpreter.
type InterpreterConfig struct {
	Now func() time.Time
}

// Interpreter turns completed-call webhooks into lifecycle and profile updates.
type Interpreter struct {
	repo     Repository
	analyzer Analyzer
	alerts   Alerter
	sink     EventSink
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewInterpreter creates an interpreter. alerts, sink and m may be nil.
func NewInterpreter(repo Repository, analyzer Analyzer, alerts Alerter, sink EventSink, m *metrics.Metrics, logger zerolog.Logger, cfg InterpreterConfig) *Interpreter {
	now := cfg.Now
	if alerts == nil {
		alerts = nopAlerter{}
	}
	if sink == nil {
		sink = nopSink{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Interpreter{repo: repo, analyzer: analyzer, alerts: alerts, sink: sink, metrics: m, logger: logger, now: now}
}

// NeedsHumanFollowup applies the retention-check escalation rule.
func NeedsHumanFollowup(risk RiskLevel, satisfactionLevel string, concerns []string) bool {
	switch {
	case risk == RiskHigh:
		return true
	case satisfactionLevel == "dissatisfied" || satisfactionLevel == "very_dissatisfied":
		return true
	default:
		return len(concerns) > humanFollowupConcernThreshold
	}
}

// Interpret processes one delivery. Unknown conversations and repeated
// deliveries are reported through the outcome and change nothing.
func (i *Interpreter) Interpret(ctx context.Context, ev webhook.Event) (Interpretation, error) {
	log := i.logger.With().Str("conversation_id", ev.Data.ConversationID).Logger()

	if !ev.IsPostCall() {
		log.Debug().Str("type", ev.Type).Msg("Interpreter: not a post-call event, ignoring")
		return i.finish(Interpretation{Outcome: OutcomeIgnored}), nil
	}

	call, err := i.repo.GetCallByConversationID(ctx, ev.Data.ConversationID)
	if errors.Is(err, ErrNotFound) {
		log.Info().Msg("Interpreter: no call for conversation, ignoring")
		return i.finish(Interpretation{Outcome: OutcomeNotFound}), nil
	}
	if err != nil {
		return Interpretation{}, fmt.Errorf("failed to look up call: %w", err)
	}

	result := Interpretation{
		CallID:     call.ID,
		EmployeeID: call.EmployeeID,
		CallType:   call.CallType,
		Status:     call.Status,
	}
	if call.Status != StatusInProgress {
		result.Outcome = OutcomeDuplicate
		log.Info().Str("status", string(call.Status)).Msg("Interpreter: call not in progress, ignoring delivery")
		return i.finish(result), nil
	}

	now := i.now()
	t, err := NewTransition(*call, StatusCompleted, now)
	if err != nil {
		return Interpretation{}, err
	}

	collected, err := ev.Data.Analysis.Collected()
	if err != nil {
		log.Warn().Err(err).Msg("Interpreter: unreadable data collection results, ignoring them")
		collected = webhook.Collected{}
	}

	duration := ev.Data.Metadata.CallDurationSecs
	transcript := ev.Data.TranscriptText()
	callCosts := costs.CalculateCallCosts(costs.CallMetrics{
		CallDurationSeconds: duration,
		ProviderCredits:     ev.Data.Metadata.Cost,
	})

	completion := Completion{
		Transition:          t,
		DurationSeconds:     duration,
		ProviderCost:        ev.Data.Metadata.Cost,
		TwilioCostCents:     callCosts.TwilioCostCents,
		VoiceAgentCostCents: callCosts.VoiceAgentCostCents,
		Transcript:          transcript,
		Summary:             ev.Data.Analysis.TranscriptSummary,
		WasSuccessful:       ev.Data.Analysis.Successful(),
	}
	entry := SatisfactionEntry{Timestamp: now, CallType: call.CallType, Level: collected.SatisfactionLevel}

	switch call.CallType {
	case CallTypeExitInterview:
		rec, outcome := i.analyzeExit(ctx, *call, transcript, collected, log)
		result.AnalysisOutcome = outcome
		completion.RetentionRisk = riskLevelFor(rec.RetentionRisk)
		completion.Interview = &Interview{
			EmployeeID:      call.EmployeeID,
			CallID:          call.ID,
			ConversationID:  ev.Data.ConversationID,
			Transcript:      transcript,
			DurationSeconds: duration,
			Insight:         rec,
			CreatedAt:       now,
		}
		score := rec.SatisfactionScore
		entry.Score = &score

	case CallTypeRetentionCheck, CallTypeNDayFollowup:
		completion.RetentionRisk = ParseRiskLevel(collected.RetentionRisk)
		completion.NeedsHumanFollowup = NeedsHumanFollowup(completion.RetentionRisk, collected.SatisfactionLevel, collected.Concerns)
		entry.Score = collected.SatisfactionScore

	default:
		return Interpretation{}, fmt.Errorf("call %d has unknown call type %q", call.ID, call.CallType)
	}
	completion.Profile = &ProfileUpdate{Concerns: collected.Concerns, Entry: entry}

	stored, err := i.repo.CompleteCall(ctx, completion)
	if errors.Is(err, ErrStaleState) {
		result.Outcome = OutcomeDuplicate
		log.Info().Msg("Interpreter: call completed by a concurrent delivery")
		return i.finish(result), nil
	}
	if err != nil {
		return Interpretation{}, fmt.Errorf("failed to complete call: %w", err)
	}

	result.Outcome = OutcomeProcessed
	result.Status = StatusCompleted
	result.RetentionRisk = completion.RetentionRisk
	result.NeedsHumanFollowup = completion.NeedsHumanFollowup
	result.InterviewID = stored.InterviewID
	result.ProfileUpdated = stored.ProfileUpdated

	i.metrics.CallTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	i.sink.Publish(ctx, newLifecycleEvent(*call, t.From, t.To, now, map[string]any{
		"duration_seconds":     duration,
		"was_successful":       completion.WasSuccessful,
		"retention_risk_level": completion.RetentionRisk,
		"needs_human_followup": completion.NeedsHumanFollowup,
	}))

	if completion.NeedsHumanFollowup {
		i.metrics.HumanFollowupFlags.Inc()
		i.alert(ctx, *call, completion, collected)
	}

	log.Info().
		Int64("call_id", call.ID).
		Str("call_type", string(call.CallType)).
		Bool("needs_human_followup", completion.NeedsHumanFollowup).
		Msg("Interpreter: call completed")
	return i.finish(result), nil
}

// analyzeExit runs the pipeline and overlays the fields the provider extracted itself.
func (i *Interpreter) analyzeExit(ctx context.Context, call FollowUpCall, transcript string, collected webhook.Collected, log zerolog.Logger) (analysis.InsightRecord, analysis.Outcome) {
	var ec *analysis.EmployeeContext
	employee, err := i.repo.GetEmployee(ctx, call.EmployeeID)
	switch {
	case err == nil:
		ec = &analysis.EmployeeContext{
			Department:   employee.Department,
			Position:     employee.Position,
			TenureMonths: TenureMonths(employee.HireDate, i.now()),
		}
	case !errors.Is(err, ErrNotFound):
		log.Warn().Err(err).Msg("Interpreter: failed to load employee context")
	}

	res := i.analyzer.Analyze(ctx, transcript, ec)
	if res.Err != nil {
		log.Warn().Err(res.Err).Msg("Interpreter: analysis fell back")
	}

	rec := res.Record
	if s := collected.SatisfactionScore; s != nil && *s > 0 {
		rec.SatisfactionScore = *s
	}
	if len(collected.Recommendations) > 0 {
		rec.Recommendations = collected.Recommendations
	}
	if res.Outcome == analysis.OutcomeFallback && collected.PrimaryReason != "" {
		rec.PrimaryReason = collected.PrimaryReason
	}
	rec.Clamp()
	return rec, res.Outcome
}

func (i *Interpreter) alert(ctx context.Context, call FollowUpCall, c Completion, collected webhook.Collected) {
	alert := HumanFollowupAlert{
		CallID:            call.ID,
		EmployeeID:        call.EmployeeID,
		CallType:          call.CallType,
		RetentionRisk:     c.RetentionRisk,
		SatisfactionLevel: collected.SatisfactionLevel,
		Concerns:          collected.Concerns,
	}
	if employee, err := i.repo.GetEmployee(ctx, call.EmployeeID); err == nil {
		alert.EmployeeName = employee.Name
		alert.Department = employee.Department
	}
	i.alerts.NotifyHumanFollowup(ctx, alert)
}

func (i *Interpreter) finish(r Interpretation) Interpretation {
	i.metrics.WebhooksReceived.WithLabelValues(string(r.Outcome)).Inc()
	return r
}

// riskLevelFor maps an analysis retention score onto the call's risk level.
func riskLevelFor(risk float64) RiskLevel {
	switch analysis.BucketFor(risk) {
	case analysis.RiskBucketLow:
		return RiskLow
	case analysis.RiskBucketMedium:
		return RiskMedium
	default:
		return RiskHigh
	}
}
