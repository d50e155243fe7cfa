package followup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/metrics"
)

// Execution window around now and the pause between consecutive calls.
const (
	DefaultLookBehind = 30 * time.Minute
	DefaultLookAhead  = 2 * time.Hour
	DefaultCallPause  = 5 * time.Second

	// DefaultWriteRetry bounds how long a transition write is retried.
	DefaultWriteRetry = 30 * time.Second
)

// ExecuteSummary reports an execution pass.
type ExecuteSummary struct {
	Due       int `json:"due"`
	Executed  int `json:"executed"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
	Stale     int `json:"stale"`  // changed by another pass before this one wrote
	Errors    int `json:"errors"` // transition could not be written
}

type execOutcome int

const (
	outcomeStale execOutcome = iota
	outcomeWriteError
	outcomeApplied
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	LookBehind time.Duration
	LookAhead  time.Duration
	Pause      time.Duration
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error

	// WriteBackOff returns the retry policy for one transition write.
	WriteBackOff func() backoff.BackOff
}

// Executor starts due calls one at a time.
type Executor struct {
	repo    Repository
	voice   VoiceAgents
	sink    EventSink
	metrics *metrics.Metrics
	logger  zerolog.Logger
	cfg     ExecutorConfig

	// started holds conversation ids of calls whose provider call went out
	// but whose in_progress write never landed. Later passes retry the write
	// instead of dialing the employee again.
	mu      sync.Mutex
	started map[int64]string
}

// NewExecutor creates an executor. sink and m may be nil.
func NewExecutor(repo Repository, voice VoiceAgents, sink EventSink, m *metrics.Metrics, logger zerolog.Logger, cfg ExecutorConfig) *Executor {
	if cfg.LookBehind <= 0 {
		cfg.LookBehind = DefaultLookBehind
	}
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = DefaultLookAhead
	}
	if cfg.Pause <= 0 {
		cfg.Pause = DefaultCallPause
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.WriteBackOff == nil {
		cfg.WriteBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = DefaultWriteRetry
			return b
		}
	}
	if sink == nil {
		sink = nopSink{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Executor{repo: repo, voice: voice, sink: sink, metrics: m, logger: logger, cfg: cfg, started: map[int64]string{}}
}

// RunPass executes every scheduled call due within [now-LookBehind, now+LookAhead].
func (e *Executor) RunPass(ctx context.Context) (ExecuteSummary, error) {
	e.metrics.ExecutePasses.Inc()
	now := e.cfg.Now()

	due, err := e.dueAt(ctx, now)
	if err != nil {
		return ExecuteSummary{}, err
	}

	summary := ExecuteSummary{Due: len(due)}
	for i, call := range due {
		if i > 0 {
			if err := e.cfg.Sleep(ctx, e.cfg.Pause); err != nil {
				return summary, err
			}
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		to, outcome := e.execute(ctx, call)
		switch {
		case outcome == outcomeStale:
			summary.Stale++
		case outcome == outcomeWriteError:
			summary.Errors++
		case to == StatusInProgress:
			summary.Executed++
		case to == StatusCancelled:
			summary.Cancelled++
		case to == StatusFailed:
			summary.Failed++
		}
	}

	e.logger.Info().
		Int("due", summary.Due).
		Int("executed", summary.Executed).
		Int("cancelled", summary.Cancelled).
		Int("failed", summary.Failed).
		Int("stale", summary.Stale).
		Int("errors", summary.Errors).
		Msg("Executor: pass finished")
	return summary, nil
}

// DueCalls lists the calls the next pass would start, without starting them.
func (e *Executor) DueCalls(ctx context.Context) ([]FollowUpCall, error) {
	return e.dueAt(ctx, e.cfg.Now())
}

func (e *Executor) dueAt(ctx context.Context, now time.Time) ([]FollowUpCall, error) {
	due, err := e.repo.ListDueCalls(ctx, now.Add(-e.cfg.LookBehind), now.Add(e.cfg.LookAhead))
	if err != nil {
		return nil, fmt.Errorf("failed to list due calls: %w", err)
	}
	return due, nil
}

// execute starts one call and reports the status it was moved to.
func (e *Executor) execute(ctx context.Context, call FollowUpCall) (CallStatus, execOutcome) {
	log := e.logger.With().Int64("call_id", call.ID).Str("employee_id", call.EmployeeID).Logger()

	if call.Status != StatusScheduled {
		return call.Status, outcomeStale
	}
	if conversationID, ok := e.startedConversation(call.ID); ok {
		log.Warn().Str("conversation_id", conversationID).Msg("Executor: call already placed, retrying in_progress write")
		return e.transition(ctx, call, StatusInProgress, conversationID, "", log)
	}

	employee, err := e.repo.GetEmployee(ctx, call.EmployeeID)
	switch {
	case errors.Is(err, ErrNotFound):
		return e.transition(ctx, call, StatusCancelled, "", "employee not found", log)
	case err != nil:
		return e.transition(ctx, call, StatusFailed, "", "failed to load employee: "+err.Error(), log)
	case !employee.Reachable(call.CallType):
		return e.transition(ctx, call, StatusCancelled, "", "employee no longer active", log)
	}

	conversationID, err := e.voice.StartOutboundCall(ctx, OutboundCallRequest{
		AgentID:          call.AgentID,
		PhoneNumber:      employee.Phone,
		DynamicVariables: DynamicVariables(*employee, e.cfg.Now()),
	})
	if err != nil {
		log.Error().Err(err).Msg("Executor: outbound call failed")
		return e.transition(ctx, call, StatusFailed, "", err.Error(), log)
	}

	e.markStarted(call.ID, conversationID)
	return e.transition(ctx, call, StatusInProgress, conversationID, "", log)
}

func (e *Executor) markStarted(callID int64, conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started[callID] = conversationID
}

func (e *Executor) startedConversation(callID int64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.started[callID]
	return id, ok
}

func (e *Executor) clearStarted(callID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.started, callID)
}

// applyTransition writes t, retrying transient failures. The write runs on a
// context detached from the pass so a cancelled pass still records a call
// that was already placed.
func (e *Executor) applyTransition(ctx context.Context, t Transition) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultWriteRetry)
	defer cancel()

	op := func() error {
		err := e.repo.ApplyTransition(writeCtx, t)
		if errors.Is(err, ErrStaleState) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(e.cfg.WriteBackOff(), writeCtx))
}

func (e *Executor) transition(ctx context.Context, call FollowUpCall, to CallStatus, conversationID, reason string, log zerolog.Logger) (CallStatus, execOutcome) {
	t, err := NewTransition(call, to, e.cfg.Now())
	if err != nil {
		log.Error().Err(err).Msg("Executor: refused transition")
		return call.Status, outcomeStale
	}
	t.ConversationID = conversationID
	t.FailureReason = reason

	if err := e.applyTransition(ctx, t); err != nil {
		if errors.Is(err, ErrStaleState) {
			e.clearStarted(call.ID)
			log.Info().Msg("Executor: call changed by another pass, skipping")
			return call.Status, outcomeStale
		}
		log.Error().Err(err).Str("to", string(to)).Str("conversation_id", conversationID).Msg("Executor: failed to write transition")
		return call.Status, outcomeWriteError
	}
	if to == StatusInProgress {
		e.clearStarted(call.ID)
	}

	e.metrics.CallTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	fields := map[string]any{}
	if conversationID != "" {
		fields["conversation_id"] = conversationID
	}
	if reason != "" {
		fields["reason"] = reason
	}
	e.sink.Publish(ctx, newLifecycleEvent(call, t.From, t.To, t.At, fields))
	log.Info().Str("to", string(to)).Msg("Executor: call transitioned")
	return to, outcomeApplied
}

// DynamicVariables are the per-call values substituted into the agent prompt.
func DynamicVariables(e Employee, now time.Time) map[string]string {
	hireDate := ""
	if !e.HireDate.IsZero() {
		hireDate = e.HireDate.Format("2006-01-02")
	}
	return map[string]string{
		"employee_name":       e.Name,
		"employee_department": e.Department,
		"employee_position":   e.Position,
		"employee_tenure":     strconv.Itoa(TenureMonths(e.HireDate, now)),
		"manager_name":        e.ManagerName,
		"hire_date":           hireDate,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
