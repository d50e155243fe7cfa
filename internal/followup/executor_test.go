package followup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	pauses []time.Duration
}

func (s *recordingSleep) Sleep(_ context.Context, d time.Duration) error {
	s.pauses = append(s.pauses, d)
	return nil
}

func newTestExecutor(repo *memRepo, voice *fakeVoice, sink EventSink, sleep *recordingSleep) *Executor {
	return NewExecutor(repo, voice, sink, nil, zerolog.Nop(), ExecutorConfig{
		Now:          fixedClock(evalNow),
		Sleep:        sleep.Sleep,
		WriteBackOff: quickRetries(3),
	})
}

func quickRetries(n uint64) func() backoff.BackOff {
	return func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, n) }
}

func scheduledAt(employeeID string, at time.Time) FollowUpCall {
	return FollowUpCall{EmployeeID: employeeID, CallType: CallTypeRetentionCheck, Status: StatusScheduled, ScheduledAt: at, AgentID: "agent-" + employeeID}
}

func TestExecutorStartsDueCalls(t *testing.T) {
	e := hiredDaysAgo("1", 45)
	e.ManagerName = "Ana"
	repo := newMemRepo(e)
	id := repo.addCall(scheduledAt("1", evalNow.Add(-10*time.Minute)))
	voice := &fakeVoice{}
	sink := &recordingSink{}

	summary, err := newTestExecutor(repo, voice, sink, &recordingSleep{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecuteSummary{Due: 1, Executed: 1}, summary)

	call := repo.call(id)
	assert.Equal(t, StatusInProgress, call.Status)
	assert.Equal(t, "conv-1", call.ConversationID)

	require.Len(t, voice.outbound, 1)
	req := voice.outbound[0]
	assert.Equal(t, "agent-1", req.AgentID)
	assert.Equal(t, e.Phone, req.PhoneNumber)
	assert.Equal(t, "Ana", req.DynamicVariables["manager_name"])
	assert.Equal(t, "1", req.DynamicVariables["employee_tenure"])
	assert.Equal(t, e.HireDate.Format("2006-01-02"), req.DynamicVariables["hire_date"])

	require.Len(t, sink.events, 1)
	assert.Equal(t, StatusScheduled, sink.events[0].From)
	assert.Equal(t, StatusInProgress, sink.events[0].To)
	assert.Equal(t, "conv-1", sink.events[0].Fields["conversation_id"])
}

func TestExecutorDueCallsDoesNotStart(t *testing.T) {
	repo := newMemRepo(hiredDaysAgo("1", 45))
	id := repo.addCall(scheduledAt("1", evalNow.Add(-5*time.Minute)))
	voice := &fakeVoice{}

	due, err := newTestExecutor(repo, voice, nil, &recordingSleep{}).DueCalls(context.Background())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.Empty(t, voice.outbound)
	assert.Equal(t, StatusScheduled, repo.call(id).Status)
}

func TestExecutorWindow(t *testing.T) {
	repo := newMemRepo(hiredDaysAgo("1", 45), hiredDaysAgo("2", 45), hiredDaysAgo("3", 45), hiredDaysAgo("4", 45))
	tooOld := repo.addCall(scheduledAt("1", evalNow.Add(-31*time.Minute)))
	edgeOld := repo.addCall(scheduledAt("2", evalNow.Add(-30*time.Minute)))
	edgeNew := repo.addCall(scheduledAt("3", evalNow.Add(2*time.Hour)))
	tooNew := repo.addCall(scheduledAt("4", evalNow.Add(2*time.Hour+time.Minute)))

	summary, err := newTestExecutor(repo, &fakeVoice{}, nil, &recordingSleep{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Executed)

	assert.Equal(t, StatusScheduled, repo.call(tooOld).Status)
	assert.Equal(t, StatusInProgress, repo.call(edgeOld).Status)
	assert.Equal(t, StatusInProgress, repo.call(edgeNew).Status)
	assert.Equal(t, StatusScheduled, repo.call(tooNew).Status)
}

func TestExecutorPausesBetweenCalls(t *testing.T) {
	repo := newMemRepo(hiredDaysAgo("1", 45), hiredDaysAgo("2", 45), hiredDaysAgo("3", 45))
	for _, id := range []string{"1", "2", "3"} {
		repo.addCall(scheduledAt(id, evalNow))
	}
	sleep := &recordingSleep{}

	_, err := newTestExecutor(repo, &fakeVoice{}, nil, sleep).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultCallPause, DefaultCallPause}, sleep.pauses)
}

func TestExecutorZeroPauseUsesDefault(t *testing.T) {
	repo := newMemRepo(hiredDaysAgo("1", 45), hiredDaysAgo("2", 45))
	repo.addCall(scheduledAt("1", evalNow))
	repo.addCall(scheduledAt("2", evalNow))
	sleep := &recordingSleep{}

	ex := NewExecutor(repo, &fakeVoice{}, nil, nil, zerolog.Nop(), ExecutorConfig{Now: fixedClock(evalNow), Sleep: sleep.Sleep, Pause: 0})
	_, err := ex.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultCallPause}, sleep.pauses)
}

func TestExecutorCancelsUnreachableEmployees(t *testing.T) {
	exited := hiredDaysAgo("1", 45)
	exited.Status = EmployeeExited
	repo := newMemRepo(exited)
	gone := repo.addCall(scheduledAt("1", evalNow))
	missing := repo.addCall(scheduledAt("ghost", evalNow))
	voice := &fakeVoice{}

	summary, err := newTestExecutor(repo, voice, nil, &recordingSleep{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Cancelled)
	assert.Empty(t, voice.outbound)

	assert.Equal(t, StatusCancelled, repo.call(gone).Status)
	assert.Equal(t, "employee no longer active", repo.call(gone).FailureReason)
	assert.Equal(t, StatusCancelled, repo.call(missing).Status)
	assert.Equal(t, "employee not found", repo.call(missing).FailureReason)
}

func TestExecutorExitInterviewForPendingEmployee(t *testing.T) {
	pending := hiredDaysAgo("1", 300)
	pending.Status = EmployeeExitInterviewPending
	repo := newMemRepo(pending)
	call := scheduledAt("1", evalNow)
	call.CallType = CallTypeExitInterview
	id := repo.addCall(call)

	summary, err := newTestExecutor(repo, &fakeVoice{}, nil, &recordingSleep{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, StatusInProgress, repo.call(id).Status)
}

func TestExecutorMarksProviderErrorsFailed(t *testing.T) {
	ok := hiredDaysAgo("1", 45)
	bad := hiredDaysAgo("2", 45)
	repo := newMemRepo(ok, bad)
	okID := repo.addCall(scheduledAt("1", evalNow))
	badID := repo.addCall(scheduledAt("2", evalNow))
	voice := &fakeVoice{failPhone: bad.Phone}

	summary, err := newTestExecutor(repo, voice, nil, &recordingSleep{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecuteSummary{Due: 2, Executed: 1, Failed: 1}, summary)

	assert.Equal(t, StatusInProgress, repo.call(okID).Status)
	failed := repo.call(badID)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.FailureReason, "provider rejected number")
}

type staleRepo struct {
	*memRepo
}

func (r staleRepo) ApplyTransition(context.Context, Transition) error {
	return ErrStaleState
}

func TestExecutorCountsStaleWrites(t *testing.T) {
	repo := newMemRepo(hiredDaysAgo("1", 45))
	repo.addCall(scheduledAt("1", evalNow))
	sink := &recordingSink{}

	ex := NewExecutor(staleRepo{repo}, &fakeVoice{}, sink, nil, zerolog.Nop(), ExecutorConfig{Now: fixedClock(evalNow), Sleep: (&recordingSleep{}).Sleep})
	summary, err := ex.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecuteSummary{Due: 1, Stale: 1}, summary)
	assert.Empty(t, sink.events)
}

func TestExecutorStopsOnCancelledContext(t *testing.T) {
	repo := newMemRepo(hiredDaysAgo("1", 45))
	repo.addCall(scheduledAt("1", evalNow))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExecutor(repo, &fakeVoice{}, nil, &recordingSleep{}).RunPass(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// flakyRepo fails the first failures ApplyTransition calls.
type flakyRepo struct {
	*memRepo
	mu       sync.Mutex
	failures int
	attempts int
}

func (r *flakyRepo) ApplyTransition(ctx context.Context, t Transition) error {
	r.mu.Lock()
	r.attempts++
	fail := r.attempts <= r.failures
	r.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return r.memRepo.ApplyTransition(ctx, t)
}

func TestExecutorRetriesTransitionWrite(t *testing.T) {
	repo := &flakyRepo{memRepo: newMemRepo(hiredDaysAgo("1", 45)), failures: 2}
	id := repo.addCall(scheduledAt("1", evalNow))
	voice := &fakeVoice{}

	ex := NewExecutor(repo, voice, nil, nil, zerolog.Nop(), ExecutorConfig{Now: fixedClock(evalNow), Sleep: (&recordingSleep{}).Sleep, WriteBackOff: quickRetries(3)})
	summary, err := ex.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExecuteSummary{Due: 1, Executed: 1}, summary)
	assert.Equal(t, 3, repo.attempts)
	call := repo.call(id)
	assert.Equal(t, StatusInProgress, call.Status)
	assert.Equal(t, "conv-1", call.ConversationID)
}

func TestExecutorDoesNotRedialAfterLostWrite(t *testing.T) {
	repo := &flakyRepo{memRepo: newMemRepo(hiredDaysAgo("1", 45)), failures: 100}
	id := repo.addCall(scheduledAt("1", evalNow))
	voice := &fakeVoice{}

	ex := NewExecutor(repo, voice, nil, nil, zerolog.Nop(), ExecutorConfig{Now: fixedClock(evalNow), Sleep: (&recordingSleep{}).Sleep, WriteBackOff: quickRetries(2)})
	summary, err := ex.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecuteSummary{Due: 1, Errors: 1}, summary)
	assert.Equal(t, StatusScheduled, repo.call(id).Status)

	// The database recovers before the next pass.
	repo.mu.Lock()
	repo.failures = 0
	repo.mu.Unlock()

	summary, err = ex.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExecuteSummary{Due: 1, Executed: 1}, summary)
	assert.Len(t, voice.outbound, 1, "employee must be called once")
	assert.Equal(t, "conv-1", repo.call(id).ConversationID)
}
