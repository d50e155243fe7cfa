package httpapi

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/metrics"
	"github.com/lukasbauer/apriori/internal/store"
	"github.com/lukasbauer/apriori/internal/webhook"
)

const testSecret = "jwt-test-secret"

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fakeInterpreter struct {
	mu     sync.Mutex
	events []webhook.Event
	result followup.Interpretation
	err    error
}

func (f *fakeInterpreter) Interpret(_ context.Context, ev webhook.Event) (followup.Interpretation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.result, f.err
}

type fakeScheduler struct {
	got   []followup.CallType
	err   error
	block chan struct{}
}

func (f *fakeScheduler) RunPass(ctx context.Context, ct followup.CallType) (followup.ScheduleSummary, error) {
	f.got = append(f.got, ct)
	if f.block != nil {
		<-f.block
	}
	return followup.ScheduleSummary{CallType: ct, Candidates: 3, Scheduled: 2, Skipped: 1}, f.err
}

type fakeExecutor struct {
	n   int
	err error
}

func (f *fakeExecutor) RunPass(context.Context) (followup.ExecuteSummary, error) {
	f.n++
	return followup.ExecuteSummary{Due: 2, Executed: 1, Failed: 1}, f.err
}

type fakeReporting struct {
	calls    []followup.FollowUpCall
	insights []analysis.DepartmentInsight
	events   []store.CallEvent
	since    time.Time
	err      error
}

func (f *fakeReporting) ListCalls(_ context.Context, since time.Time) ([]followup.FollowUpCall, error) {
	f.since = since
	return f.calls, f.err
}

func (f *fakeReporting) ListInsights(_ context.Context, since time.Time) ([]analysis.DepartmentInsight, error) {
	f.since = since
	return f.insights, f.err
}

func (f *fakeReporting) ListCallEvents(_ context.Context, _ int64) ([]store.CallEvent, error) {
	return f.events, f.err
}

type fakeInterviews struct {
	list    []store.InterviewDetail
	byID    map[int64]*store.InterviewDetail
	filters []store.InterviewFilter
	err     error
}

func (f *fakeInterviews) ListInterviews(_ context.Context, filter store.InterviewFilter) ([]store.InterviewDetail, error) {
	f.filters = append(f.filters, filter)
	return f.list, f.err
}

func (f *fakeInterviews) GetInterview(_ context.Context, id int64) (*store.InterviewDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	iv, ok := f.byID[id]
	if !ok {
		return nil, followup.ErrNotFound
	}
	return iv, nil
}

type fakeDevices struct {
	registered map[string]string // token -> owner
	err        error
}

func (f *fakeDevices) RegisterHRDevice(_ context.Context, token, owner, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.registered == nil {
		f.registered = map[string]string{}
	}
	f.registered[token] = owner
	return nil
}

func (f *fakeDevices) UnregisterHRDevice(_ context.Context, token string) error {
	delete(f.registered, token)
	return f.err
}

func (f *fakeDevices) ListHRDevices(context.Context) ([]store.HRDevice, error) {
	var out []store.HRDevice
	for token, owner := range f.registered {
		out = append(out, store.HRDevice{Token: token, Owner: owner, Platform: "ios"})
	}
	return out, f.err
}

type testEnv struct {
	interp     *fakeInterpreter
	scheduler  *fakeScheduler
	executor   *fakeExecutor
	reporting  *fakeReporting
	interviews *fakeInterviews
	devices    *fakeDevices
	registry   *DrainRegistry
	metrics    *metrics.Metrics
	router     *Router
	handler    http.Handler
}

// newTestEnv builds a router with fakes. webhookSecret may be empty.
func newTestEnv(t *testing.T, webhookSecret string) *testEnv {
	t.Helper()
	env := &testEnv{
		interp:     &fakeInterpreter{result: followup.Interpretation{Outcome: followup.OutcomeProcessed, CallID: 7}},
		scheduler:  &fakeScheduler{},
		executor:   &fakeExecutor{},
		reporting:  &fakeReporting{},
		interviews: &fakeInterviews{},
		devices:    &fakeDevices{},
		registry:   NewDrainRegistry(),
		metrics:    metrics.NewNop(),
	}
	svc := Services{
		Verifier:    webhook.NewVerifierWithClock(webhookSecret, func() time.Time { return testNow }),
		Interpreter: env.interp,
		Scheduler:   env.scheduler,
		Executor:    env.executor,
		Reporting:   env.reporting,
		Interviews:  env.interviews,
		Devices:     env.devices,
		Registry:    env.registry,
		Metrics:     env.metrics,
	}
	env.router = newRouter(RouterConfig{JWTSecret: testSecret}, svc, zerolog.Nop())
	env.router.now = func() time.Time { return testNow }
	env.handler = withRequestLogging(zerolog.Nop(), env.router.mux)
	return env
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := IssueAdminToken(testSecret, "ops-1", "rrhh@example.com", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	return tok
}

func authorize(t *testing.T, req *http.Request) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	return req
}
