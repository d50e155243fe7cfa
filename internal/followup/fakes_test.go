package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lukasbauer/apriori/internal/analysis"
)

type memRepo struct {
	mu         sync.Mutex
	employees  []Employee
	profiles   map[string]*EmployeeProfile
	calls      []*FollowUpCall
	interviews []Interview
	nextID     int64

	createProfileErr error
	// beforeComplete runs inside CompleteCall before the status guard.
	beforeComplete func()
}

func newMemRepo(employees ...Employee) *memRepo {
	return &memRepo{employees: employees, profiles: map[string]*EmployeeProfile{}}
}

func (r *memRepo) ListEmployees(_ context.Context, statuses []EmployeeStatus) ([]Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Employee
	for _, e := range r.employees {
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (r *memRepo) GetEmployee(_ context.Context, id string) (*Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.employees {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) GetProfile(_ context.Context, id string) (*EmployeeProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) CreateProfile(_ context.Context, p *EmployeeProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createProfileErr != nil {
		return r.createProfileErr
	}
	cp := *p
	r.profiles[p.EmployeeID] = &cp
	return nil
}

func (r *memRepo) hasRecentLocked(id string, since time.Time, statuses []CallStatus) bool {
	for _, c := range r.calls {
		if c.EmployeeID != id || c.ScheduledAt.Before(since) {
			continue
		}
		for _, s := range statuses {
			if c.Status == s {
				return true
			}
		}
	}
	return false
}

func (r *memRepo) HasRecentCall(_ context.Context, id string, since time.Time, statuses []CallStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasRecentLocked(id, since, statuses), nil
}

func (r *memRepo) CreateCall(_ context.Context, call *FollowUpCall, since time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasRecentLocked(call.EmployeeID, since, DedupStatuses) {
		return ErrDuplicateCall
	}
	r.nextID++
	call.ID = r.nextID
	cp := *call
	r.calls = append(r.calls, &cp)
	return nil
}

func (r *memRepo) ListDueCalls(_ context.Context, from, to time.Time) ([]FollowUpCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FollowUpCall
	for _, c := range r.calls {
		if c.Status == StatusScheduled && !c.ScheduledAt.Before(from) && !c.ScheduledAt.After(to) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memRepo) ListCalls(_ context.Context, since time.Time) ([]FollowUpCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FollowUpCall
	for _, c := range r.calls {
		if !c.CreatedAt.Before(since) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memRepo) GetCallByConversationID(_ context.Context, conversationID string) (*FollowUpCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if conversationID != "" && c.ConversationID == conversationID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) callLocked(id int64) (*FollowUpCall, error) {
	for _, c := range r.calls {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("call %d: %w", id, ErrNotFound)
}

func (r *memRepo) ApplyTransition(_ context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.callLocked(t.CallID)
	if err != nil {
		return err
	}
	if c.Status != t.From {
		return ErrStaleState
	}
	t.Apply(c)
	return nil
}

func (r *memRepo) CompleteCall(_ context.Context, comp Completion) (CompletionResult, error) {
	if r.beforeComplete != nil {
		r.beforeComplete()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.callLocked(comp.Transition.CallID)
	if err != nil {
		return CompletionResult{}, err
	}
	if c.Status != comp.Transition.From {
		return CompletionResult{}, ErrStaleState
	}
	comp.Transition.Apply(c)
	d := comp.DurationSeconds
	c.DurationSeconds = &d
	c.ProviderCost = comp.ProviderCost
	c.TwilioCostCents = comp.TwilioCostCents
	c.VoiceAgentCostCents = comp.VoiceAgentCostCents
	c.Transcript = comp.Transcript
	c.Summary = comp.Summary
	c.WasSuccessful = comp.WasSuccessful
	c.RetentionRiskLevel = comp.RetentionRisk
	c.NeedsHumanFollowup = comp.NeedsHumanFollowup

	var res CompletionResult
	if comp.Interview != nil {
		iv := *comp.Interview
		iv.ID = int64(len(r.interviews) + 1)
		r.interviews = append(r.interviews, iv)
		res.InterviewID = iv.ID
	}
	if comp.Profile != nil {
		if p, ok := r.profiles[c.EmployeeID]; ok {
			p.Apply(*comp.Profile)
			res.ProfileUpdated = true
		}
	}
	return res, nil
}

func (r *memRepo) call(id int64) FollowUpCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.callLocked(id)
	if err != nil {
		panic(err)
	}
	return *c
}

// addCall stores call as-is and returns its id.
func (r *memRepo) addCall(call FollowUpCall) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	call.ID = r.nextID
	r.calls = append(r.calls, &call)
	return call.ID
}

type fakeVoice struct {
	mu        sync.Mutex
	agents    []AgentRequest
	outbound  []OutboundCallRequest
	agentErr  error
	failPhone string
}

func (v *fakeVoice) CreateAgent(_ context.Context, req AgentRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.agentErr != nil {
		return "", v.agentErr
	}
	v.agents = append(v.agents, req)
	return fmt.Sprintf("agent-%d", len(v.agents)), nil
}

func (v *fakeVoice) StartOutboundCall(_ context.Context, req OutboundCallRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failPhone != "" && req.PhoneNumber == v.failPhone {
		return "", errors.New("provider rejected number")
	}
	v.outbound = append(v.outbound, req)
	return fmt.Sprintf("conv-%d", len(v.outbound)), nil
}

type fakeAnalyzer struct {
	result analysis.Result
	calls  int
	gotCtx *analysis.EmployeeContext
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ string, ec *analysis.EmployeeContext) analysis.Result {
	a.calls++
	a.gotCtx = ec
	return a.result
}

type recordingSink struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (s *recordingSink) Publish(_ context.Context, ev LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

type recordingAlerter struct {
	alerts []HumanFollowupAlert
}

func (a *recordingAlerter) NotifyHumanFollowup(_ context.Context, alert HumanFollowupAlert) {
	a.alerts = append(a.alerts, alert)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
