package followup

import (
	"context"
	"time"

	"github.com/lukasbauer/apriori/internal/analysis"
)

// Repository is the persistence the engine needs. Implementations must make
// ApplyTransition and CompleteCall conditional on the call's current status.
type Repository interface {
	ListEmployees(ctx context.Context, statuses []EmployeeStatus) ([]Employee, error)
	GetEmployee(ctx context.Context, employeeID string) (*Employee, error)

	GetProfile(ctx context.Context, employeeID string) (*EmployeeProfile, error)
	CreateProfile(ctx context.Context, p *EmployeeProfile) error

	// HasRecentCall reports a call scheduled at or after since in one of statuses.
	HasRecentCall(ctx context.Context, employeeID string, since time.Time, statuses []CallStatus) (bool, error)
	// CreateCall inserts call unless HasRecentCall would be true, returning ErrDuplicateCall.
	CreateCall(ctx context.Context, call *FollowUpCall, dedupSince time.Time) error
	ListDueCalls(ctx context.Context, from, to time.Time) ([]FollowUpCall, error)
	ListCalls(ctx context.Context, since time.Time) ([]FollowUpCall, error)
	GetCallByConversationID(ctx context.Context, conversationID string) (*FollowUpCall, error)

	// ApplyTransition returns ErrStaleState when the call is no longer in t.From.
	ApplyTransition(ctx context.Context, t Transition) error
	// CompleteCall atomically completes the call, stores the interview and updates the profile.
	CompleteCall(ctx context.Context, c Completion) (CompletionResult, error)
}

// Interview is the audit record of an analyzed exit interview.
type Interview struct {
	ID              int64                  `json:"id"`
	EmployeeID      string                 `json:"employee_id"`
	CallID          int64                  `json:"call_id"`
	ConversationID  string                 `json:"conversation_id"`
	Transcript      string                 `json:"transcript"`
	DurationSeconds int                    `json:"duration_seconds"`
	Insight         analysis.InsightRecord `json:"insight"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Completion is everything persisted when an in-progress call completes.
type Completion struct {
	Transition          Transition
	DurationSeconds     int
	ProviderCost        *float64
	TwilioCostCents     int
	VoiceAgentCostCents int
	Transcript          string
	Summary             string
	WasSuccessful       bool
	RetentionRisk       RiskLevel
	NeedsHumanFollowup  bool
	Interview           *Interview     // exit interviews only
	Profile             *ProfileUpdate // applied when the employee has a profile
}

// CompletionResult reports what CompleteCall stored.
type CompletionResult struct {
	InterviewID    int64
	ProfileUpdated bool
}

// AgentRequest asks the voice provider for an agent personalized for one employee.
type AgentRequest struct {
	CallType           CallType
	Name               string
	Department         string
	Position           string
	ManagerName        string
	TenureMonths       int
	PreviousConcerns   []string
	CommunicationStyle string
}

// OutboundCallRequest places a call through a previously created agent.
type OutboundCallRequest struct {
	AgentID          string
	PhoneNumber      string
	DynamicVariables map[string]string
}

// VoiceAgents is the external voice-agent provider.
type VoiceAgents interface {
	CreateAgent(ctx context.Context, req AgentRequest) (string, error)
	StartOutboundCall(ctx context.Context, req OutboundCallRequest) (string, error)
}

// Analyzer runs transcript analysis. It never fails; see analysis.Result.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, ec *analysis.EmployeeContext) analysis.Result
}

// LifecycleEvent describes one status change.
type LifecycleEvent struct {
	ID         string         `json:"id"`
	CallID     int64          `json:"call_id"`
	EmployeeID string         `json:"employee_id"`
	CallType   CallType       `json:"call_type"`
	From       CallStatus     `json:"from,omitempty"`
	To         CallStatus     `json:"to"`
	At         time.Time      `json:"at"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// EventSink receives lifecycle events. Publish must not block on slow consumers
// and never fails the caller.
type EventSink interface {
	Publish(ctx context.Context, ev LifecycleEvent)
}

// HumanFollowupAlert tells HR a completed call needs a person to reach out.
type HumanFollowupAlert struct {
	CallID            int64
	EmployeeID        string
	EmployeeName      string
	Department        string
	CallType          CallType
	RetentionRisk     RiskLevel
	SatisfactionLevel string
	Concerns          []string
}

// Alerter delivers human follow-up alerts.
type Alerter interface {
	NotifyHumanFollowup(ctx context.Context, alert HumanFollowupAlert)
}

type nopSink struct{}

func (nopSink) Publish(context.Context, LifecycleEvent) {}

type nopAlerter struct{}

func (nopAlerter) NotifyHumanFollowup(context.Context, HumanFollowupAlert) {}
