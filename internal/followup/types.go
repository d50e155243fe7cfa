// Package followup decides which employees receive a proactive call, when the
// call happens, how the call's status evolves and how a finished call's
// webhook updates the employee's record.
package followup

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleState is returned when a guarded write finds the call no longer in its expected status.
	ErrStaleState = errors.New("call status changed concurrently")
	// ErrDuplicateCall is returned when a recent call already exists for the employee.
	ErrDuplicateCall = errors.New("recent follow-up call already exists")
)

// CallType is the kind of outreach call.
type CallType string

const (
	CallTypeExitInterview  CallType = "exit_interview"
	CallTypeRetentionCheck CallType = "retention_check"
	CallTypeNDayFollowup   CallType = "n_day_followup"
)

// ParseCallType validates s.
func ParseCallType(s string) (CallType, error) {
	switch ct := CallType(s); ct {
	case CallTypeExitInterview, CallTypeRetentionCheck, CallTypeNDayFollowup:
		return ct, nil
	}
	return "", fmt.Errorf("unknown call type %q", s)
}

// CallStatus is the lifecycle state of a FollowUpCall.
type CallStatus string

const (
	StatusScheduled  CallStatus = "scheduled"
	StatusInProgress CallStatus = "in_progress"
	StatusCompleted  CallStatus = "completed"
	StatusFailed     CallStatus = "failed"
	StatusCancelled  CallStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// RiskLevel is the retention risk reported for a call.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// ParseRiskLevel maps provider text to a RiskLevel, RiskUnknown when unrecognized.
func ParseRiskLevel(s string) RiskLevel {
	switch rl := RiskLevel(s); rl {
	case RiskLow, RiskMedium, RiskHigh:
		return rl
	}
	return RiskUnknown
}

// ContactWindow is the employee's preferred time of day.
type ContactWindow string

const (
	ContactMorning   ContactWindow = "morning"
	ContactAfternoon ContactWindow = "afternoon"
	ContactEvening   ContactWindow = "evening"
)

// Hour maps the window to an hour of day, 14 when unset or unrecognized.
func (w ContactWindow) Hour() int {
	switch w {
	case ContactMorning:
		return 9
	case ContactEvening:
		return 17
	default:
		return 14
	}
}

// EmployeeStatus is the employment state.
type EmployeeStatus string

const (
	EmployeeActive               EmployeeStatus = "active"
	EmployeeExitInterviewPending EmployeeStatus = "exit_interview_pending"
	EmployeeExited               EmployeeStatus = "exited"
)

// Employee is the slice of the HR record the engine reads.
type Employee struct {
	ID                   string         `json:"employee_id"`
	Name                 string         `json:"name"`
	Email                string         `json:"email"`
	Phone                string         `json:"phone"`
	Department           string         `json:"department"`
	Position             string         `json:"position"`
	ManagerName          string         `json:"manager_name"`
	HireDate             time.Time      `json:"hire_date"`
	ExitDate             *time.Time     `json:"exit_date,omitempty"`
	Status               EmployeeStatus `json:"status"`
	PreferredContactTime ContactWindow  `json:"preferred_contact_time"`
	TimeZone             string         `json:"time_zone"`
}

// Active reports whether the employee is currently employed.
func (e Employee) Active() bool {
	return e.Status == EmployeeActive
}

// Reachable reports whether a call of type ct may still be placed. Employees
// awaiting an exit interview are reachable for that call only.
func (e Employee) Reachable(ct CallType) bool {
	if e.Active() {
		return true
	}
	return ct == CallTypeExitInterview && e.Status == EmployeeExitInterviewPending
}

// FollowUpCall is one outreach attempt and its lifecycle state.
type FollowUpCall struct {
	ID                  int64      `json:"id"`
	EmployeeID          string     `json:"employee_id"`
	CallType            CallType   `json:"call_type"`
	ScheduledAt         time.Time  `json:"scheduled_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ConversationID      string     `json:"external_conversation_id,omitempty"`
	AgentID             string     `json:"external_agent_id"`
	Status              CallStatus `json:"status"`
	DurationSeconds     *int       `json:"duration_seconds,omitempty"`
	WasSuccessful       bool       `json:"was_successful"`
	RetentionRiskLevel  RiskLevel  `json:"retention_risk_level"`
	NeedsHumanFollowup  bool       `json:"needs_human_followup"`
	Transcript          string     `json:"transcript,omitempty"`
	Summary             string     `json:"summary,omitempty"`
	ProviderCost        *float64   `json:"provider_cost,omitempty"`
	TwilioCostCents     int        `json:"twilio_cost_cents"`
	VoiceAgentCostCents int        `json:"voice_agent_cost_cents"`
	FailureReason       string     `json:"failure_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Candidate is an employee selected for proactive outreach.
type Candidate struct {
	EmployeeID           string        `json:"employee_id"`
	Name                 string        `json:"name"`
	Phone                string        `json:"phone"`
	Email                string        `json:"email"`
	Department           string        `json:"department"`
	Position             string        `json:"position"`
	ManagerName          string        `json:"manager_name"`
	HireDate             time.Time     `json:"hire_date"`
	PreferredContactTime ContactWindow `json:"preferred_contact_time"`
	TimeZone             string        `json:"time_zone"`
	TenureMonths         int           `json:"tenure_months"`
	RiskLevel            RiskLevel     `json:"risk_level"`
	Reason               string        `json:"reason"`
}
