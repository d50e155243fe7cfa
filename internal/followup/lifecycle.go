package followup

import (
	"fmt"
	"time"
)

// allowedTransitions is the whole lifecycle. Terminal states have no entry.
var allowedTransitions = map[CallStatus][]CallStatus{
	StatusScheduled:  {StatusInProgress, StatusCancelled, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to CallStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is a guarded status change: it applies only while the call is still in From.
type Transition struct {
	CallID         int64
	From           CallStatus
	To             CallStatus
	At             time.Time
	ConversationID string // set on scheduled → in_progress
	FailureReason  string // set on → failed / cancelled
}

// NewTransition validates moving call to status to.
func NewTransition(call FollowUpCall, to CallStatus, at time.Time) (Transition, error) {
	if !CanTransition(call.Status, to) {
		return Transition{}, fmt.Errorf("%w: %s → %s (call %d)", ErrInvalidTransition, call.Status, to, call.ID)
	}
	return Transition{CallID: call.ID, From: call.Status, To: to, At: at}, nil
}

// Apply mutates call as the repository would after a successful guarded write.
func (t Transition) Apply(call *FollowUpCall) {
	call.Status = t.To
	call.UpdatedAt = t.At
	if t.ConversationID != "" {
		call.ConversationID = t.ConversationID
	}
	if t.FailureReason != "" {
		call.FailureReason = t.FailureReason
	}
	if t.To == StatusCompleted {
		at := t.At
		call.CompletedAt = &at
	}
}
