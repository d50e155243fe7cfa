package followup

import (
	"time"

	"github.com/google/uuid"
)

func newLifecycleEvent(call FollowUpCall, from, to CallStatus, at time.Time, fields map[string]any) LifecycleEvent {
	return LifecycleEvent{
		ID:         uuid.NewString(),
		CallID:     call.ID,
		EmployeeID: call.EmployeeID,
		CallType:   call.CallType,
		From:       from,
		To:         to,
		At:         at,
		Fields:     fields,
	}
}
