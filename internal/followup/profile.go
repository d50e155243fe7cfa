package followup

import (
	"strings"
	"time"
)

// MaxSatisfactionHistory bounds EmployeeProfile.SatisfactionHistory.
const MaxSatisfactionHistory = 10

// ConcernSet is an insertion-ordered set of concerns. It only grows.
type ConcernSet []string

// Contains reports whether concern is in the set.
func (s ConcernSet) Contains(concern string) bool {
	for _, c := range s {
		if c == concern {
			return true
		}
	}
	return false
}

// Union returns a new set with items added. Blank items are ignored and
// duplicates collapse. The receiver is not modified.
func (s ConcernSet) Union(items ...string) ConcernSet {
	out := make(ConcernSet, len(s), len(s)+len(items))
	copy(out, s)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || out.Contains(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// SatisfactionEntry records one call's satisfaction reading.
type SatisfactionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level,omitempty"`
	Score     *float64  `json:"score,omitempty"`
	CallType  CallType  `json:"call_type"`
}

// SatisfactionHistory is ordered oldest first.
type SatisfactionHistory []SatisfactionEntry

// PushBounded returns a new history with e appended and only the most recent
// n entries kept.
func (h SatisfactionHistory) PushBounded(e SatisfactionEntry, n int) SatisfactionHistory {
	if n <= 0 {
		return SatisfactionHistory{}
	}
	all := make(SatisfactionHistory, 0, len(h)+1)
	all = append(all, h...)
	all = append(all, e)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make(SatisfactionHistory, len(all))
	copy(out, all)
	return out
}

// EmployeeProfile is the personalization context accumulated across calls.
type EmployeeProfile struct {
	EmployeeID          string              `json:"employee_id"`
	ConcernsMentioned   ConcernSet          `json:"concerns_mentioned"`
	SatisfactionHistory SatisfactionHistory `json:"satisfaction_history"`
	ManagerName         string              `json:"manager_name"`
	CommunicationStyle  string              `json:"communication_style"`
	SensitivityNotes    string              `json:"sensitivity_notes"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// ProfileUpdate is what one completed call contributes to a profile.
type ProfileUpdate struct {
	Concerns []string
	Entry    SatisfactionEntry
}

// Apply merges u into the profile.
func (p *EmployeeProfile) Apply(u ProfileUpdate) {
	p.ConcernsMentioned = p.ConcernsMentioned.Union(u.Concerns...)
	p.SatisfactionHistory = p.SatisfactionHistory.PushBounded(u.Entry, MaxSatisfactionHistory)
	p.UpdatedAt = u.Entry.Timestamp
}
