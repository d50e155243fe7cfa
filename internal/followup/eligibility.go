package followup

import "time"

const day = 24 * time.Hour

// Rule decides whether one employee is an outreach candidate.
type Rule interface {
	Name() string
	Evaluate(e Employee, now time.Time) (Candidate, bool)
}

// NewHireRule selects active employees whose tenure lies in [MinTenure, MaxTenure].
type NewHireRule struct {
	MinTenure time.Duration
	MaxTenure time.Duration
	Risk      RiskLevel
}

// Name implements Rule.
func (NewHireRule) Name() string { return "new_hire_onboarding" }

// Evaluate implements Rule.
func (r NewHireRule) Evaluate(e Employee, now time.Time) (Candidate, bool) {
	if !e.Active() || e.HireDate.IsZero() {
		return Candidate{}, false
	}
	tenure := now.Sub(e.HireDate)
	if tenure < r.MinTenure || tenure > r.MaxTenure {
		return Candidate{}, false
	}
	return newCandidate(e, now, r.Risk, r.Name()), true
}

// ExitPendingRule selects employees awaiting an exit interview.
type ExitPendingRule struct{}

// Name implements Rule.
func (ExitPendingRule) Name() string { return "exit_interview_pending" }

// Evaluate implements Rule.
func (r ExitPendingRule) Evaluate(e Employee, now time.Time) (Candidate, bool) {
	if e.Status != EmployeeExitInterviewPending {
		return Candidate{}, false
	}
	return newCandidate(e, now, RiskUnknown, r.Name()), true
}

// DefaultRules is the initial ruleset: new hires between 30 and 90 days, medium risk.
func DefaultRules() []Rule {
	return []Rule{
		NewHireRule{MinTenure: 30 * day, MaxTenure: 90 * day, Risk: RiskMedium},
	}
}

// Selector evaluates rules over an employee population. It only reads.
type Selector struct {
	rules []Rule
}

// NewSelector creates a selector; with no rules DefaultRules are used.
func NewSelector(rules ...Rule) *Selector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Selector{rules: rules}
}

// SelectCandidates returns one candidate per matching employee, using the
// first rule that matches, in input order.
func (s *Selector) SelectCandidates(employees []Employee, now time.Time) []Candidate {
	var out []Candidate
	for _, e := range employees {
		for _, rule := range s.rules {
			if c, ok := rule.Evaluate(e, now); ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// TenureMonths is whole elapsed days divided by 30.
func TenureMonths(hire, now time.Time) int {
	if hire.IsZero() || now.Before(hire) {
		return 0
	}
	days := int(now.Sub(hire) / day)
	return days / 30
}

func newCandidate(e Employee, now time.Time, risk RiskLevel, reason string) Candidate {
	return Candidate{
		EmployeeID:           e.ID,
		Name:                 e.Name,
		Phone:                e.Phone,
		Email:                e.Email,
		Department:           e.Department,
		Position:             e.Position,
		ManagerName:          e.ManagerName,
		HireDate:             e.HireDate,
		PreferredContactTime: e.PreferredContactTime,
		TimeZone:             e.TimeZone,
		TenureMonths:         TenureMonths(e.HireDate, now),
		RiskLevel:            risk,
		Reason:               reason,
	}
}
