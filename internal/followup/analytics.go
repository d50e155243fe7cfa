package followup

import "math"

// RiskCounts counts calls per retention risk level.
type RiskCounts struct {
	Low     int `json:"low"`
	Medium  int `json:"medium"`
	High    int `json:"high"`
	Unknown int `json:"unknown"`
}

// TypeCounts summarizes calls of one type.
type TypeCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// CallAnalytics summarizes follow-up calls over a period.
type CallAnalytics struct {
	Total               int                     `json:"total_calls"`
	Completed           int                     `json:"completed_calls"`
	Failed              int                     `json:"failed_calls"`
	Cancelled           int                     `json:"cancelled_calls"`
	Pending             int                     `json:"pending_calls"`
	CompletionRate      float64                 `json:"completion_rate"`
	SuccessRate         float64                 `json:"success_rate"`
	RiskDistribution    RiskCounts              `json:"risk_distribution"`
	HumanFollowupNeeded int                     `json:"human_followup_needed"`
	TotalCostCents      int                     `json:"total_cost_cents"`
	ByType              map[CallType]TypeCounts `json:"by_type"`
}

// SummarizeCalls computes CallAnalytics. Completion rate is over all calls,
// success rate over completed calls.
func SummarizeCalls(calls []FollowUpCall) CallAnalytics {
	out := CallAnalytics{ByType: map[CallType]TypeCounts{}}
	successful := 0

	for _, c := range calls {
		out.Total++
		tc := out.ByType[c.CallType]
		tc.Total++

		switch c.Status {
		case StatusCompleted:
			out.Completed++
			tc.Completed++
			if c.WasSuccessful {
				successful++
			}
		case StatusFailed:
			out.Failed++
		case StatusCancelled:
			out.Cancelled++
		default:
			out.Pending++
		}
		out.ByType[c.CallType] = tc

		switch c.RetentionRiskLevel {
		case RiskLow:
			out.RiskDistribution.Low++
		case RiskMedium:
			out.RiskDistribution.Medium++
		case RiskHigh:
			out.RiskDistribution.High++
		default:
			out.RiskDistribution.Unknown++
		}

		if c.NeedsHumanFollowup {
			out.HumanFollowupNeeded++
		}
		out.TotalCostCents += c.TwilioCostCents + c.VoiceAgentCostCents
	}

	out.CompletionRate = ratio(out.Completed, out.Total)
	out.SuccessRate = ratio(successful, out.Completed)
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*1000) / 1000
}
