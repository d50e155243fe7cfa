package followup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeCalls(t *testing.T) {
	calls := []FollowUpCall{
		{CallType: CallTypeRetentionCheck, Status: StatusCompleted, WasSuccessful: true, RetentionRiskLevel: RiskHigh, NeedsHumanFollowup: true, TwilioCostCents: 6, VoiceAgentCostCents: 15},
		{CallType: CallTypeRetentionCheck, Status: StatusCompleted, WasSuccessful: false, RetentionRiskLevel: RiskLow},
		{CallType: CallTypeRetentionCheck, Status: StatusFailed, RetentionRiskLevel: RiskMedium},
		{CallType: CallTypeExitInterview, Status: StatusCompleted, WasSuccessful: true, RetentionRiskLevel: RiskHigh, TwilioCostCents: 3},
		{CallType: CallTypeExitInterview, Status: StatusCancelled, RetentionRiskLevel: RiskUnknown},
		{CallType: CallTypeExitInterview, Status: StatusScheduled},
	}

	got := SummarizeCalls(calls)

	assert.Equal(t, 6, got.Total)
	assert.Equal(t, 3, got.Completed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 1, got.Cancelled)
	assert.Equal(t, 1, got.Pending)
	assert.InDelta(t, 0.5, got.CompletionRate, 1e-9)
	assert.InDelta(t, 0.667, got.SuccessRate, 1e-9)
	assert.Equal(t, RiskCounts{Low: 1, Medium: 1, High: 2, Unknown: 2}, got.RiskDistribution)
	assert.Equal(t, 1, got.HumanFollowupNeeded)
	assert.Equal(t, 24, got.TotalCostCents)
	assert.Equal(t, TypeCounts{Total: 3, Completed: 2}, got.ByType[CallTypeRetentionCheck])
	assert.Equal(t, TypeCounts{Total: 3, Completed: 1}, got.ByType[CallTypeExitInterview])
}

func TestSummarizeCallsEmpty(t *testing.T) {
	got := SummarizeCalls(nil)
	assert.Zero(t, got.Total)
	assert.Zero(t, got.CompletionRate)
	assert.Zero(t, got.SuccessRate)
	assert.NotNil(t, got.ByType)
}
