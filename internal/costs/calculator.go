// Package costs provides cost calculation for follow-up calls.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// Defaults can be overridden via environment variables.
var (
	// TwilioCentsPerMinute is the cost per minute for outbound Twilio voice.
	// Default: $0.014/min = 1.4 cents/min
	TwilioCentsPerMinute = getEnvFloat("COST_TWILIO_CENTS_PER_MIN", 1.4)

	// ElevenLabsCentsPerThousandCredits converts provider-reported credits to cents.
	// Default: $0.30 per 1K credits = 30 cents
	ElevenLabsCentsPerThousandCredits = getEnvFloat("COST_ELEVENLABS_CENTS_PER_1K_CREDITS", 30.0)

	// ElevenLabsCentsPerMinute estimates agent cost when the provider reports none.
	// Default: $0.08/min = 8 cents/min
	ElevenLabsCentsPerMinute = getEnvFloat("COST_ELEVENLABS_CENTS_PER_MIN", 8.0)
)

// CallMetrics contains the raw metrics from a completed follow-up call.
type CallMetrics struct {
	CallDurationSeconds int      // Billed telephony duration
	ProviderCredits     *float64 // Voice-agent cost as reported by the webhook, if any
}

// CallCosts contains the calculated costs for a call in cents.
type CallCosts struct {
	TwilioCostCents     int  `json:"twilio_cost_cents"`
	VoiceAgentCostCents int  `json:"voice_agent_cost_cents"`
	TotalCostCents      int  `json:"total_cost_cents"`
	Estimated           bool `json:"estimated"` // agent cost derived from duration
}

// CalculateCallCosts computes the costs for a call based on usage metrics.
func CalculateCallCosts(m CallMetrics) CallCosts {
	minutes := float64(m.CallDurationSeconds) / 60.0
	if minutes < 0 {
		minutes = 0
	}

	costs := CallCosts{
		TwilioCostCents: roundToInt(minutes * TwilioCentsPerMinute),
	}

	if m.ProviderCredits != nil {
		costs.VoiceAgentCostCents = roundToInt((*m.ProviderCredits / 1000.0) * ElevenLabsCentsPerThousandCredits)
	} else {
		costs.VoiceAgentCostCents = roundToInt(minutes * ElevenLabsCentsPerMinute)
		costs.Estimated = true
	}

	costs.TotalCostCents = costs.TwilioCostCents + costs.VoiceAgentCostCents
	return costs
}

// SumCosts totals a batch of calls.
func SumCosts(all []CallCosts) CallCosts {
	var total CallCosts
	for _, c := range all {
		total.TwilioCostCents += c.TwilioCostCents
		total.VoiceAgentCostCents += c.VoiceAgentCostCents
		total.TotalCostCents += c.TotalCostCents
		total.Estimated = total.Estimated || c.Estimated
	}
	return total
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
