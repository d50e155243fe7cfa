// Package analysis turns interview transcripts into structured insight records
// and rolls many records up into organization-level statistics.
package analysis

// Structured answer keys, one per fixed exit-interview question.
const (
	AnswerPrimaryReason = "razon_principal"
	AnswerSupport       = "apoyo_valoracion"
	AnswerGrowth        = "desarrollo_crecimiento"
	AnswerImprovements  = "sugerencias_mejora"
)

// AnswerKeys lists the structured answer keys in question order.
var AnswerKeys = []string{AnswerPrimaryReason, AnswerSupport, AnswerGrowth, AnswerImprovements}

// Score defaults substituted when the model omits a value.
const (
	DefaultSentiment    = 0.0
	DefaultSatisfaction = 5.0
	DefaultRetention    = 0.5
	DefaultConfidence   = 0.7
)

// FallbackModel marks records produced without a usable model response.
const FallbackModel = "fallback"

// InsightRecord is the structured result of analyzing one transcript.
// The four scores are always present and clamped to their ranges.
type InsightRecord struct {
	ExecutiveSummary  string            `json:"executive_summary"`
	DetailedSummary   string            `json:"detailed_summary"`
	SentimentScore    float64           `json:"sentiment_score"`    // [-1, 1]
	SatisfactionScore float64           `json:"satisfaction_score"` // [0, 10]
	RetentionRisk     float64           `json:"retention_risk"`     // [0, 1]
	ConfidenceScore   float64           `json:"confidence_score"`   // [0, 1]
	PrimaryReason     string            `json:"primary_reason"`
	SecondaryReasons  []string          `json:"secondary_reasons"`
	StructuredAnswers map[string]string `json:"answers_structured"`
	Recommendations   []string          `json:"recommendations"`
	ActionItems       []string          `json:"action_items"`
	KeyQuotes         []string          `json:"key_quotes"`
	RedFlags          []string          `json:"red_flags"`
	PositiveFeedback  []string          `json:"positive_feedback"`
	ModelUsed         string            `json:"ai_model_used"`
	ProcessingSeconds float64           `json:"processing_time_seconds"`
}

// EmployeeContext is optional background embedded in the analysis prompt.
type EmployeeContext struct {
	Department   string
	Position     string
	TenureMonths int
}

// Outcome reports how a record was produced.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFallback Outcome = "fallback"
)

// Result carries the record plus the reason a fallback was used, if any.
// Record is always well-formed, Err is informational.
type Result struct {
	Record  InsightRecord
	Outcome Outcome
	Err     error
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp forces all four scores into range.
func (r *InsightRecord) Clamp() {
	r.SentimentScore = clamp(r.SentimentScore, -1, 1)
	r.SatisfactionScore = clamp(r.SatisfactionScore, 0, 10)
	r.RetentionRisk = clamp(r.RetentionRisk, 0, 1)
	r.ConfidenceScore = clamp(r.ConfidenceScore, 0, 1)
}
