package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when the model produced no content.
var ErrEmptyResponse = errors.New("empty model response")

// rawInsight mirrors InsightRecord with pointer scores so absent values can be told apart from zero.
type rawInsight struct {
	ExecutiveSummary  string            `json:"executive_summary"`
	DetailedSummary   string            `json:"detailed_summary"`
	SentimentScore    *float64          `json:"sentiment_score"`
	SatisfactionScore *float64          `json:"satisfaction_score"`
	RetentionRisk     *float64          `json:"retention_risk"`
	ConfidenceScore   *float64          `json:"confidence_score"`
	PrimaryReason     string            `json:"primary_reason"`
	SecondaryReasons  []string          `json:"secondary_reasons"`
	StructuredAnswers map[string]string `json:"answers_structured"`
	Recommendations   []string          `json:"recommendations"`
	ActionItems       []string          `json:"action_items"`
	KeyQuotes         []string          `json:"key_quotes"`
	RedFlags          []string          `json:"red_flags"`
	PositiveFeedback  []string          `json:"positive_feedback"`
}

// StripCodeFences removes a surrounding ```json ... ``` or ``` ... ``` wrapper.
func StripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```JSON")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// ParseResponse validates model output and converts it into a clamped record.
func ParseResponse(content, model string) (InsightRecord, error) {
	content = StripCodeFences(content)
	if content == "" {
		return InsightRecord{}, ErrEmptyResponse
	}

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return InsightRecord{}, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	if err := insightSchema.Validate(doc); err != nil {
		return InsightRecord{}, fmt.Errorf("model JSON does not match insight schema: %w", err)
	}

	var raw rawInsight
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return InsightRecord{}, fmt.Errorf("failed to decode model JSON: %w", err)
	}

	rec := InsightRecord{
		ExecutiveSummary:  raw.ExecutiveSummary,
		DetailedSummary:   raw.DetailedSummary,
		SentimentScore:    valueOr(raw.SentimentScore, DefaultSentiment),
		SatisfactionScore: valueOr(raw.SatisfactionScore, DefaultSatisfaction),
		RetentionRisk:     valueOr(raw.RetentionRisk, DefaultRetention),
		ConfidenceScore:   valueOr(raw.ConfidenceScore, DefaultConfidence),
		PrimaryReason:     raw.PrimaryReason,
		SecondaryReasons:  nonNil(raw.SecondaryReasons),
		StructuredAnswers: normalizeAnswers(raw.StructuredAnswers),
		Recommendations:   nonNil(raw.Recommendations),
		ActionItems:       nonNil(raw.ActionItems),
		KeyQuotes:         nonNil(raw.KeyQuotes),
		RedFlags:          nonNil(raw.RedFlags),
		PositiveFeedback:  nonNil(raw.PositiveFeedback),
		ModelUsed:         model,
	}
	rec.Clamp()
	return rec, nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// normalizeAnswers keeps every known question key present.
func normalizeAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(AnswerKeys)+len(in))
	for k, v := range in {
		out[k] = v
	}
	for _, k := range AnswerKeys {
		if _, ok := out[k]; !ok {
			out[k] = ""
		}
	}
	return out
}
