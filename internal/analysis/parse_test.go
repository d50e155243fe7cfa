package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json {\"a\":1} ```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestParseResponseClampsScores(t *testing.T) {
	tests := []struct {
		name                                      string
		sentiment, satisfaction, risk, confidence string
		want                                      [4]float64
	}{
		{"in range", "0.4", "7", "0.2", "0.9", [4]float64{0.4, 7, 0.2, 0.9}},
		{"above range", "3", "42", "1.5", "2", [4]float64{1, 10, 1, 1}},
		{"below range", "-9", "-1", "-0.5", "-3", [4]float64{-1, 0, 0, 0}},
		{"nulls use defaults", "null", "null", "null", "null", [4]float64{0, 5, 0.5, 0.7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := fmt.Sprintf(`{"sentiment_score":%s,"satisfaction_score":%s,"retention_risk":%s,"confidence_score":%s}`,
				tt.sentiment, tt.satisfaction, tt.risk, tt.confidence)

			rec, err := ParseResponse(content, "gpt-4o-mini")
			require.NoError(t, err)
			assert.Equal(t, tt.want[0], rec.SentimentScore)
			assert.Equal(t, tt.want[1], rec.SatisfactionScore)
			assert.Equal(t, tt.want[2], rec.RetentionRisk)
			assert.Equal(t, tt.want[3], rec.ConfidenceScore)
			assert.Equal(t, "gpt-4o-mini", rec.ModelUsed)
		})
	}
}

func TestParseResponseDefaultsWhenAbsent(t *testing.T) {
	rec, err := ParseResponse("```json\n{\"primary_reason\":\"Salario\"}\n```", "m")
	require.NoError(t, err)

	assert.Equal(t, DefaultSentiment, rec.SentimentScore)
	assert.Equal(t, DefaultSatisfaction, rec.SatisfactionScore)
	assert.Equal(t, DefaultRetention, rec.RetentionRisk)
	assert.Equal(t, DefaultConfidence, rec.ConfidenceScore)
	assert.Equal(t, "Salario", rec.PrimaryReason)
	assert.NotNil(t, rec.Recommendations)
	for _, k := range AnswerKeys {
		_, ok := rec.StructuredAnswers[k]
		assert.True(t, ok, "answer key %s missing", k)
	}
}

func TestParseResponseRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "   "},
		{"not json", "Lo siento, no puedo ayudar con eso."},
		{"truncated", `{"sentiment_score": 0.5, "summary": "`},
		{"array", `[1,2,3]`},
		{"score as string", `{"satisfaction_score":"alto"}`},
		{"list of numbers", `{"red_flags":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.content, "m")
			assert.Error(t, err)
		})
	}
}
