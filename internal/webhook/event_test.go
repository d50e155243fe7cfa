package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "type": "post_call_transcription",
  "event_timestamp": 1781103600,
  "data": {
    "agent_id": "agent_abc",
    "conversation_id": "conv_123",
    "status": "done",
    "transcript": [
      {"role": "agent", "message": "Hola Ana, ¿tienes unos minutos?"},
      {"role": "user", "message": "Sí, claro."}
    ],
    "metadata": {"call_duration_secs": 312, "cost": 840},
    "analysis": {
      "call_successful": "success",
      "transcript_summary": "Llamada de bienestar",
      "data_collection_results": {
        "retention_risk": {"data_collection_id": "retention_risk", "value": "High"},
        "satisfaction_level": {"value": "satisfied"},
        "concerns": {"value": ["pay"]},
        "satisfaction_score": {"value": "7"},
        "recommendations": {"value": "más formación, mejores turnos"},
        "primary_reason": {"value": null}
      }
    }
  }
}`

func TestParse(t *testing.T) {
	ev, err := Parse([]byte(samplePayload))
	require.NoError(t, err)

	assert.Equal(t, EventTypePostCallTranscription, ev.Type)
	assert.Equal(t, "conv_123", ev.Data.ConversationID)
	assert.Equal(t, 312, ev.Data.Metadata.CallDurationSecs)
	require.NotNil(t, ev.Data.Metadata.Cost)
	assert.Equal(t, 840.0, *ev.Data.Metadata.Cost)
	assert.True(t, ev.Data.Analysis.Successful())
	assert.Equal(t, "agent: Hola Ana, ¿tienes unos minutos?\nuser: Sí, claro.", ev.Data.TranscriptText())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"data":{"conversation_id":"  "}}`))
	assert.ErrorIs(t, err, ErrMissingConversationID)
}

func TestCollected(t *testing.T) {
	ev, err := Parse([]byte(samplePayload))
	require.NoError(t, err)

	c, err := ev.Data.Analysis.Collected()
	require.NoError(t, err)

	assert.Equal(t, "high", c.RetentionRisk)
	assert.Equal(t, "satisfied", c.SatisfactionLevel)
	assert.Equal(t, []string{"pay"}, c.Concerns)
	require.NotNil(t, c.SatisfactionScore)
	assert.Equal(t, 7.0, *c.SatisfactionScore)
	assert.Equal(t, []string{"más formación", "mejores turnos"}, c.Recommendations)
	assert.Empty(t, c.PrimaryReason)
}

func TestCollectedListForms(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"json array string", `["pay","hours","manager"]`, []string{"pay", "hours", "manager"}},
		{"array", []any{"pay", " ", "hours"}, []string{"pay", "hours"}},
		{"empty string", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Analysis{DataCollectionResults: map[string]DataCollectionResult{
				"concerns": {Value: tt.value},
			}}
			c, err := a.Collected()
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Concerns)
		})
	}
}

func TestTranscriptTextEmpty(t *testing.T) {
	assert.Equal(t, "", EventData{}.TranscriptText())
}

func TestPeekType(t *testing.T) {
	assert.Equal(t, EventTypePostCallTranscription, PeekType([]byte(samplePayload)))
	assert.Equal(t, "post_call_audio", PeekType([]byte(`{"type":"post_call_audio","data":{}}`)))
	assert.Equal(t, "", PeekType([]byte(`[1,2]`)))
}

func TestIsPostCall(t *testing.T) {
	assert.True(t, IsPostCall(""))
	assert.True(t, IsPostCall(EventTypePostCallTranscription))
	assert.False(t, IsPostCall("post_call_audio"))

	ev, err := Parse([]byte(`{"data":{"conversation_id":"conv-1"}}`))
	require.NoError(t, err)
	assert.True(t, ev.IsPostCall())
}
