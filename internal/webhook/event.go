package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventTypePostCallTranscription is the only event type the interpreter consumes.
// Deliveries without a type are treated as this one.
const EventTypePostCallTranscription = "post_call_transcription"

// ErrMissingConversationID is returned by Parse when data.conversation_id is empty.
var ErrMissingConversationID = errors.New("missing data.conversation_id")

// Event is a post-call webhook delivery.
type Event struct {
	Type           string    `json:"type"`
	EventTimestamp int64     `json:"event_timestamp"`
	Data           EventData `json:"data"`
}

// EventData is the conversation payload.
type EventData struct {
	AgentID        string   `json:"agent_id"`
	ConversationID string   `json:"conversation_id"`
	Status         string   `json:"status"`
	Transcript     []Turn   `json:"transcript"`
	Metadata       Metadata `json:"metadata"`
	Analysis       Analysis `json:"analysis"`
}

// Turn is one utterance of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Metadata holds call accounting.
type Metadata struct {
	CallDurationSecs int      `json:"call_duration_secs"`
	Cost             *float64 `json:"cost"`
}

// Analysis is the provider's own post-call evaluation.
type Analysis struct {
	CallSuccessful        string                          `json:"call_successful"`
	TranscriptSummary     string                          `json:"transcript_summary"`
	DataCollectionResults map[string]DataCollectionResult `json:"data_collection_results"`
}

// DataCollectionResult is one extracted field.
type DataCollectionResult struct {
	DataCollectionID string `json:"data_collection_id"`
	Value            any    `json:"value"`
	Rationale        string `json:"rationale"`
}

// Parse decodes a raw webhook body.
func Parse(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode webhook: %w", err)
	}
	if strings.TrimSpace(ev.Data.ConversationID) == "" {
		return Event{}, ErrMissingConversationID
	}
	return ev, nil
}

// Successful reports whether the provider judged the call successful.
func (a Analysis) Successful() bool {
	return a.CallSuccessful == "success"
}

// TranscriptText joins turns as "role: message" lines in original order.
func (d EventData) TranscriptText() string {
	lines := make([]string, len(d.Transcript))
	for i, turn := range d.Transcript {
		lines[i] = turn.Role + ": " + turn.Message
	}
	return strings.Join(lines, "\n")
}

// IsPostCall reports whether t names a post-call delivery. An empty type counts.
func IsPostCall(t string) bool {
	return t == "" || t == EventTypePostCallTranscription
}

// IsPostCall reports whether the event should be interpreted.
func (e Event) IsPostCall() bool {
	return IsPostCall(e.Type)
}

// PeekType returns the event type of body, or "" when it is not a JSON object.
func PeekType(body []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return ""
	}
	return head.Type
}
