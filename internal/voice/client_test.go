package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lukasbauer/apriori/internal/followup"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:        "xi-test",
		PhoneNumberID: "phnum_1",
		BaseURL:       srv.URL,
		MaxRetryDelay: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.voiceID != defaultVoiceID {
		t.Errorf("voiceID = %q, want %q", c.voiceID, defaultVoiceID)
	}
	if c.language != "es" {
		t.Errorf("language = %q, want es", c.language)
	}
	if c.baseURL != elevenLabsAPIURL {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}

func TestCreateAgent(t *testing.T) {
	var got agentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/agents/create" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "xi-test" {
			t.Errorf("xi-api-key = %q", r.Header.Get("xi-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"agent_id":"agent_123"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).CreateAgent(context.Background(), followup.AgentRequest{
		CallType:         followup.CallTypeRetentionCheck,
		Name:             "Lucía",
		Department:       "Ventas",
		TenureMonths:     2,
		PreviousConcerns: []string{"turnos nocturnos"},
	})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if id != "agent_123" {
		t.Errorf("agent id = %q", id)
	}

	if got.Name != "Consulta de Bienestar - Lucía" {
		t.Errorf("name = %q", got.Name)
	}
	if !strings.HasPrefix(got.ConversationConfig.Agent.FirstMessage, "Hola Lucía,") {
		t.Errorf("first message = %q", got.ConversationConfig.Agent.FirstMessage)
	}
	prompt := got.ConversationConfig.Agent.Prompt.Prompt
	for _, want := range []string{"Departamento: Ventas", "Tiempo en la empresa: 2 meses", "Manager: N/A", "- turnos nocturnos"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if got.ConversationConfig.Agent.Language != "es" {
		t.Errorf("language = %q", got.ConversationConfig.Agent.Language)
	}
	if got.ConversationConfig.TTS.VoiceID != defaultVoiceID {
		t.Errorf("voice = %q", got.ConversationConfig.TTS.VoiceID)
	}
	if len(got.Analysis.DataCollection) != 3 || got.Analysis.DataCollection[2].Identifier != "retention_risk" {
		t.Errorf("data collection = %+v", got.Analysis.DataCollection)
	}
}

func TestCreateAgentRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"agent_id":"agent_2"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).CreateAgent(context.Background(), followup.AgentRequest{CallType: followup.CallTypeExitInterview, Name: "Ana"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if id != "agent_2" || calls.Load() != 2 {
		t.Errorf("id = %q after %d calls", id, calls.Load())
	}
}

func TestStartOutboundCall(t *testing.T) {
	var got outboundRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/twilio/outbound-call" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"conversation_id":"conv_42","callSid":"CA1"}`))
	}))
	defer srv.Close()

	conv, err := newTestClient(t, srv).StartOutboundCall(context.Background(), followup.OutboundCallRequest{
		AgentID:          "agent_1",
		PhoneNumber:      "+34600111222",
		DynamicVariables: map[string]string{"employee_name": "Lucía"},
	})
	if err != nil {
		t.Fatalf("StartOutboundCall: %v", err)
	}
	if conv != "conv_42" {
		t.Errorf("conversation id = %q", conv)
	}
	if got.AgentPhoneNumberID != "phnum_1" || got.ToNumber != "+34600111222" || got.AgentID != "agent_1" {
		t.Errorf("request = %+v", got)
	}
	if got.InitiationData == nil || got.InitiationData.DynamicVariables["employee_name"] != "Lucía" {
		t.Errorf("dynamic variables = %+v", got.InitiationData)
	}
}

func TestStartOutboundCallDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`boom`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).StartOutboundCall(context.Background(), followup.OutboundCallRequest{AgentID: "a", PhoneNumber: "+1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("err = %v, want APIError 500", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestStartOutboundCallRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"conversation_id":"conv_1"}`))
	}))
	defer srv.Close()

	conv, err := newTestClient(t, srv).StartOutboundCall(context.Background(), followup.OutboundCallRequest{AgentID: "a", PhoneNumber: "+1"})
	if err != nil || conv != "conv_1" {
		t.Fatalf("conv = %q, err = %v", conv, err)
	}
}

func TestStartOutboundCallWithoutConversationID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"number not verified"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).StartOutboundCall(context.Background(), followup.OutboundCallRequest{AgentID: "a", PhoneNumber: "+1"})
	if err == nil || !strings.Contains(err.Error(), "number not verified") {
		t.Fatalf("err = %v", err)
	}
}

func TestStartOutboundCallRequiresPhone(t *testing.T) {
	c, _ := NewClient(Config{APIKey: "k"})
	if _, err := c.StartOutboundCall(context.Background(), followup.OutboundCallRequest{AgentID: "a"}); err == nil {
		t.Fatal("expected error for empty phone number")
	}
}
