// Package voice talks to ElevenLabs Conversational AI: it creates a
// personalized agent per call and places outbound calls through it.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lukasbauer/apriori/internal/followup"
)

const (
	elevenLabsAPIURL = "https://api.elevenlabs.io"
	defaultVoiceID   = "21m00Tcm4TlvDq8ikWAM" // Rachel
	defaultLanguage  = "es"
)

var _ followup.VoiceAgents = (*Client)(nil)

// Config holds configuration for the ElevenLabs client.
type Config struct {
	APIKey        string
	PhoneNumberID string // agent_phone_number_id of the Twilio number imported into ElevenLabs
	VoiceID       string
	Language      string
	BaseURL       string
	MaxRetryDelay time.Duration // default 30s
	HTTPClient    *http.Client
	Templates     *Templates // default: embedded templates
}

// Client implements followup.VoiceAgents.
type Client struct {
	apiKey        string
	phoneNumberID string
	voiceID       string
	language      string
	baseURL       string
	maxRetry      time.Duration
	httpClient    *http.Client
	templates     *Templates
}

// NewClient creates a new ElevenLabs client.
func NewClient(cfg Config) (*Client, error) {
	templates := cfg.Templates
	if templates == nil {
		var err error
		if templates, err = LoadTemplates(); err != nil {
			return nil, err
		}
	}
	c := &Client{
		apiKey:        cfg.APIKey,
		phoneNumberID: cfg.PhoneNumberID,
		voiceID:       cfg.VoiceID,
		language:      cfg.Language,
		baseURL:       cfg.BaseURL,
		maxRetry:      cfg.MaxRetryDelay,
		httpClient:    cfg.HTTPClient,
		templates:     templates,
	}
	if c.voiceID == "" {
		c.voiceID = defaultVoiceID
	}
	if c.language == "" {
		c.language = defaultLanguage
	}
	if c.baseURL == "" {
		c.baseURL = elevenLabsAPIURL
	}
	if c.maxRetry == 0 {
		c.maxRetry = 30 * time.Second
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c, nil
}

// APIError is a non-2xx answer from ElevenLabs.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ElevenLabs API error: %s - %s", e.Status, e.Body)
}

type agentRequest struct {
	Name               string             `json:"name"`
	ConversationConfig conversationConfig `json:"conversation_config"`
	Analysis           agentAnalysis      `json:"analysis"`
}

type conversationConfig struct {
	Agent agentSettings `json:"agent"`
	TTS   ttsSettings   `json:"tts"`
}

type agentSettings struct {
	Prompt       promptSettings `json:"prompt"`
	FirstMessage string         `json:"first_message"`
	Language     string         `json:"language"`
}

type promptSettings struct {
	Prompt string `json:"prompt"`
}

type ttsSettings struct {
	VoiceID string `json:"voice_id"`
}

type agentAnalysis struct {
	EvaluationCriteria []Criterion `json:"evaluation_criteria"`
	DataCollection     []DataField `json:"data_collection"`
}

type agentResponse struct {
	AgentID string `json:"agent_id"`
}

type outboundRequest struct {
	AgentID            string          `json:"agent_id"`
	AgentPhoneNumberID string          `json:"agent_phone_number_id"`
	ToNumber           string          `json:"to_number"`
	InitiationData     *initiationData `json:"conversation_initiation_client_data,omitempty"`
}

type initiationData struct {
	DynamicVariables map[string]string `json:"dynamic_variables"`
}

type outboundResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	CallSID        string `json:"callSid"`
}

// CreateAgent renders the call type's template for the employee and creates an agent.
func (c *Client) CreateAgent(ctx context.Context, req followup.AgentRequest) (string, error) {
	cfg, err := c.templates.Render(req)
	if err != nil {
		return "", err
	}

	payload := agentRequest{
		Name: cfg.Name,
		ConversationConfig: conversationConfig{
			Agent: agentSettings{
				Prompt:       promptSettings{Prompt: cfg.Prompt},
				FirstMessage: cfg.FirstMessage,
				Language:     c.language,
			},
			TTS: ttsSettings{VoiceID: c.voiceID},
		},
		Analysis: agentAnalysis{
			EvaluationCriteria: cfg.EvaluationCriteria,
			DataCollection:     cfg.DataCollection,
		},
	}

	var resp agentResponse
	if err := c.post(ctx, "/v1/convai/agents/create", payload, &resp, true); err != nil {
		return "", fmt.Errorf("failed to create agent: %w", err)
	}
	if resp.AgentID == "" {
		return "", errors.New("failed to create agent: response has no agent_id")
	}
	return resp.AgentID, nil
}

// StartOutboundCall dials the employee through agentID and returns the conversation id.
// Only rate-limit answers are retried so a call is never placed twice.
func (c *Client) StartOutboundCall(ctx context.Context, req followup.OutboundCallRequest) (string, error) {
	if req.PhoneNumber == "" {
		return "", errors.New("employee has no phone number")
	}
	payload := outboundRequest{
		AgentID:            req.AgentID,
		AgentPhoneNumberID: c.phoneNumberID,
		ToNumber:           req.PhoneNumber,
	}
	if len(req.DynamicVariables) > 0 {
		payload.InitiationData = &initiationData{DynamicVariables: req.DynamicVariables}
	}

	var resp outboundResponse
	if err := c.post(ctx, "/v1/convai/twilio/outbound-call", payload, &resp, false); err != nil {
		return "", fmt.Errorf("failed to start outbound call: %w", err)
	}
	if resp.ConversationID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "response has no conversation_id"
		}
		return "", fmt.Errorf("failed to start outbound call: %s", msg)
	}
	return resp.ConversationID, nil
}

// post sends payload and decodes the answer into out. 429 is always retried;
// 5xx and transport errors only when retryServerErrors is set.
func (c *Client) post(ctx context.Context, path string, payload, out any, retryServerErrors bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	op := func() error {
		err := c.send(ctx, path, body, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
			return err
		case errors.As(err, &apiErr) && apiErr.StatusCode >= 500 && retryServerErrors:
			return err
		case !errors.As(err, &apiErr) && retryServerErrors:
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxRetry
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func (c *Client) send(ctx context.Context, path string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(respBody)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
