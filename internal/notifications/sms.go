package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/followup"
)

const twilioAPIURL = "https://api.twilio.com"

// SMSConfig holds configuration for SMS alerts via Twilio
type SMSConfig struct {
	AccountSID   string   // Twilio Account SID
	AuthToken    string   // Twilio Auth Token
	SenderNumber string   // Twilio phone number to send from (E.164 format)
	Recipients   []string // HR phone numbers (E.164 format)
	BaseURL      string   // Optional, defaults to the public endpoint
}

// SMSClient sends HR alerts via Twilio Programmable Messaging
type SMSClient struct {
	accountSID   string
	authToken    string
	senderNumber string
	recipients   []string
	baseURL      string
	client       *http.Client
	logger       zerolog.Logger
}

// NewSMSClient creates a new SMS client. It returns nil when credentials,
// sender or recipients are missing.
func NewSMSClient(cfg SMSConfig, logger zerolog.Logger) *SMSClient {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.SenderNumber == "" {
		logger.Info().Msg("SMS: missing Twilio configuration, SMS alerts disabled")
		return nil
	}
	if len(cfg.Recipients) == 0 {
		logger.Info().Msg("SMS: no HR recipients, SMS alerts disabled")
		return nil
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioAPIURL
	}

	logger.Info().Str("sender", cfg.SenderNumber).Int("recipients", len(cfg.Recipients)).Msg("SMS: client initialized")
	return &SMSClient{
		accountSID:   cfg.AccountSID,
		authToken:    cfg.AuthToken,
		senderNumber: cfg.SenderNumber,
		recipients:   cfg.Recipients,
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// twilioMessageResponse represents a Twilio Messages API response
type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    int    `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SendSMS sends an SMS message to the specified phone number
func (c *SMSClient) SendSMS(ctx context.Context, to, body string) error {
	if c == nil {
		return nil
	}

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	data := url.Values{}
	data.Set("To", to)
	data.Set("From", c.senderNumber)
	data.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	var msgResp twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Twilio API error: %d - %s", msgResp.ErrorCode, msgResp.ErrorMessage)
	}

	c.logger.Info().Str("sid", msgResp.SID).Str("status", msgResp.Status).Msg("SMS: sent")
	return nil
}

// NotifyHumanFollowup implements followup.Alerter. Messages are sent in the background.
func (c *SMSClient) NotifyHumanFollowup(ctx context.Context, alert followup.HumanFollowupAlert) {
	if c == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	body := Title(alert) + ". " + Body(alert)
	go func() {
		for _, to := range c.recipients {
			if err := c.SendSMS(ctx, to, body); err != nil {
				c.logger.Warn().Err(err).Msg("SMS: failed to send alert")
			}
		}
	}()
}
