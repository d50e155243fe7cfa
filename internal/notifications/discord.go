package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/followup"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     zerolog.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger zerolog.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := d.post(ctx, msg); err != nil {
			d.logger.Warn().Err(err).Msg("Discord: failed to send webhook")
		}
	}()
}

func (d *Discord) post(ctx context.Context, msg discordMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyHumanFollowup implements followup.Alerter.
func (d *Discord) NotifyHumanFollowup(ctx context.Context, alert followup.HumanFollowupAlert) {
	d.send(ctx, humanFollowupMessage(alert, time.Now()))
}

func humanFollowupMessage(alert followup.HumanFollowupAlert, now time.Time) discordMessage {
	color := 0xFFA500 // Orange
	content := ""
	if alert.RetentionRisk == followup.RiskHigh {
		color = 0xFF0000 // Red
		content = "@here"
	}

	fields := []embedField{
		{Name: "Empleado", Value: fmt.Sprintf("`%s`", alert.EmployeeID), Inline: true},
		{Name: "Tipo de llamada", Value: string(alert.CallType), Inline: true},
		{Name: "Riesgo", Value: riskLabel(alert.RetentionRisk), Inline: true},
	}
	if alert.Department != "" {
		fields = append(fields, embedField{Name: "Departamento", Value: alert.Department, Inline: true})
	}
	if len(alert.Concerns) > 0 {
		fields = append(fields, embedField{Name: "Preocupaciones", Value: strings.Join(alert.Concerns, "\n")})
	}

	return discordMessage{
		Content: content,
		Embeds: []discordEmbed{{
			Title:       Title(alert),
			Description: Body(alert),
			Color:       color,
			Fields:      fields,
			Timestamp:   now.UTC().Format(time.RFC3339),
		}},
	}
}
