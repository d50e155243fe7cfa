package notifications

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/lukasbauer/apriori/internal/followup"
)

// APNsConfig holds configuration for Apple Push Notification service
type APNsConfig struct {
	KeyPath    string // Path to .p8 key file
	KeyID      string // Key ID from Apple Developer Portal
	TeamID     string // Team ID from Apple Developer Portal
	BundleID   string // HR app bundle ID
	Production bool   // Use production environment
}

type pusher interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// TokenSource lists device tokens registered after startup.
type TokenSource interface {
	HRDeviceTokens(ctx context.Context) ([]string, error)
}

// APNsClient sends HR alerts to the configured devices plus any registered
// through its TokenSource.
type APNsClient struct {
	client   pusher
	bundleID string
	tokens   []string
	source   TokenSource
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewAPNsClient creates a new APNs client. It returns nil, nil when the
// configuration is incomplete. deviceTokens may be empty when devices are
// registered later through a TokenSource.
func NewAPNsClient(cfg APNsConfig, deviceTokens []string, logger zerolog.Logger) (*APNsClient, error) {
	if cfg.KeyPath == "" || cfg.KeyID == "" || cfg.TeamID == "" || cfg.BundleID == "" {
		logger.Info().Msg("APNs: missing configuration, push notifications disabled")
		return nil, nil
	}
	if len(deviceTokens) == 0 {
		logger.Info().Msg("APNs: no static HR device tokens, relying on registered devices")
	}

	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs key file: %w", err)
	}
	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode APNs key PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs key: %w", err)
	}
	ecdsaKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("APNs key is not an ECDSA private key")
	}

	authToken := &token.Token{
		AuthKey: ecdsaKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	var client *apns2.Client
	if cfg.Production {
		client = apns2.NewTokenClient(authToken).Production()
	} else {
		client = apns2.NewTokenClient(authToken).Development()
	}

	logger.Info().Bool("production", cfg.Production).Str("bundle", cfg.BundleID).Int("devices", len(deviceTokens)).Msg("APNs: client initialized")
	return &APNsClient{client: client, bundleID: cfg.BundleID, tokens: deviceTokens, logger: logger}, nil
}

// WithTokenSource makes every alert also reach the devices src lists.
func (c *APNsClient) WithTokenSource(src TokenSource) *APNsClient {
	if c != nil {
		c.source = src
	}
	return c
}

// recipients merges static and registered tokens, static first.
func (c *APNsClient) recipients(ctx context.Context) []string {
	out := append([]string(nil), c.tokens...)
	if c.source == nil {
		return out
	}
	registered, err := c.source.HRDeviceTokens(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("APNs: failed to load registered devices")
		return out
	}
	seen := make(map[string]bool, len(out))
	for _, t := range out {
		seen[t] = true
	}
	for _, t := range registered {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// NotifyHumanFollowup implements followup.Alerter. Pushes are sent in the background.
func (c *APNsClient) NotifyHumanFollowup(ctx context.Context, alert followup.HumanFollowupAlert) {
	if c == nil || c.client == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		for _, t := range c.recipients(ctx) {
			if err := c.SendAlert(t, alert); err != nil {
				c.logger.Warn().Err(err).Str("device", shortToken(t)).Msg("APNs: failed to push alert")
			}
		}
	}()
}

// SendAlert pushes one alert to deviceToken.
func (c *APNsClient) SendAlert(deviceToken string, alert followup.HumanFollowupAlert) error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := payload.NewPayload().
		AlertTitle(Title(alert)).
		AlertBody(Body(alert)).
		Sound("default").
		Custom("notification_type", "human_followup").
		Custom("call_id", alert.CallID).
		Custom("employee_id", alert.EmployeeID).
		Custom("retention_risk", string(alert.RetentionRisk))

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       c.bundleID,
		Payload:     p,
		Expiration:  time.Now().Add(24 * time.Hour),
		Priority:    apns2.PriorityHigh,
	}

	res, err := c.client.Push(notification)
	if err != nil {
		return err
	}
	if res.StatusCode != 200 {
		return fmt.Errorf("APNs rejected notification: %s", res.Reason)
	}

	c.logger.Info().Str("device", shortToken(deviceToken)).Int64("call_id", alert.CallID).Msg("APNs: alert sent")
	return nil
}

func shortToken(t string) string {
	if len(t) <= 16 {
		return t
	}
	return t[:16] + "..."
}
