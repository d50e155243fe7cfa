package store

import (
	"context"
	"fmt"
	"time"
)

// HRDevice is a phone of an HR team member that receives follow-up pushes.
type HRDevice struct {
	Token     string    `json:"token"`
	Owner     string    `json:"owner"`
	Platform  string    `json:"platform"` // "ios"
	CreatedAt time.Time `json:"created_at"`
}

// RegisterHRDevice registers or refreshes a device push token.
func (s *Store) RegisterHRDevice(ctx context.Context, token, owner, platform string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO hr_device_tokens (token, owner, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET
			owner = EXCLUDED.owner,
			platform = EXCLUDED.platform,
			created_at = NOW()
	`, token, owner, platform)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// UnregisterHRDevice removes a device push token.
func (s *Store) UnregisterHRDevice(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM hr_device_tokens WHERE token = $1
	`, token)
	return err
}

// ListHRDevices returns every registered device, newest first.
func (s *Store) ListHRDevices(ctx context.Context) ([]HRDevice, error) {
	rows, err := s.db.Query(ctx, `
		SELECT token, owner, platform, created_at
		FROM hr_device_tokens
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []HRDevice
	for rows.Next() {
		var d HRDevice
		if err := rows.Scan(&d.Token, &d.Owner, &d.Platform, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// HRDeviceTokens implements notifications.TokenSource.
func (s *Store) HRDeviceTokens(ctx context.Context) ([]string, error) {
	devices, err := s.ListHRDevices(ctx)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = d.Token
	}
	return tokens, nil
}
