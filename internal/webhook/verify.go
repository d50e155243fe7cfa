// Package webhook authenticates and decodes post-call deliveries from the
// voice-agent provider.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "ElevenLabs-Signature"

// ReplayTolerance bounds the distance between the signed timestamp and now.
const ReplayTolerance = 1800 * time.Second

// Verifier checks webhook signatures. With no secret configured every
// delivery is accepted; callers should warn about that at startup.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return NewVerifierWithClock(secret, time.Now)
}

// NewVerifierWithClock is NewVerifier with an injectable clock.
func NewVerifierWithClock(secret string, now func() time.Time) *Verifier {
	return &Verifier{secret: []byte(secret), now: now}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify reports whether header is a valid, fresh signature of rawBody.
func (v *Verifier) Verify(rawBody []byte, header string) bool {
	if !v.Enabled() {
		return true
	}

	ts, received, ok := parseHeader(header)
	if !ok {
		return false
	}

	age := v.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(ReplayTolerance/time.Second) {
		return false
	}

	expected := computeHash(v.secret, strconv.FormatInt(ts, 10), rawBody)
	return hmac.Equal([]byte(strings.ToLower(received)), []byte(expected))
}

// parseHeader reads the timestamp from the first pair and the hash from the second.
func parseHeader(header string) (int64, string, bool) {
	parts := strings.Split(header, ",")
	if len(parts) < 2 {
		return 0, "", false
	}

	tsValue, ok := pairValue(parts[0])
	if !ok {
		return 0, "", false
	}
	ts, err := strconv.ParseInt(tsValue, 10, 64)
	if err != nil {
		return 0, "", false
	}

	hash, ok := pairValue(parts[1])
	if !ok {
		return 0, "", false
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return 0, "", false
	}
	return ts, hash, true
}

func pairValue(pair string) (string, bool) {
	_, value, found := strings.Cut(strings.TrimSpace(pair), "=")
	if !found || value == "" {
		return "", false
	}
	return value, true
}

func computeHash(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign builds a signature header for body at ts.
func Sign(secret string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, computeHash([]byte(secret), t, body))
}
