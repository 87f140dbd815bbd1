package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// Verifier validates a raw request body against its signature header.
type Verifier interface {
	Verify(ctx context.Context, body []byte, signature string) error
}

// BodyHMACVerifier checks a base64-encoded HMAC-SHA256 of the raw body,
// compared in constant time. An empty Secret disables verification
// entirely; with a secret configured, an empty header is always invalid.
type BodyHMACVerifier struct {
	Secret string
}

func (v BodyHMACVerifier) Enabled() bool {
	return strings.TrimSpace(v.Secret) != ""
}

func (v BodyHMACVerifier) Verify(_ context.Context, body []byte, signature string) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return nil
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature header is required")
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: decode base64 signature: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

var _ Verifier = BodyHMACVerifier{}
