// Package signature verifies HMAC-SHA256 webhook signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
)

var (
	ErrMissingSecret    = errors.New("webhook secret is not configured")
	ErrMissingSignature = errors.New("signature header is missing")
	ErrEmptyBody        = errors.New("request body is empty")
	ErrMalformed        = errors.New("signature is not valid hex")
	ErrMismatch         = errors.New("signature mismatch")
)

// Sign returns the hex-encoded HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Check validates providedHex against the HMAC of rawBody. Inputs are
// checked for presence before any comparison is attempted, and the
// comparison itself is constant-time.
func Check(secret, rawBody []byte, providedHex string) error {
	if len(secret) == 0 {
		return ErrMissingSecret
	}
	providedHex = strings.TrimSpace(providedHex)
	if providedHex == "" {
		return ErrMissingSignature
	}
	if len(rawBody) == 0 {
		return ErrEmptyBody
	}

	provided, err := hex.DecodeString(providedHex)
	if err != nil {
		return ErrMalformed
	}

	h := hmac.New(sha256.New, secret)
	h.Write(rawBody)
	if !hmac.Equal(h.Sum(nil), provided) {
		return ErrMismatch
	}
	return nil
}

// Verify is Check reduced to a boolean.
func Verify(secret, rawBody []byte, providedHex string) bool {
	return Check(secret, rawBody, providedHex) == nil
}
