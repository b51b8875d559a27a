package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Signature verification errors
var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrBadSignature     = errors.New("malformed signature header")
	ErrInvalidSignature = errors.New("signature mismatch")
)

// VerifySignature checks a Stripe-Signature header of the form
// "t=<timestamp>,v1=<hex hmac>" against the raw request body. The signed
// payload is "{timestamp}.{body}" and the comparison is constant-time.
func VerifySignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" {
		return ErrMissingSignature
	}

	var timestamp, v1 string
	for _, part := range strings.Split(sigHeader, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			timestamp = part[2:]
		case strings.HasPrefix(part, "v1="):
			v1 = part[3:]
		}
	}
	if timestamp == "" || v1 == "" {
		return ErrBadSignature
	}

	expected, err := hex.DecodeString(v1)
	if err != nil {
		return ErrBadSignature
	}

	if !hmac.Equal(expected, computeSignature(payload, timestamp, secret)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignHeader produces a valid Stripe-Signature header for the payload.
// Used by tests to exercise the webhook endpoint.
func SignHeader(payload []byte, timestamp, secret string) string {
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(computeSignature(payload, timestamp, secret)))
}

func computeSignature(payload []byte, timestamp, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
