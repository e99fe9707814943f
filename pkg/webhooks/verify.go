package webhooks

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	SchemeBearer     = "bearer"
	SchemeHMACSHA256 = "hmac-sha256"
)

// ErrNoSecret is returned when a verifier is asked to check a request without
// a configured secret. Callers must treat it as a rejection.
var ErrNoSecret = errors.New("webhook verifier secret is empty")

type VerificationResult struct {
	Valid   bool           `json:"valid"`
	Scheme  string         `json:"scheme"`
	Details map[string]any `json:"details"`
}

// Verifier authenticates an inbound webhook delivery from its headers and raw
// body. It never interprets the body.
type Verifier interface {
	Scheme() string
	Verify(headers http.Header, rawBody []byte, secret string) (VerificationResult, error)
}

func NewVerifier(scheme string) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", SchemeBearer:
		return NewBearerVerifier(), nil
	case SchemeHMACSHA256:
		return NewGenericHMACVerifier(), nil
	default:
		return nil, fmt.Errorf("unknown webhook auth scheme %q", scheme)
	}
}

func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}
