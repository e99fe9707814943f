package webhooks

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type bearerVerifier struct{}

// NewBearerVerifier checks "Authorization: Bearer <secret>" for an exact match
// against the shared secret.
func NewBearerVerifier() Verifier {
	return bearerVerifier{}
}

func (bearerVerifier) Scheme() string { return SchemeBearer }

func (bearerVerifier) Verify(headers http.Header, _ []byte, secret string) (VerificationResult, error) {
	res := VerificationResult{
		Scheme: SchemeBearer,
		Details: map[string]any{
			"authorization_header_present": false,
		},
	}
	if secret == "" {
		return res, ErrNoSecret
	}
	header := headers.Get("Authorization")
	if header == "" {
		return res, nil
	}
	res.Details["authorization_header_present"] = true

	token, ok := ParseBearerToken(header)
	if !ok {
		return res, nil
	}
	res.Valid = subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
	return res, nil
}

// ParseBearerToken extracts the token of a "Bearer <token>" header value. The
// token itself is not trimmed beyond the single separating space.
func ParseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}
