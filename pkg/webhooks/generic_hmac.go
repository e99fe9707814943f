package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const genericHMACSignatureHeader = "X-Signature"

type genericHMACVerifier struct{}

// NewGenericHMACVerifier checks a hex HMAC-SHA256 of the raw body carried in
// X-Signature, with or without a "sha256=" prefix.
func NewGenericHMACVerifier() Verifier {
	return genericHMACVerifier{}
}

func (genericHMACVerifier) Scheme() string { return SchemeHMACSHA256 }

func (genericHMACVerifier) Verify(headers http.Header, rawBody []byte, secret string) (VerificationResult, error) {
	res := VerificationResult{
		Scheme: SchemeHMACSHA256,
		Details: map[string]any{
			"signature_header_present": false,
			"signature_hex_decodable":  false,
			"used_header":              genericHMACSignatureHeader,
		},
	}
	if strings.TrimSpace(secret) == "" {
		return res, ErrNoSecret
	}

	sig := strings.TrimSpace(headers.Get(genericHMACSignatureHeader))
	if sig == "" {
		return res, nil
	}
	res.Details["signature_header_present"] = true
	if strings.HasPrefix(strings.ToLower(sig), "sha256=") {
		sig = sig[len("sha256="):]
	}

	providedSig, err := hex.DecodeString(sig)
	if err != nil {
		return res, nil
	}
	res.Details["signature_hex_decodable"] = true

	res.Valid = hmac.Equal(SignBody(secret, rawBody), providedSig)
	return res, nil
}

// SignBody returns the raw HMAC-SHA256 of body. Senders hex encode it.
func SignBody(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
