// Package idempotency replays the first response of a request carrying an
// Idempotency-Key header. A key is bound to the request it first arrived
// with; reusing it for a different request is an error, not a replay.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/altovisual/artist-management/services/signing/internal/store"
)

const Header = "Idempotency-Key"

var ErrKeyReused = errors.New("idempotency key was used for a different request")

type Store interface {
	GetIdempotencyRecord(ctx context.Context, key, endpoint string) (store.IdempotencyRecord, bool, error)
	SaveIdempotencyRecord(ctx context.Context, key, endpoint string, rec store.IdempotencyRecord) error
}

func KeyFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Fingerprint hashes the normalized fields that identify a request.
func Fingerprint(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Replay returns the stored response for key. It fails with ErrKeyReused when
// the stored fingerprint differs from requestHash.
func Replay(ctx context.Context, st Store, key, endpoint, requestHash string) (int, map[string]any, bool, error) {
	if key == "" {
		return 0, nil, false, nil
	}
	rec, found, err := st.GetIdempotencyRecord(ctx, key, endpoint)
	if err != nil {
		return 0, nil, false, err
	}
	if !found {
		return 0, nil, false, nil
	}
	if rec.RequestHash != "" && rec.RequestHash != requestHash {
		return 0, nil, false, ErrKeyReused
	}
	return rec.Status, rec.Body, true, nil
}

func Save(ctx context.Context, st Store, key, endpoint, requestHash string, status int, response map[string]any) error {
	if key == "" {
		return nil
	}
	return st.SaveIdempotencyRecord(ctx, key, endpoint, store.IdempotencyRecord{
		RequestHash: requestHash,
		Status:      status,
		Body:        response,
	})
}
