package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRecord is the first response sent for an idempotency key.
// RequestHash fingerprints the request that produced it; rows written before
// fingerprints existed carry an empty hash.
type IdempotencyRecord struct {
	RequestHash string
	Status      int
	Body        map[string]any
}

func (s *Store) GetIdempotencyRecord(ctx context.Context, key, endpoint string) (IdempotencyRecord, bool, error) {
	var (
		rec IdempotencyRecord
		raw []byte
	)
	err := s.DB.QueryRow(ctx, `
SELECT request_hash,response_status,response_body
FROM idempotency_records
WHERE idempotency_key=$1 AND endpoint=$2
`, key, endpoint).Scan(&rec.RequestHash, &rec.Status, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdempotencyRecord{}, false, nil
		}
		return IdempotencyRecord{}, false, err
	}
	if err := json.Unmarshal(raw, &rec.Body); err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) SaveIdempotencyRecord(ctx context.Context, key, endpoint string, rec IdempotencyRecord) error {
	b, err := json.Marshal(rec.Body)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO idempotency_records(idempotency_key,endpoint,request_hash,response_status,response_body)
VALUES($1,$2,$3,$4,$5::jsonb)
ON CONFLICT (idempotency_key,endpoint) DO NOTHING
`, key, endpoint, rec.RequestHash, rec.Status, string(b))
	return err
}
