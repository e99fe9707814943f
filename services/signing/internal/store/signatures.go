package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type SignatureStatus string

const (
	SignaturePending SignatureStatus = "pending"
	SignatureSent    SignatureStatus = "sent"
	SignatureSigned  SignatureStatus = "signed"
	SignatureExpired SignatureStatus = "expired"
)

type Signature struct {
	ID                 int64           `json:"id"`
	ContractID         int64           `json:"contract_id"`
	SignerEmail        string          `json:"signer_email"`
	SignatureRequestID string          `json:"signature_request_id"`
	Status             SignatureStatus `json:"status"`
	SignedAt           *time.Time      `json:"signed_at"`
	Archived           bool            `json:"archived"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type NewSignature struct {
	ContractID         int64
	SignerEmail        string
	SignatureRequestID string
}

// ApplyResult reports what a status update did. Matched counts active rows
// carrying the correlation id; Updated counts the rows whose status changed.
type ApplyResult struct {
	Matched     int64
	Updated     int64
	ContractIDs []int64
}

const signatureColumns = `id,contract_id,signer_email,signature_request_id,status,signed_at,archived,deleted_at,created_at,updated_at`

func scanSignature(row pgx.Row) (Signature, error) {
	var sig Signature
	err := row.Scan(&sig.ID, &sig.ContractID, &sig.SignerEmail, &sig.SignatureRequestID, &sig.Status,
		&sig.SignedAt, &sig.Archived, &sig.DeletedAt, &sig.CreatedAt, &sig.UpdatedAt)
	return sig, err
}

func (s *Store) CreateSignature(ctx context.Context, in NewSignature) (Signature, error) {
	sig, err := scanSignature(s.DB.QueryRow(ctx, `
INSERT INTO signatures(contract_id,signer_email,signature_request_id,status)
VALUES($1,$2,$3,'pending')
RETURNING `+signatureColumns,
		in.ContractID, strings.TrimSpace(in.SignerEmail), in.SignatureRequestID))
	if err != nil {
		return Signature{}, fmt.Errorf("insert signature: %w", err)
	}
	return sig, nil
}

// ListSignatures returns the active signatures of a contract in creation
// order. The result is never nil.
func (s *Store) ListSignatures(ctx context.Context, contractID int64) ([]Signature, error) {
	rows, err := s.DB.Query(ctx, `
SELECT `+signatureColumns+`
FROM signatures
WHERE contract_id=$1
  AND deleted_at IS NULL
ORDER BY created_at ASC, id ASC
`, contractID)
	if err != nil {
		return nil, fmt.Errorf("select signatures: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Signature, error) {
		return scanSignature(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan signatures: %w", err)
	}
	if out == nil {
		out = []Signature{}
	}
	return out, nil
}

// ApplySignatureStatus moves every active signature with the given
// correlation id to target, but only rows currently in one of allowedFrom.
// signed_at is stamped once, the first time a row becomes signed.
func (s *Store) ApplySignatureStatus(ctx context.Context, requestID string, target SignatureStatus, allowedFrom []SignatureStatus, at time.Time) (ApplyResult, error) {
	from := make([]string, len(allowedFrom))
	for i, st := range allowedFrom {
		from[i] = string(st)
	}

	var res ApplyResult
	err := s.DB.QueryRow(ctx, `
WITH matched AS (
  SELECT id, contract_id
  FROM signatures
  WHERE signature_request_id=$1
    AND deleted_at IS NULL
), updated AS (
  UPDATE signatures s
  SET status=$2::text,
      signed_at=CASE WHEN $2::text='signed' THEN COALESCE(s.signed_at,$4) ELSE s.signed_at END,
      updated_at=$4
  FROM matched m
  WHERE s.id=m.id
    AND s.status=ANY($3::text[])
  RETURNING s.id
)
SELECT
  (SELECT count(*) FROM matched),
  (SELECT count(*) FROM updated),
  COALESCE((SELECT array_agg(DISTINCT contract_id) FROM matched), '{}'::bigint[])
`, requestID, string(target), from, at.UTC()).Scan(&res.Matched, &res.Updated, &res.ContractIDs)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("apply signature status: %w", err)
	}
	return res, nil
}

// ArchiveSignature flags an active signature as archived and returns its
// contract id.
func (s *Store) ArchiveSignature(ctx context.Context, id int64) (int64, error) {
	return s.touchSignature(ctx, `
UPDATE signatures
SET archived=true, updated_at=now()
WHERE id=$1 AND deleted_at IS NULL
RETURNING contract_id
`, id)
}

// SoftDeleteSignature stamps deleted_at; the row is kept for audit.
func (s *Store) SoftDeleteSignature(ctx context.Context, id int64) (int64, error) {
	return s.touchSignature(ctx, `
UPDATE signatures
SET deleted_at=now(), updated_at=now()
WHERE id=$1 AND deleted_at IS NULL
RETURNING contract_id
`, id)
}

func (s *Store) touchSignature(ctx context.Context, sql string, id int64) (int64, error) {
	var contractID int64
	if err := s.DB.QueryRow(ctx, sql, id).Scan(&contractID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSignatureNotFound
		}
		return 0, fmt.Errorf("update signature %d: %w", id, err)
	}
	return contractID, nil
}
