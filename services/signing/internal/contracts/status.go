package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/altovisual/artist-management/services/signing/internal/store"
)

type SignatureView struct {
	ID                 int64                 `json:"id"`
	SignerEmail        string                `json:"signer_email"`
	Status             store.SignatureStatus `json:"status"`
	SignedAt           *time.Time            `json:"signed_at"`
	SignatureRequestID string                `json:"signature_request_id"`
	Archived           bool                  `json:"archived"`
}

// StatusView is a contract joined with its signatures. Status is derived from
// the signatures; StoredStatus is the column as written.
type StatusView struct {
	ID           int64                `json:"id"`
	Status       store.ContractStatus `json:"status"`
	StoredStatus store.ContractStatus `json:"stored_status"`
	TemplateID   string               `json:"template_id"`
	ProjectID    string               `json:"project_id"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Signatures   []SignatureView      `json:"signatures"`
}

type Reader interface {
	GetContract(ctx context.Context, id int64) (store.Contract, error)
	ListSignatures(ctx context.Context, contractID int64) ([]store.Signature, error)
}

// Aggregate loads a contract and its signatures. It returns
// store.ErrContractNotFound unwrapped so callers can map it to 404.
func Aggregate(ctx context.Context, r Reader, id int64) (StatusView, error) {
	c, err := r.GetContract(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	sigs, err := r.ListSignatures(ctx, id)
	if err != nil {
		return StatusView{}, fmt.Errorf("list signatures for contract %d: %w", id, err)
	}

	view := StatusView{
		ID:           c.ID,
		Status:       DeriveStatus(c.Status, sigs),
		StoredStatus: c.Status,
		TemplateID:   c.TemplateID,
		ProjectID:    c.ProjectID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Signatures:   make([]SignatureView, 0, len(sigs)),
	}
	for _, s := range sigs {
		view.Signatures = append(view.Signatures, SignatureView{
			ID:                 s.ID,
			SignerEmail:        s.SignerEmail,
			Status:             s.Status,
			SignedAt:           s.SignedAt,
			SignatureRequestID: s.SignatureRequestID,
			Archived:           s.Archived,
		})
	}
	return view, nil
}

// DeriveStatus computes a contract's status from its signatures. Archived
// signatures do not count. An archived contract stays archived.
func DeriveStatus(stored store.ContractStatus, sigs []store.Signature) store.ContractStatus {
	if stored == store.ContractArchived {
		return store.ContractArchived
	}

	var total, signed, expired, sent int
	for _, s := range sigs {
		if s.Archived || s.DeletedAt != nil {
			continue
		}
		total++
		switch s.Status {
		case store.SignatureSigned:
			signed++
		case store.SignatureExpired:
			expired++
		case store.SignatureSent:
			sent++
		}
	}

	switch {
	case total == 0:
		return stored
	case signed == total:
		return store.ContractSigned
	case expired > 0:
		return store.ContractExpired
	case sent > 0 || signed > 0:
		return store.ContractSent
	default:
		return stored
	}
}
