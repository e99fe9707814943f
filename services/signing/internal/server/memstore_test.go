package server

import (
	"context"
	"sync"
	"time"

	"github.com/altovisual/artist-management/services/signing/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
)

// memStore is an in-memory Store with the same conflict rules as the schema.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	contracts   map[int64]store.Contract
	signatures  []*store.Signature
	idempotency map[string]store.IdempotencyRecord
}

func newMemStore() *memStore {
	return &memStore{
		contracts:   map[int64]store.Contract{},
		idempotency: map[string]store.IdempotencyRecord{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateContract(ctx context.Context, in store.NewContract) (store.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c := store.Contract{ID: m.id(), TemplateID: in.TemplateID, ProjectID: in.ProjectID, Status: store.ContractDraft, CreatedAt: now, UpdatedAt: now}
	m.contracts[c.ID] = c
	return c, nil
}

func (m *memStore) GetContract(ctx context.Context, id int64) (store.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return store.Contract{}, store.ErrContractNotFound
	}
	return c, nil
}

func (m *memStore) ListSignatures(ctx context.Context, contractID int64) ([]store.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Signature{}
	for _, s := range m.signatures {
		if s.ContractID == contractID && s.DeletedAt == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) CreateSignature(ctx context.Context, in store.NewSignature) (store.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[in.ContractID]; !ok {
		return store.Signature{}, &pgconn.PgError{Code: "23503"}
	}
	for _, s := range m.signatures {
		if s.DeletedAt != nil {
			continue
		}
		if (s.ContractID == in.ContractID && s.SignerEmail == in.SignerEmail) || s.SignatureRequestID == in.SignatureRequestID {
			return store.Signature{}, &pgconn.PgError{Code: "23505"}
		}
	}
	now := time.Now().UTC()
	s := &store.Signature{
		ID:                 m.id(),
		ContractID:         in.ContractID,
		SignerEmail:        in.SignerEmail,
		SignatureRequestID: in.SignatureRequestID,
		Status:             store.SignaturePending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.signatures = append(m.signatures, s)
	return *s, nil
}

func (m *memStore) ApplySignatureStatus(ctx context.Context, requestID string, target store.SignatureStatus, allowedFrom []store.SignatureStatus, at time.Time) (store.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res store.ApplyResult
	seen := map[int64]bool{}
	for _, s := range m.signatures {
		if s.SignatureRequestID != requestID || s.DeletedAt != nil {
			continue
		}
		res.Matched++
		if !seen[s.ContractID] {
			seen[s.ContractID] = true
			res.ContractIDs = append(res.ContractIDs, s.ContractID)
		}
		for _, from := range allowedFrom {
			if s.Status != from {
				continue
			}
			s.Status = target
			s.UpdatedAt = at
			if target == store.SignatureSigned && s.SignedAt == nil {
				ts := at
				s.SignedAt = &ts
			}
			res.Updated++
			break
		}
	}
	if res.ContractIDs == nil {
		res.ContractIDs = []int64{}
	}
	return res, nil
}

func (m *memStore) ArchiveSignature(ctx context.Context, id int64) (int64, error) {
	return m.touch(id, func(s *store.Signature) { s.Archived = true })
}

func (m *memStore) SoftDeleteSignature(ctx context.Context, id int64) (int64, error) {
	return m.touch(id, func(s *store.Signature) {
		now := time.Now().UTC()
		s.DeletedAt = &now
	})
}

func (m *memStore) touch(id int64, fn func(*store.Signature)) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.signatures {
		if s.ID == id && s.DeletedAt == nil {
			fn(s)
			return s.ContractID, nil
		}
	}
	return 0, store.ErrSignatureNotFound
}

func (m *memStore) GetIdempotencyRecord(ctx context.Context, key, endpoint string) (store.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idempotency[endpoint+"|"+key]
	return rec, ok, nil
}

func (m *memStore) SaveIdempotencyRecord(ctx context.Context, key, endpoint string, rec store.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idempotency[endpoint+"|"+key]; !ok {
		m.idempotency[endpoint+"|"+key] = rec
	}
	return nil
}
