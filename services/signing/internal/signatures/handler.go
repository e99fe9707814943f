package signatures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/altovisual/artist-management/pkg/httpx"
	"github.com/altovisual/artist-management/services/signing/internal/cache"
	"github.com/altovisual/artist-management/services/signing/internal/contracts"
	"github.com/altovisual/artist-management/services/signing/internal/idempotency"
	"github.com/altovisual/artist-management/services/signing/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const createEndpoint = "POST /signatures"

type SignatureStore interface {
	idempotency.Store
	GetContract(ctx context.Context, id int64) (store.Contract, error)
	CreateSignature(ctx context.Context, in store.NewSignature) (store.Signature, error)
	ArchiveSignature(ctx context.Context, id int64) (int64, error)
	SoftDeleteSignature(ctx context.Context, id int64) (int64, error)
}

// RequestIssuer obtains the correlation id for a new signature obligation.
type RequestIssuer interface {
	CreateSignatureRequest(ctx context.Context, contractID int64, signerEmail string) (string, error)
}

// LocalIssuer generates correlation ids without a provider round trip. It is
// used when no e-sign provider is configured.
type LocalIssuer struct{}

func (LocalIssuer) CreateSignatureRequest(context.Context, int64, string) (string, error) {
	return uuid.NewString(), nil
}

type Handler struct {
	store  SignatureStore
	issuer RequestIssuer
	cache  cache.StatusCache
	logger *zap.Logger
}

func NewHandler(st SignatureStore, issuer RequestIssuer, c cache.StatusCache, logger *zap.Logger) *Handler {
	if issuer == nil {
		issuer = LocalIssuer{}
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Handler{store: st, issuer: issuer, cache: c, logger: logger}
}

// contractRef accepts the contract id as a JSON number or a numeric string.
type contractRef int64

func (c *contractRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	raw := string(b)
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = unq
	}
	if strings.TrimSpace(raw) == "" {
		*c = 0
		return nil
	}
	id, ok := contracts.ParseID(raw)
	if !ok {
		return errors.New("contract_id must be a positive integer")
	}
	*c = contractRef(id)
	return nil
}

type createRequest struct {
	ContractID  contractRef `json:"contract_id"`
	SignerEmail string      `json:"signer_email"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
		return
	}
	email := strings.TrimSpace(req.SignerEmail)
	var missing []string
	if req.ContractID == 0 {
		missing = append(missing, "contract_id")
	}
	if email == "" {
		missing = append(missing, "signer_email")
	}
	if len(missing) > 0 {
		httpx.WriteValidationError(w, "missing required fields", missing...)
		return
	}
	if !validEmail(email) {
		httpx.WriteValidationError(w, "signer_email is not a valid email address", "signer_email")
		return
	}
	contractID := int64(req.ContractID)

	key := idempotency.KeyFromRequest(r)
	fingerprint := idempotency.Fingerprint(strconv.FormatInt(contractID, 10), strings.ToLower(email))
	status, body, replayed, err := idempotency.Replay(r.Context(), h.store, key, createEndpoint, fingerprint)
	if err != nil {
		if errors.Is(err, idempotency.ErrKeyReused) {
			httpx.WriteError(w, http.StatusConflict, httpx.CodeIdempotencyKey, err.Error(), nil)
			return
		}
		h.logger.Error("idempotency lookup failed", zap.Error(err))
		httpx.WriteStorageError(w)
		return
	}
	if replayed {
		httpx.WriteJSON(w, status, body)
		return
	}

	// The provider session is opened only for a contract that exists; the
	// foreign key still backs this check against concurrent deletes.
	if _, err := h.store.GetContract(r.Context(), contractID); err != nil {
		if errors.Is(err, store.ErrContractNotFound) {
			h.logger.Warn("signature references unknown contract", zap.Int64("contract_id", contractID))
		} else {
			h.logger.Error("contract lookup failed", zap.Int64("contract_id", contractID), zap.Error(err))
		}
		httpx.WriteStorageError(w)
		return
	}

	requestID, err := h.issuer.CreateSignatureRequest(r.Context(), contractID, email)
	if err != nil {
		h.logger.Error("signature request issue failed", zap.Int64("contract_id", contractID), zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, httpx.CodeUpstream, "signing provider unavailable", nil)
		return
	}

	sig, err := h.store.CreateSignature(r.Context(), store.NewSignature{
		ContractID:         contractID,
		SignerEmail:        email,
		SignatureRequestID: requestID,
	})
	if err != nil {
		fields := []zap.Field{zap.Int64("contract_id", contractID), zap.Error(err)}
		switch {
		case store.IsForeignKeyViolation(err):
			h.logger.Warn("signature references unknown contract", fields...)
		case store.IsUniqueViolation(err):
			h.logger.Warn("signature already exists for signer", fields...)
		default:
			h.logger.Error("create signature failed", fields...)
		}
		httpx.WriteStorageError(w)
		return
	}
	h.cache.Invalidate(r.Context(), contractID)
	h.logger.Info("signature requested",
		zap.Int64("signature_id", sig.ID),
		zap.Int64("contract_id", contractID),
		zap.String("signature_request_id", sig.SignatureRequestID))

	resp, err := toMap(sig)
	if err == nil {
		if err := idempotency.Save(r.Context(), h.store, key, createEndpoint, fingerprint, http.StatusCreated, resp); err != nil {
			h.logger.Warn("idempotency save failed", zap.Error(err))
		}
	}
	httpx.WriteJSON(w, http.StatusCreated, sig)
}

func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "archived", h.store.ArchiveSignature)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "deleted", h.store.SoftDeleteSignature)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, int64) (int64, error)) {
	id, ok := contracts.ParseID(chi.URLParam(r, "signature_id"))
	if !ok {
		httpx.WriteValidationError(w, "signature id must be a positive integer", "signature_id")
		return
	}
	contractID, err := apply(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSignatureNotFound) {
			httpx.WriteNotFound(w, "signature not found")
			return
		}
		h.logger.Error("signature lifecycle update failed", zap.String("action", action), zap.Int64("signature_id", id), zap.Error(err))
		httpx.WriteStorageError(w)
		return
	}
	h.cache.Invalidate(r.Context(), contractID)
	h.logger.Info("signature "+action, zap.Int64("signature_id", id), zap.Int64("contract_id", contractID))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id":   httpx.NewRequestID(),
		"signature_id": id,
		"contract_id":  contractID,
		action:         true,
	})
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, json.Unmarshal(b, &out)
}
