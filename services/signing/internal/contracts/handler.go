package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/altovisual/artist-management/pkg/httpx"
	"github.com/altovisual/artist-management/services/signing/internal/cache"
	"github.com/altovisual/artist-management/services/signing/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ContractStore interface {
	Reader
	CreateContract(ctx context.Context, in store.NewContract) (store.Contract, error)
}

type Handler struct {
	store  ContractStore
	cache  cache.StatusCache
	logger *zap.Logger
}

func NewHandler(st ContractStore, c cache.StatusCache, logger *zap.Logger) *Handler {
	if c == nil {
		c = cache.Nop{}
	}
	return &Handler{store: st, cache: c, logger: logger}
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(chi.URLParam(r, "contract_id"))
	if !ok {
		httpx.WriteValidationError(w, "contract id must be a positive integer", "contract_id")
		return
	}

	// The generation is sampled before the read so a view computed from rows
	// an invalidation has since superseded is stored where no reader looks.
	gen, cacheable := h.cache.Generation(r.Context(), id)
	if !cacheable {
		h.serveFresh(w, r, id, false, 0)
		return
	}
	if cached, hit := h.cache.Get(r.Context(), id, gen); hit {
		var view StatusView
		if err := json.Unmarshal(cached, &view); err == nil {
			httpx.WriteJSON(w, http.StatusOK, view)
			return
		}
		h.logger.Warn("discarding unreadable cached status", zap.Int64("contract_id", id))
	}
	h.serveFresh(w, r, id, true, gen)
}

func (h *Handler) serveFresh(w http.ResponseWriter, r *http.Request, id int64, cacheable bool, gen int64) {
	view, err := Aggregate(r.Context(), h.store, id)
	if err != nil {
		if errors.Is(err, store.ErrContractNotFound) {
			httpx.WriteNotFound(w, "contract not found")
			return
		}
		h.logger.Error("contract status query failed", zap.Int64("contract_id", id), zap.Error(err))
		httpx.WriteStorageError(w)
		return
	}

	if cacheable {
		if b, err := json.Marshal(view); err == nil {
			h.cache.Set(r.Context(), id, gen, b)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
		ProjectID  string `json:"project_id"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
		return
	}
	var missing []string
	if strings.TrimSpace(req.TemplateID) == "" {
		missing = append(missing, "template_id")
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		missing = append(missing, "project_id")
	}
	if len(missing) > 0 {
		httpx.WriteValidationError(w, "missing required fields", missing...)
		return
	}

	c, err := h.store.CreateContract(r.Context(), store.NewContract{
		TemplateID: strings.TrimSpace(req.TemplateID),
		ProjectID:  strings.TrimSpace(req.ProjectID),
	})
	if err != nil {
		h.logger.Error("create contract failed", zap.Error(err))
		httpx.WriteStorageError(w)
		return
	}
	h.logger.Info("contract created", zap.Int64("contract_id", c.ID), zap.String("template_id", c.TemplateID))
	httpx.WriteJSON(w, http.StatusCreated, c)
}

// ParseID accepts positive base-10 integer ids only.
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
