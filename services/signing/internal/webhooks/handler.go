package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/altovisual/artist-management/pkg/httpx"
	pkgwebhooks "github.com/altovisual/artist-management/pkg/webhooks"
	"github.com/altovisual/artist-management/services/signing/internal/cache"
	"github.com/altovisual/artist-management/services/signing/internal/store"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes = 1 << 20

type SignatureUpdater interface {
	ApplySignatureStatus(ctx context.Context, requestID string, target store.SignatureStatus, allowedFrom []store.SignatureStatus, at time.Time) (store.ApplyResult, error)
}

type Options struct {
	Verifier     pkgwebhooks.Verifier
	Secret       string
	MaxBodyBytes int64
	Cache        cache.StatusCache
	Now          func() time.Time
}

// Reconciler applies signing provider notifications to signature rows.
// Deliveries are at-least-once; every write it issues is idempotent.
type Reconciler struct {
	store    SignatureUpdater
	verifier pkgwebhooks.Verifier
	secret   string
	maxBody  int64
	cache    cache.StatusCache
	now      func() time.Time
	logger   *zap.Logger
}

func NewReconciler(st SignatureUpdater, opts Options, logger *zap.Logger) *Reconciler {
	r := &Reconciler{
		store:    st,
		verifier: opts.Verifier,
		secret:   opts.Secret,
		maxBody:  opts.MaxBodyBytes,
		cache:    opts.Cache,
		now:      opts.Now,
		logger:   logger,
	}
	if r.verifier == nil {
		r.verifier = pkgwebhooks.NewBearerVerifier()
	}
	if r.maxBody <= 0 {
		r.maxBody = defaultMaxBodyBytes
	}
	if r.cache == nil {
		r.cache = cache.Nop{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (h *Reconciler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// Header-only credentials are checked before the body is read.
	headerOnly := h.verifier.Scheme() == pkgwebhooks.SchemeBearer
	if headerOnly && !h.authenticate(w, r, nil) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, httpx.CodePayloadTooLarge, "payload exceeds size limit", nil)
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadJSON, err.Error(), nil)
		return
	}

	if !headerOnly && !h.authenticate(w, r, rawBody) {
		return
	}

	log := h.logger.With(zap.String("payload_sha256", pkgwebhooks.PayloadHash(rawBody)))

	delivery, err := ParseDelivery(rawBody)
	if err != nil {
		log.Warn("rejecting webhook payload", zap.Error(err))
		code := httpx.CodeValidation
		if errors.Is(err, ErrMalformedPayload) {
			code = httpx.CodeBadJSON
		}
		httpx.WriteError(w, http.StatusBadRequest, code, err.Error(), nil)
		return
	}
	if len(delivery.Ignored) > 0 {
		log.Debug("ignoring unrecognised payload fields", zap.Strings("fields", delivery.Ignored))
	}
	log.Info("webhook received", zap.String("shape", string(delivery.Shape)), zap.Int("events", len(delivery.Events)))

	var touched []int64
	for _, ev := range delivery.Events {
		contractIDs, err := h.apply(r.Context(), log, ev)
		touched = append(touched, contractIDs...)
		if err != nil {
			h.cache.Invalidate(r.Context(), touched...)
			log.Error("webhook apply failed; provider will retry",
				zap.String("correlation_id", ev.CorrelationID),
				zap.String("event", ev.Code),
				zap.Error(err))
			httpx.WriteStorageError(w)
			return
		}
	}
	h.cache.Invalidate(r.Context(), touched...)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// authenticate writes 401 and returns false unless the delivery carries valid
// credentials. rawBody is nil for header-only schemes.
func (h *Reconciler) authenticate(w http.ResponseWriter, r *http.Request, rawBody []byte) bool {
	result, err := h.verifier.Verify(r.Header, rawBody, h.secret)
	if err != nil {
		h.logger.Error("webhook verifier unusable", zap.String("scheme", h.verifier.Scheme()), zap.Error(err))
		httpx.WriteUnauthorized(w, "webhook authentication failed")
		return false
	}
	if !result.Valid {
		h.logger.Warn("webhook authentication failed",
			zap.String("scheme", result.Scheme),
			zap.Any("details", result.Details),
			zap.String("remote_addr", r.RemoteAddr))
		httpx.WriteUnauthorized(w, "webhook authentication failed")
		return false
	}
	return true
}

// apply returns the contracts whose signatures changed.
func (h *Reconciler) apply(ctx context.Context, log *zap.Logger, ev Event) ([]int64, error) {
	fields := []zap.Field{zap.String("correlation_id", ev.CorrelationID), zap.String("event", ev.Code)}

	target, ok := MapEvent(ev.Code)
	if !ok {
		log.Info("acknowledging unhandled event type", fields...)
		return nil, nil
	}
	fields = append(fields, zap.String("target_status", string(target)))

	res, err := h.store.ApplySignatureStatus(ctx, ev.CorrelationID, target, AllowedFrom(target), h.now())
	if err != nil {
		return nil, err
	}
	switch {
	case res.Matched == 0:
		log.Warn("no signature matches correlation id", fields...)
		return nil, nil
	case res.Updated == 0:
		log.Debug("event already applied or superseded", append(fields, zap.Int64("matched", res.Matched))...)
		return nil, nil
	}
	log.Info("signature status updated", append(fields,
		zap.Int64("matched", res.Matched),
		zap.Int64("updated", res.Updated),
		zap.Int64s("contract_ids", res.ContractIDs))...)
	return res.ContractIDs, nil
}
