// Package server assembles the HTTP surface of the signing service.
package server

import (
	"net/http"
	"time"

	"github.com/altovisual/artist-management/pkg/authn"
	pkgwebhooks "github.com/altovisual/artist-management/pkg/webhooks"
	"github.com/altovisual/artist-management/services/signing/internal/analytics"
	"github.com/altovisual/artist-management/services/signing/internal/cache"
	"github.com/altovisual/artist-management/services/signing/internal/contracts"
	"github.com/altovisual/artist-management/services/signing/internal/signatures"
	"github.com/altovisual/artist-management/services/signing/internal/webhooks"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const WebhookPath = "/webhooks/signature-provider"

// Store is everything the handlers need from persistence.
type Store interface {
	contracts.ContractStore
	signatures.SignatureStore
	webhooks.SignatureUpdater
}

type Deps struct {
	Store  Store
	Issuer signatures.RequestIssuer
	Cache  cache.StatusCache

	WebhookVerifier     pkgwebhooks.Verifier
	WebhookSecret       string
	WebhookMaxBodyBytes int64

	// RoleChecker guards the API routes. nil disables the check.
	RoleChecker *authn.RoleChecker
	Analytics   *analytics.Proxy

	Logger *zap.Logger
	Now    func() time.Time
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := d.Cache
	if c == nil {
		c = cache.Nop{}
	}

	contractH := contracts.NewHandler(d.Store, c, logger.Named("contracts"))
	signatureH := signatures.NewHandler(d.Store, d.Issuer, c, logger.Named("signatures"))
	reconciler := webhooks.NewReconciler(d.Store, webhooks.Options{
		Verifier:     d.WebhookVerifier,
		Secret:       d.WebhookSecret,
		MaxBodyBytes: d.WebhookMaxBodyBytes,
		Cache:        c,
		Now:          d.Now,
	}, logger.Named("webhooks"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	// The provider authenticates with its own shared secret.
	r.Post(WebhookPath, reconciler.HandleWebhook)

	r.Group(func(api chi.Router) {
		if d.RoleChecker != nil {
			api.Use(d.RoleChecker.Middleware(logger.Named("authn")))
		}

		api.Post("/contracts", contractH.HandleCreate)
		api.Get("/contracts/{contract_id}/status", contractH.HandleStatus)

		api.Post("/signatures", signatureH.HandleCreate)
		api.Post("/signatures/{signature_id}/archive", signatureH.HandleArchive)
		api.Delete("/signatures/{signature_id}", signatureH.HandleDelete)

		if d.Analytics != nil {
			api.Handle(analytics.PathPrefix+"/*", d.Analytics)
		}
	})

	return r
}
