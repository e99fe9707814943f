package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/altovisual/artist-management/pkg/authn"
	"github.com/altovisual/artist-management/pkg/db"
	pkgwebhooks "github.com/altovisual/artist-management/pkg/webhooks"
	"github.com/altovisual/artist-management/services/signing/internal/analytics"
	"github.com/altovisual/artist-management/services/signing/internal/cache"
	"github.com/altovisual/artist-management/services/signing/internal/esignclient"
	"github.com/altovisual/artist-management/services/signing/internal/server"
	"github.com/altovisual/artist-management/services/signing/internal/signatures"
	"github.com/altovisual/artist-management/services/signing/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	cfg.Log(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, db.Options{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	var statusCache cache.StatusCache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		statusCache = cache.NewRedis(client, cfg.Redis.StatusTTL, logger.Named("cache"))
	}

	var issuer signatures.RequestIssuer = signatures.LocalIssuer{}
	if cfg.ESign.BaseURL != "" {
		issuer = esignclient.New(cfg.ESign.BaseURL, cfg.ESign.APIKey, cfg.ESign.Timeout)
	} else {
		logger.Info("no e-sign provider configured; correlation ids are generated locally")
	}

	verifier, err := pkgwebhooks.NewVerifier(cfg.Webhook.Scheme)
	if err != nil {
		return err
	}
	if cfg.Webhook.SharedSecret == "" {
		logger.Warn("WEBHOOK_SHARED_SECRET is empty; every webhook delivery will be rejected")
	}

	var roles *authn.RoleChecker
	if cfg.Auth.JWTSecret != "" {
		roles = authn.NewRoleChecker(cfg.Auth.JWTSecret, cfg.Auth.RequiredRole)
	} else {
		logger.Warn("JWT_SECRET is empty; role check disabled")
	}

	proxy, err := analytics.New(cfg.Analytics.BaseURL, cfg.Analytics.Credentials, logger.Named("analytics"))
	if err != nil {
		return err
	}

	handler := server.NewRouter(server.Deps{
		Store:               store.New(pool),
		Issuer:              issuer,
		Cache:               statusCache,
		WebhookVerifier:     verifier,
		WebhookSecret:       cfg.Webhook.SharedSecret,
		WebhookMaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		RoleChecker:         roles,
		Analytics:           proxy,
		Logger:              logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
