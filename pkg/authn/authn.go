// Package authn performs the single role check that guards the back-office API.
// Sessions are issued by the external identity provider as HS256 JWTs; this
// package only verifies them and checks for the required role.
package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/altovisual/artist-management/pkg/httpx"
	"github.com/altovisual/artist-management/pkg/webhooks"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type Identity struct {
	Subject string
	Roles   []string
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok && id != nil
}

type RoleChecker struct {
	secret []byte
	role   string
}

func NewRoleChecker(secret, role string) *RoleChecker {
	return &RoleChecker{secret: []byte(secret), role: strings.TrimSpace(role)}
}

// Authenticate verifies the bearer JWT and returns ErrForbidden when it is
// valid but lacks the required role.
func (c *RoleChecker) Authenticate(authorization string) (*Identity, error) {
	tokenStr, ok := webhooks.ParseBearerToken(authorization)
	if !ok {
		return nil, ErrUnauthorized
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthorized
	}

	id := &Identity{Roles: rolesFromClaims(claims)}
	id.Subject, _ = claims.GetSubject()
	if !HasRole(id.Roles, c.role) {
		return id, ErrForbidden
	}
	return id, nil
}

func (c *RoleChecker) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := c.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, ErrForbidden) {
					logger.Info("role check failed",
						zap.String("subject", id.Subject),
						zap.String("required_role", c.role),
						zap.String("path", r.URL.Path))
					httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "missing required role", nil)
					return
				}
				logger.Debug("authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
				httpx.WriteUnauthorized(w, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func HasRole(roles []string, required string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, required) {
			return true
		}
	}
	return false
}

// rolesFromClaims accepts either a "role" string or a "roles" array.
func rolesFromClaims(claims jwt.MapClaims) []string {
	var out []string
	if v, ok := claims["role"].(string); ok && strings.TrimSpace(v) != "" {
		out = append(out, strings.TrimSpace(v))
	}
	if vs, ok := claims["roles"].([]any); ok {
		for _, v := range vs {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
