// Package middleware holds the HTTP middleware that gates the register API
// on staff tokens.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cafe-pos/register/internal/auth"
	"github.com/cafe-pos/register/internal/enum"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsKey contextKey = "staff"

// CashierRoles may operate a register.
var CashierRoles = []string{enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier}

// Authenticate validates the Bearer staff token and stores its claims in the
// request context. An expired token gets its own message so the terminal
// can ask for a new login.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or malformed authorization header"})
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, token)
			if err != nil {
				msg := "invalid token"
				if auth.IsExpired(err) {
					msg = "token expired"
				}
				logrus.WithFields(logrus.Fields{"path": r.URL.Path, "error": err.Error()}).Debug("staff token rejected")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole lets through staff whose role is one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}
			if !hasRole(claims.Role, roles) {
				logrus.WithFields(logrus.Fields{"usuario_id": claims.UserID, "role": claims.Role}).Debug("role not allowed")
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "role " + claims.Role + " cannot use this register"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCashier is RequireRole(CashierRoles...).
func RequireCashier(next http.Handler) http.Handler {
	return RequireRole(CashierRoles...)(next)
}

// WithClaims stores claims in ctx the way Authenticate does.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the authenticated staff member, or nil.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func hasRole(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}
