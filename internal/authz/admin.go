package authz

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"palcro/internal/observability/metrics"

	"github.com/golang-jwt/jwt/v5"
)

// AdminValidator checks bearer tokens minted by the external credential
// service. It only verifies; it never issues tokens. HS256 with a shared
// secret is the agreed contract with that service.
type AdminValidator struct {
	secret []byte
	issuer string
}

func NewAdminValidator(secret, issuer string) *AdminValidator {
	return &AdminValidator{secret: []byte(secret), issuer: issuer}
}

func (v *AdminValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := "success"
		defer func() { metrics.AdminAuthTotal.WithLabelValues(result).Inc() }()

		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			result = "failure"
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			slog.Warn("admin auth missing bearer", "path", r.URL.Path)
			return
		}
		tokStr := strings.TrimSpace(raw[len("Bearer "):])

		token, err := jwt.Parse(tokStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
			}
			return v.secret, nil
		})
		if err != nil || !token.Valid {
			result = "failure"
			http.Error(w, "invalid token", http.StatusUnauthorized)
			slog.Warn("admin auth invalid token", "error", err)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			result = "failure"
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		if iss, _ := claims["iss"].(string); iss != "" && iss != v.issuer {
			result = "failure"
			http.Error(w, "issuer mismatch", http.StatusUnauthorized)
			slog.Warn("admin auth issuer mismatch", "issuer", iss)
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			result = "failure"
			http.Error(w, "no subject", http.StatusUnauthorized)
			return
		}

		ctx := contextWithAdmin(r.Context(), sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type adminKey struct{}

func contextWithAdmin(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, adminKey{}, sub)
}

// AdminFrom returns the verified admin subject, if any.
func AdminFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(adminKey{}).(string)
	return v, ok
}
