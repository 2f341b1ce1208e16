package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clauseworks/contractd/pkg/api"
)

// Claims are the JWT claims expected by the API. Every token must bind a
// subject and a tenant.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

// JWTValidator validates HMAC-signed JWT tokens and extracts claims.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator for the given signing secret.
func NewJWTValidator(secret []byte) *JWTValidator {
	if len(secret) == 0 {
		return nil
	}
	return &JWTValidator{secret: secret}
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
	"/readiness",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware creates JWT auth middleware. If validator is nil, all
// non-public requests are rejected (fail closed).
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				api.WriteUnauthorized(w, "Authentication not configured")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, "Invalid or expired token")
				return
			}
			if claims.Subject == "" {
				api.WriteUnauthorized(w, "Token subject is required")
				return
			}
			if claims.TenantID == "" {
				api.WriteUnauthorized(w, "Token tenant binding is required")
				return
			}

			principal := &BasePrincipal{
				ID:       claims.Subject,
				TenantID: claims.TenantID,
				Roles:    claims.Roles,
			}
			ctx := api.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
