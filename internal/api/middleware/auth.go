package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/pkg/crypto"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

type AuthMiddleware struct {
	jwtManager *crypto.JWTManager
}

func NewAuthMiddleware(jwtManager *crypto.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// Authenticate admits bearer tokens carrying the admin scope.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			dto.Unauthorized(w, "missing authorization header")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			dto.Unauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, crypto.ErrExpiredToken) {
				dto.Unauthorized(w, "token expired")
				return
			}
			dto.Unauthorized(w, "invalid token")
			return
		}

		if claims.Scope != crypto.ScopeAdmin {
			dto.Forbidden(w, "token lacks admin scope")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetClaimsFromContext(ctx context.Context) *crypto.Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*crypto.Claims)
	if !ok {
		return nil
	}
	return claims
}
