package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func bearer(t *testing.T, m *crypto.JWTManager, scope string) string {
	t.Helper()
	token, _, err := m.GenerateToken("ops", scope)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthenticate(t *testing.T) {
	jwt := crypto.NewJWTManager(crypto.JWTConfig{Secret: "s3cret", Expiry: time.Hour, Issuer: "flowmirror"})
	var seen *crypto.Claims
	h := NewAuthMiddleware(jwt).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"wrong scope", bearer(t, jwt, "read"), http.StatusForbidden},
		{"admin", bearer(t, jwt, crypto.ScopeAdmin), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "ops", seen.Subject)
}

func TestRateLimiter_PerClient(t *testing.T) {
	h := NewRateLimiter(60, 2).Limit(ok)

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.2:1000"))
}

func TestRecoverer(t *testing.T) {
	h := Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
