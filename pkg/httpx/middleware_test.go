package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/contacts/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(httpx.Chain(okHandler, mark("first"), mark("second"), mark("third")), requestFrom("10.0.0.1:1"))
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestAuthnMiddleware(t *testing.T) {
	auth := fakeAuth{"good": "ada@example.com"}

	var seen string
	h := httpx.AuthnMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = httpx.EmailFromContext(r.Context())
		claims, ok := httpx.ClaimsFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, seen, claims.Subject)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"rejected token", "Bearer bad", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
		{"scheme is case insensitive", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := requestFrom("10.0.0.1:1")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(h, req)
			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
				require.Contains(t, rec.Body.String(), `"error":"invalid_token"`)
				return
			}
			require.Equal(t, "ada@example.com", seen)
		})
	}
}

func TestBanIPs(t *testing.T) {
	h := httpx.BanIPs([]string{"203.0.113.9", " ", ""})(okHandler)

	rec := serve(h, requestFrom("203.0.113.9:4444"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), `"error":"forbidden"`)

	require.Equal(t, http.StatusOK, serve(h, requestFrom("203.0.113.10:4444")).Code)

	// A client cannot talk its way past the ban with a forwarding header.
	spoofed := requestFrom("203.0.113.9:1")
	spoofed.Header.Set("X-Forwarded-For", "1.2.3.4")
	require.Equal(t, http.StatusForbidden, serve(h, spoofed).Code)

	fwd := requestFrom("10.0.0.1:1")
	fwd.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, http.StatusOK, serve(h, fwd).Code, "header from an untrusted peer is ignored")

	trustProxies(t, "10.0.0.0/8")
	require.Equal(t, http.StatusForbidden, serve(h, fwd).Code, "header from a trusted proxy is honoured")

	require.Equal(t, http.StatusOK, serve(httpx.BanIPs(nil)(okHandler), requestFrom("203.0.113.9:1")).Code)
}

func TestCORS(t *testing.T) {
	h := httpx.CORS(httpx.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, MaxAge: 600})(okHandler)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		rec := serve(h, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("simple request from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set("Origin", "https://app.example.com")

		rec := serve(h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("other origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set("Origin", "https://evil.example.com")

		rec := serve(h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://anything.example.com")
		rec := serve(httpx.CORS(httpx.CORSConfig{AllowedOrigins: []string{"*"}})(okHandler), req)
		require.Equal(t, "https://anything.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteError(rec, http.StatusConflict, "email_taken", "account already exists")

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"error":"email_taken","detail":"account already exists"}`, rec.Body.String())
}
