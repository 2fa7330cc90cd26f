package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"lendscan/internal/eventbus"
)

func signAdminToken(t *testing.T, secret string, claims jwtlib.MapClaims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func adminProbe(t *testing.T, secret, authHeader string) (int, bool) {
	t.Helper()
	server := NewServer(nil, nil, eventbus.New(), "0", 0, secret)

	called := false
	handler := server.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/admin/rollback/90", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec.Code, called
}

func TestRequireAdmin(t *testing.T) {
	secret := "test-secret"
	validClaims := jwtlib.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	t.Run("disabled without secret", func(t *testing.T) {
		code, called := adminProbe(t, "", "Bearer whatever")
		if code != http.StatusForbidden || called {
			t.Fatalf("got=(%d,%v) want (403,false)", code, called)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		code, called := adminProbe(t, secret, "")
		if code != http.StatusUnauthorized || called {
			t.Fatalf("got=(%d,%v) want (401,false)", code, called)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		code, called := adminProbe(t, secret, "Bearer not.a.token")
		if code != http.StatusUnauthorized || called {
			t.Fatalf("got=(%d,%v) want (401,false)", code, called)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		token := signAdminToken(t, "other-secret", validClaims)
		code, called := adminProbe(t, secret, "Bearer "+token)
		if code != http.StatusUnauthorized || called {
			t.Fatalf("got=(%d,%v) want (401,false)", code, called)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token := signAdminToken(t, secret, jwtlib.MapClaims{
			"sub": "ops",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		code, called := adminProbe(t, secret, "Bearer "+token)
		if code != http.StatusUnauthorized || called {
			t.Fatalf("got=(%d,%v) want (401,false)", code, called)
		}
	})

	t.Run("missing sub claim", func(t *testing.T) {
		token := signAdminToken(t, secret, jwtlib.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		code, called := adminProbe(t, secret, "Bearer "+token)
		if code != http.StatusUnauthorized || called {
			t.Fatalf("got=(%d,%v) want (401,false)", code, called)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token := signAdminToken(t, secret, validClaims)
		code, called := adminProbe(t, secret, "Bearer "+token)
		if code != http.StatusOK || !called {
			t.Fatalf("got=(%d,%v) want (200,true)", code, called)
		}
	})
}
