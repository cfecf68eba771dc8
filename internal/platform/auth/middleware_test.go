package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(subject string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: roles,
	}
}

func callWithHeader(cfg JWTConfig, header string, handler echo.HandlerFunc) error {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	return JWTMiddleware(cfg)(handler)(c)
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims("user-123")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong key", "Bearer " + createTestToken(t, validClaims("user-123"), []byte("another-key"))},
		{"expired", "Bearer " + createTestToken(t, expired, testSigningKey)},
		{"no subject", "Bearer " + createTestToken(t, validClaims(""), testSigningKey)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := callWithHeader(JWTConfig{SigningKey: testSigningKey}, tt.header, okHandler)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", httpErr.Code)
			}
		})
	}
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-456", "physician", "wound_specialist"), testSigningKey)

	var handlerCalled bool
	handler := func(c echo.Context) error {
		handlerCalled = true
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "user-456" {
			t.Errorf("expected user_id=user-456, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 2 || roles[0] != "physician" || roles[1] != "wound_specialist" {
			t.Errorf("expected roles=[physician wound_specialist], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := callWithHeader(JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	claims := validClaims("user-789", "nurse")
	claims.Issuer = "woundcare-idp"
	claims.Audience = jwt.ClaimStrings{"woundcare"}
	tokenStr := "Bearer " + createTestToken(t, claims, testSigningKey)

	good := JWTConfig{SigningKey: testSigningKey, Issuer: "woundcare-idp", Audience: "woundcare"}
	if err := callWithHeader(good, tokenStr, okHandler); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	wrongIssuer := JWTConfig{SigningKey: testSigningKey, Issuer: "other-idp"}
	if err := callWithHeader(wrongIssuer, tokenStr, okHandler); err == nil {
		t.Error("expected issuer mismatch to be rejected")
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("expected roles=[admin], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_HeaderUserAndExistingIdentity(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User", "dr-okafor")
	c := e.NewContext(req, httptest.NewRecorder())
	var got string
	capture := func(c echo.Context) error {
		got = UserIDFromContext(c.Request().Context())
		return nil
	}
	DevAuthMiddleware()(capture)(c)
	if got != "dr-okafor" {
		t.Errorf("expected dr-okafor, got %s", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey, "token-user"))
	c = e.NewContext(req, httptest.NewRecorder())
	DevAuthMiddleware()(capture)(c)
	if got != "token-user" {
		t.Errorf("existing identity overwritten: %s", got)
	}
}
