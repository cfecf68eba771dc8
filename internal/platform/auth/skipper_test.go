package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/metrics", true},
		{"/api/v1/reviews", false},
		{"/api/v1/episodes/evaluate", false},
		{"/health/extra", false},
		{"/", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
			}
			if got := IsPublicPath(tt.path); got != tt.want {
				t.Errorf("IsPublicPath(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	c.SetPath("/health")

	var handlerCalled bool
	handler := func(c echo.Context) error {
		handlerCalled = true
		return c.String(http.StatusOK, "ok")
	}

	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(handler)
	if err := h(c); err != nil {
		t.Fatalf("expected no error for skipped path, got: %v", err)
	}
	if !handlerCalled {
		t.Error("expected handler to be called for skipped path")
	}
}

func TestJWTMiddleware_DoesNotSkipProtectedPaths(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/reviews", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/reviews")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
