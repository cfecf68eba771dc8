package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	// SigningKey is the shared HMAC key tokens are signed with.
	SigningKey []byte
	// Skipper bypasses authentication for matching requests.
	Skipper func(echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRolesKey, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development that allows
// unauthenticated requests with default values.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if UserIDFromContext(ctx) == "" {
				user := c.Request().Header.Get("X-Dev-User")
				if user == "" {
					user = "dev-user"
				}
				ctx = context.WithValue(ctx, UserIDKey, user)
				ctx = context.WithValue(ctx, UserRolesKey, []string{"admin"})
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
