package middleware

import (
	"github.com/labstack/echo/v4"
)

// securityHeaders are set on every response. Results may carry clinical
// data, so nothing is cacheable or embeddable.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Cache-Control":             "no-store",
}

func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range securityHeaders {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}
