package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimit limits each client IP to rps requests per second with a burst of
// one, kept in echo's in-memory store. Rejections are JSON like every other
// locally generated error.
func RateLimit(rps float64) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(rps))
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "could not identify client for rate limiting",
			})
		},
		DenyHandler: func(c echo.Context, id string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
		},
	})
}
