package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RelayGuard rejects requests that only make sense to a forward proxy: CONNECT
// tunnels and absolute-form request targets. Such requests come from clients
// that were pointed at the proxy through HTTP_PROXY, and relaying them would
// send the caller's target host to the provider as an endpoint id.
// Register it with e.Pre so it runs before routing.
func RelayGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodConnect {
				return c.JSON(http.StatusMethodNotAllowed, map[string]string{
					"error": "CONNECT is not supported; use http://<host>:<port>/<endpoint-id>/... as the base URL",
				})
			}
			if req.URL.IsAbs() {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error": "absolute-form request target; this is not a forward proxy",
				})
			}
			return next(c)
		}
	}
}
