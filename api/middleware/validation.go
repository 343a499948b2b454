package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const maxBodyBytes = 1 << 20 // requests past 1MB are never legitimate

// ValidationMiddleware enforces JSON content types on mutating requests
// and bounds the request body size.
func ValidationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if req.ContentLength > maxBodyBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
					"error": "request body too large",
				})
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

			if req.Method == http.MethodPost || req.Method == http.MethodPut {
				ct := req.Header.Get(echo.HeaderContentType)
				if ct != "" && !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
					return c.JSON(http.StatusUnsupportedMediaType, map[string]string{
						"error": "expected application/json",
					})
				}
			}

			return next(c)
		}
	}
}
