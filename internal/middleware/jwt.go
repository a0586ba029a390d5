package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-engine/internal/utils"
)

// TerminalAuth returns an Echo middleware that validates a Bearer terminal
// token and stores the staff and terminal ids in the request context.  It
// establishes identity only; no role is checked.
func TerminalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			claims, err := utils.ParseTerminalToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid terminal token"})
			}
			c.Set(ctxStaffID, claims.StaffID())
			c.Set(ctxTerminalID, claims.TerminalID)
			return next(c)
		}
	}
}
