package middleware

// identity.go holds the context keys set by TerminalAuth and the helpers
// handlers and other middleware use to read them back.

import (
	"github.com/labstack/echo/v4"
)

const (
	ctxStaffID    = "staff_id"
	ctxTerminalID = "terminal_id"
)

// StaffID returns the staff member behind the request, or "" when the
// request is unauthenticated.
func StaffID(c echo.Context) string {
	if v, ok := c.Get(ctxStaffID).(string); ok {
		return v
	}
	return ""
}

// TerminalID returns the POS terminal the request came from.
func TerminalID(c echo.Context) string {
	if v, ok := c.Get(ctxTerminalID).(string); ok {
		return v
	}
	return ""
}

// terminalKey identifies the terminal for rate limiting.  Unauthenticated
// requests share the "anon" bucket of their IP.
func terminalKey(c echo.Context) string {
	staff, term := StaffID(c), TerminalID(c)
	if staff == "" || term == "" {
		return "anon"
	}
	return staff + "@" + term
}
