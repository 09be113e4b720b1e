package middleware

import (
	"fit-atlas/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

const (
	SessionHeader     = "X-Session-Id"
	SessionCookieName = "fit.sid"
	sessionLocal      = "session_id"
)

// Session picks up the conversation session id from the X-Session-Id header or
// the fit.sid cookie. Malformed ids are ignored; no session is ever created here.
func Session() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(SessionHeader)
		if id == "" {
			id = c.Cookies(SessionCookieName)
		}
		if validation.IsValidSessionID(id) {
			c.Locals(sessionLocal, id)
		}
		return c.Next()
	}
}

// GetSessionID returns the session id from context, or "".
func GetSessionID(c *fiber.Ctx) string {
	if id, ok := c.Locals(sessionLocal).(string); ok {
		return id
	}
	return ""
}
