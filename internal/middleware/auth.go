package middleware

import (
	"crypto/subtle"

	"fit-atlas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const adminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards operator endpoints. The key comes from the X-Admin-Key
// header or the key query parameter. An empty configured key rejects every call.
func RequireAdminKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(adminKeyHeader)
		if got == "" {
			got = c.Query("key")
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return response.Forbidden(c, "Unauthorized")
		}
		return c.Next()
	}
}
