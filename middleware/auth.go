// internal/middleware/user_context.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the caller's identity and roles set by the
// Gateway. The waitlist product keys referrers by their confirmed email, so
// X-User-ID carries the identity string, not a numeric id.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		if identity == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		// Attach to ctx for handlers
		c.Locals("user_id", identity)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}
