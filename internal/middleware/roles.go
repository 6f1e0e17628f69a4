package middleware

import (
	"strings"

	"go-helpdesk/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// RequireRoles restricts a route to users holding at least one of the
// given roles. Runs after AuthMiddleware; with skipAuth everything is
// allowed through.
func RequireRoles(skipAuth bool, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth {
			return c.Next()
		}

		claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		for _, have := range claims.Roles {
			for _, want := range roles {
				if strings.EqualFold(have, want) {
					return c.Next()
				}
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied: insufficient role",
		})
	}
}
