package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// CORS allows any origin to call the shorten and resolve routes.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Origin, Content-Type, Accept, "+RequestIDHeader)
		c.Set(fiber.HeaderAccessControlExposeHeaders, "Location, "+RequestIDHeader)
		c.Set(fiber.HeaderAccessControlMaxAge, "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
