package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const serviceName = "EphemURL"

// Health reports that the process is serving.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": serviceName,
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
