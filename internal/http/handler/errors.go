package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/EphemURL/internal/app/service"
)

// statusFor maps service sentinels to HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return fiber.StatusBadRequest, "invalid url"
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "URL for key not found"
	case errors.Is(err, service.ErrKeyspaceExhausted):
		return fiber.StatusInternalServerError, "could not allocate a short key"
	case errors.Is(err, service.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable, "storage temporarily unavailable"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status, msg := statusFor(err)
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
