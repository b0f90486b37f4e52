// handlers/errors.go
package handlers

import (
	"errors"

	"referral-engine/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// statusFor maps the service error taxonomy onto HTTP statuses:
// validation 400, not-found 404, conflicts 409. Idempotent replays
// never reach here — they are reported as success upstream.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownUser),
		errors.Is(err, services.ErrUnknownCode),
		errors.Is(err, services.ErrUnknownRequest),
		errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrAlreadyReferred),
		errors.Is(err, services.ErrSelfReferral),
		errors.Is(err, services.ErrCycleDetected),
		errors.Is(err, services.ErrAlreadyResolved):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrReasonRequired),
		errors.Is(err, services.ErrInsufficientBalance):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
