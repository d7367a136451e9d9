package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"savecsv/internal/domain"
	u "savecsv/internal/utils"
)

// ErrorHandler renders every error as {"error": message}. Classified errors
// keep their own status; anything else is an unexpected 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var de *domain.Error
	var fe *fiber.Error
	switch {
	case errors.As(err, &de):
		code = de.Status()
		msg = de.Message
	case errors.As(err, &fe):
		code = fe.Code
		msg = fe.Message
	case err != nil:
		msg = err.Error()
	}

	kind := domain.KindOf(err).String()
	if code >= fiber.StatusInternalServerError {
		u.Error("Request failed", "request_id", RequestID(c), "method", c.Method(), "path", c.Path(),
			"status", code, "kind", kind, "error", err)
	} else {
		u.Warn("Request rejected", "request_id", RequestID(c), "path", c.Path(), "status", code, "message", msg)
	}

	return c.Status(code).JSON(fiber.Map{"error": msg})
}
