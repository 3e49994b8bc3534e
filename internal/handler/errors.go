package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/dbmend/dbmend/internal/port"
)

// respondErr maps service errors onto transport status codes. Policy
// violations are deliberately distinct from validation failures so attempted
// gate bypasses stand out in access logs.
func respondErr(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, port.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, port.ErrPolicyViolation):
		status = fiber.StatusForbidden
	case errors.Is(err, port.ErrAlreadyReviewed), errors.Is(err, port.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, port.ErrNotFound):
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// pathID parses the named path parameter as a positive id.
func pathID(c fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
