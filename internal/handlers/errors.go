package handlers

import (
	"errors"
	"fmt"
	"log"

	"toko-checkout/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// retryAfterSeconds is advertised on busy and timed out responses.
const retryAfterSeconds = "1"

// statusOf maps the service error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrOutOfStock),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrBusy), errors.Is(err, services.ErrTimeout):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// writeError logs err and renders it as {"message", "error"}. Internal errors
// do not leak their cause.
func writeError(c *fiber.Ctx, message string, err error) error {
	status := statusOf(err)
	log.Printf("%s %s: %s: %v", c.Method(), c.Path(), message, err)

	body := fiber.Map{"message": message, "error": err.Error()}
	var oos *services.OutOfStockError
	switch {
	case errors.As(err, &oos):
		body["product_id"] = oos.ProductID
		body["requested"] = oos.Requested
		body["available"] = oos.Available
	case status == fiber.StatusServiceUnavailable:
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
	case status == fiber.StatusInternalServerError:
		body["error"] = services.ErrInternal.Error()
	}
	return c.Status(status).JSON(body)
}

// parseBody decodes the JSON body into dst and runs struct validation on it.
// When ok is false the 400 response has already been written and err is the
// result of writing it.
func parseBody(c *fiber.Ctx, validate *validator.Validate, dst any) (ok bool, err error) {
	if err := c.BodyParser(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Validation failed",
				"error":   err.Error(),
			})
		}
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}
	return true, nil
}
