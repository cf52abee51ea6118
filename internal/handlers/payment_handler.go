package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"

	"toko-checkout/internal/models"
	"toko-checkout/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// WebhookSecretHeader authenticates payment provider callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// PaymentHandler receives payment results from providers, over HTTP or from
// the payment.results queue.
type PaymentHandler struct {
	payments *services.PaymentService
	secret   string
	validate *validator.Validate
}

// NewPaymentHandler creates a new PaymentHandler. An empty secret rejects
// every webhook call.
func NewPaymentHandler(payments *services.PaymentService, secret string) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		secret:   secret,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the provider webhook. It is authenticated by a
// shared secret, not a user token.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/webhooks/payments", h.HandleWebhook)
}

// HandleWebhook applies one payment result.
func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	given := c.Get(WebhookSecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Invalid webhook secret",
		})
	}

	var result models.PaymentResult
	if ok, err := parseBody(c, h.validate, &result); !ok {
		return err
	}
	payment, err := h.payments.ApplyPaymentResult(c.UserContext(), result)
	if err != nil {
		return writeError(c, "Could not apply payment result", err)
	}
	return c.JSON(payment)
}

// HandlePaymentResultMessage is the broker consumer for payment results.
// Malformed messages and results that can never apply are acknowledged and
// dropped; only busy or timed out attempts are returned for redelivery.
func (h *PaymentHandler) HandlePaymentResultMessage(ctx context.Context, body []byte) error {
	var result models.PaymentResult
	if err := json.Unmarshal(body, &result); err != nil {
		log.Printf("Dropping malformed payment result: %v", err)
		return nil
	}
	if err := h.validate.Struct(result); err != nil {
		log.Printf("Dropping invalid payment result: %v", err)
		return nil
	}

	payment, err := h.payments.ApplyPaymentResult(ctx, result)
	switch {
	case err == nil:
		log.Printf("Payment %s settled as %s", payment.ID, payment.Status)
		return nil
	case errors.Is(err, services.ErrBusy), errors.Is(err, services.ErrTimeout):
		return err
	default:
		log.Printf("Dropping payment result for %s: %v", result.PaymentID, err)
		return nil
	}
}
