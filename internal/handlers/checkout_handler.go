package handlers

import (
	"errors"
	"strings"
	"time"

	"toko-checkout/internal/middleware"
	"toko-checkout/internal/models"
	"toko-checkout/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// IdempotencyKeyHeader carries the client's idempotency key. A key in the
// request body is used when the header is absent.
const IdempotencyKeyHeader = "Idempotency-Key"

// CheckoutHandler handles HTTP requests for checkout previews and orders.
type CheckoutHandler struct {
	checkout *services.CheckoutService
	orders   *services.OrderService
	payments *services.PaymentService
	validate *validator.Validate
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkout *services.CheckoutService, orders *services.OrderService, payments *services.PaymentService) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		orders:   orders,
		payments: payments,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the checkout routes. The router must already
// require authentication.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	checkoutRoutes := router.Group("/checkout")
	checkoutRoutes.Post("/", h.HandlePreview)
	checkoutRoutes.Post("/create-order", h.HandleCreateOrder)
	checkoutRoutes.Get("/orders", h.HandleListOrders)
	checkoutRoutes.Get("/orders/:id", h.HandleGetOrder)
	checkoutRoutes.Post("/orders/:id/cancel", h.HandleCancelOrder)
	checkoutRoutes.Post("/payment/:orderId", h.HandleCreatePayment)
	checkoutRoutes.Get("/payment/:orderId", h.HandleListPayments)
	checkoutRoutes.Get("/payments/:paymentId", h.HandleGetPayment)
}

// SourceRequest selects the items of a checkout: cart entries in CART mode,
// explicit products in DIRECT mode.
type SourceRequest struct {
	Mode        string              `json:"mode" validate:"required"`
	CartItemIDs []string            `json:"cart_item_ids"`
	DirectItems []models.DirectItem `json:"direct_items" validate:"dive"`
}

// source converts the request into an item source. Mode is case-insensitive.
func (r SourceRequest) source() (models.ItemSource, error) {
	switch models.SourceKind(strings.ToUpper(r.Mode)) {
	case models.SourceCart:
		return models.CartSource{CartItemIDs: r.CartItemIDs}, nil
	case models.SourceDirect:
		return models.DirectSource{Items: r.DirectItems}, nil
	}
	return nil, errors.New("mode must be CART or DIRECT")
}

// CreateOrderRequest is the body of POST /checkout/create-order.
type CreateOrderRequest struct {
	SourceRequest
	IdempotencyKey string `json:"idempotency_key"`
}

// HandlePreview prices a prospective checkout without locking or reserving
// anything.
func (h *CheckoutHandler) HandlePreview(c *fiber.Ctx) error {
	var req SourceRequest
	if ok, err := parseBody(c, h.validate, &req); !ok {
		return err
	}
	source, err := req.source()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid checkout mode",
			"error":   err.Error(),
		})
	}

	session, err := h.checkout.PreviewSession(c.UserContext(), middleware.UserID(c), source)
	if err != nil {
		return writeError(c, "Could not preview checkout", err)
	}
	return c.JSON(session)
}

// HandleCreateOrder places an order. A resubmitted idempotency key answers
// 200 with the order it created the first time.
func (h *CheckoutHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if ok, err := parseBody(c, h.validate, &req); !ok {
		return err
	}
	source, err := req.source()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid checkout mode",
			"error":   err.Error(),
		})
	}
	key := c.Get(IdempotencyKeyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	order, err := h.orders.CreateOrder(c.UserContext(), middleware.UserID(c), services.CreateOrderRequest{
		Source:         source,
		IdempotencyKey: key,
	})
	if err != nil {
		var dup *services.DuplicateRequestError
		if errors.As(err, &dup) {
			return c.Status(fiber.StatusOK).JSON(dup.Order)
		}
		return writeError(c, "Could not create order", err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleListOrders returns a page of the caller's orders. Query parameters:
// status, from and to (RFC 3339), page and page_size.
func (h *CheckoutHandler) HandleListOrders(c *fiber.Ctx) error {
	filter := models.OrderFilter{
		Status:   models.OrderStatus(c.Query("status")),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 0),
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid '" + q.name + "' timestamp, expected RFC 3339",
				"error":   err.Error(),
			})
		}
		*q.dst = &t
	}

	page, err := h.orders.ListOrders(c.UserContext(), middleware.UserID(c), filter)
	if err != nil {
		return writeError(c, "Could not retrieve orders", err)
	}
	return c.JSON(page)
}

// HandleGetOrder returns one order with its items and event history.
func (h *CheckoutHandler) HandleGetOrder(c *fiber.Ctx) error {
	order, err := h.orders.GetOrder(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return writeError(c, "Could not retrieve order", err)
	}
	return c.JSON(order)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// HandleCancelOrder cancels a pending order and returns its stock.
func (h *CheckoutHandler) HandleCancelOrder(c *fiber.Ctx) error {
	var req cancelRequest
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, h.validate, &req); !ok {
			return err
		}
	}
	order, err := h.payments.CancelOrder(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Reason)
	if err != nil {
		return writeError(c, "Could not cancel order", err)
	}
	return c.JSON(order)
}

type createPaymentRequest struct {
	Provider string `json:"provider" validate:"required,max=32"`
}

// HandleCreatePayment opens a payment attempt for a pending order.
func (h *CheckoutHandler) HandleCreatePayment(c *fiber.Ctx) error {
	var req createPaymentRequest
	if ok, err := parseBody(c, h.validate, &req); !ok {
		return err
	}
	payment, err := h.payments.CreatePayment(c.UserContext(), middleware.UserID(c), c.Params("orderId"), req.Provider)
	if err != nil {
		return writeError(c, "Could not create payment", err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// HandleListPayments lists the payment attempts of an order.
func (h *CheckoutHandler) HandleListPayments(c *fiber.Ctx) error {
	payments, err := h.payments.GetPayments(c.UserContext(), middleware.UserID(c), c.Params("orderId"))
	if err != nil {
		return writeError(c, "Could not retrieve payments", err)
	}
	return c.JSON(payments)
}

// HandleGetPayment returns the status of one payment.
func (h *CheckoutHandler) HandleGetPayment(c *fiber.Ctx) error {
	payment, err := h.payments.GetPaymentStatus(c.UserContext(), middleware.UserID(c), c.Params("paymentId"))
	if err != nil {
		return writeError(c, "Could not retrieve payment", err)
	}
	return c.JSON(payment)
}
