package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
	"toko-checkout/pkg/metrics"
)

// PaymentService records payment attempts and is the only writer that moves
// an order out of pending_payment.
type PaymentService struct {
	store       repositories.TxManager
	metrics     *metrics.Metrics
	topic       string
	lockTimeout time.Duration
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(store repositories.TxManager, m *metrics.Metrics, topic string, lockTimeout time.Duration) *PaymentService {
	if topic == "" {
		topic = DefaultEventTopic
	}
	return &PaymentService{store: store, metrics: m, topic: topic, lockTimeout: lockTimeout}
}

func (s *PaymentService) inTx(ctx context.Context, fn func(tx repositories.Repos) error) error {
	return classify(s.store.WithinTransaction(ctx, repositories.TxOptions{LockTimeout: s.lockTimeout}, fn))
}

// lockOwnedOrder locks an order and checks that userID owns it. An empty
// userID skips the ownership check.
func lockOwnedOrder(ctx context.Context, tx repositories.Repos, userID, orderID string) (*models.Order, error) {
	order, err := tx.Orders().LockByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}
	if userID != "" && order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", ErrForbidden, orderID)
	}
	return order, nil
}

// CreatePayment opens a payment attempt for the full amount of a pending
// order.
func (s *PaymentService) CreatePayment(ctx context.Context, userID, orderID, provider string) (*models.Payment, error) {
	if provider == "" {
		return nil, invalidRequest("provider is required")
	}
	var payment *models.Payment
	err := s.inTx(ctx, func(tx repositories.Repos) error {
		order, err := lockOwnedOrder(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.StatusPendingPayment {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.ID, order.Status)
		}
		payment = &models.Payment{
			OrderID:  order.ID,
			UserID:   order.UserID,
			Provider: provider,
			Amount:   order.TotalAmount,
			Status:   models.PaymentInit,
		}
		return tx.Payments().Create(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Payment %s opened for order %s via %s", payment.ID, orderID, provider)
	return payment, nil
}

// GetPaymentStatus returns one of userID's payments.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, userID, paymentID string) (*models.Payment, error) {
	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, classify(err)
	}
	if payment.UserID != userID {
		return nil, fmt.Errorf("%w: payment %s belongs to another user", ErrForbidden, paymentID)
	}
	return payment, nil
}

// GetPayments lists the payment attempts of one of userID's orders.
func (s *PaymentService) GetPayments(ctx context.Context, userID, orderID string) ([]models.Payment, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", ErrForbidden, orderID)
	}
	payments, err := s.store.Payments().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}

// ApplyPaymentResult settles a payment reported by the provider. Success pays
// the order; failure cancels it and returns its stock. A result for a payment
// that is already settled changes nothing. A success that arrives after the
// order left pending_payment is recorded on the payment and reported as
// ErrInvalidState.
func (s *PaymentService) ApplyPaymentResult(ctx context.Context, result models.PaymentResult) (*models.Payment, error) {
	if result.PaymentID == "" {
		return nil, invalidRequest("payment id is required")
	}
	current, err := s.store.Payments().GetByID(ctx, result.PaymentID)
	if err != nil {
		return nil, classify(err)
	}

	var payment *models.Payment
	var late, replay bool
	err = s.inTx(ctx, func(tx repositories.Repos) error {
		// Order before payment, the same order CreatePayment locks in.
		order, err := lockOwnedOrder(ctx, tx, "", current.OrderID)
		if err != nil {
			return err
		}
		payment, err = tx.Payments().LockByID(ctx, result.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentInit {
			replay = true
			return nil
		}

		payment.ProviderRef = result.ProviderRef
		payment.Reason = result.Reason
		if result.Succeeded {
			payment.Status = models.PaymentSucceeded
		} else {
			payment.Status = models.PaymentFailed
		}
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}

		if order.Status != models.StatusPendingPayment {
			late = result.Succeeded
			return nil
		}
		meta := models.Metadata{"payment_id": payment.ID, "provider": payment.Provider}
		if payment.ProviderRef != "" {
			meta["provider_ref"] = payment.ProviderRef
		}
		if result.Succeeded {
			_, err = appendEvent(ctx, tx, s.topic, order, models.EventOrderPaid, meta)
			return err
		}
		if payment.Reason != "" {
			meta["reason"] = payment.Reason
		}
		_, err = appendEvent(ctx, tx, s.topic, order, models.EventOrderCancelled, meta)
		return err
	})
	if err != nil {
		s.metrics.ObservePaymentResult("error")
		log.Printf("Failed to apply result of payment %s: %v", result.PaymentID, err)
		return nil, err
	}
	if replay {
		s.metrics.ObservePaymentResult("replay")
		return payment, nil
	}
	if late {
		s.metrics.ObservePaymentResult("late")
		log.Printf("Payment %s succeeded after order %s left pending_payment; refund required", payment.ID, payment.OrderID)
		return payment, fmt.Errorf("%w: order %s is no longer awaiting payment", ErrInvalidState, payment.OrderID)
	}
	s.metrics.ObservePaymentResult(string(payment.Status))
	return payment, nil
}

// CancelOrder cancels one of userID's pending orders and returns its stock.
// Cancelling an already cancelled order is a no-op.
func (s *PaymentService) CancelOrder(ctx context.Context, userID, orderID, reason string) (*models.Order, error) {
	if userID == "" {
		return nil, invalidRequest("user id is required")
	}
	return s.finish(ctx, userID, orderID, models.EventOrderCancelled, models.StatusCancelled, reason)
}

// ExpireOrder expires a pending order whose payment window has passed and
// returns its stock. Expiring an already expired order is a no-op.
func (s *PaymentService) ExpireOrder(ctx context.Context, orderID, reason string) (*models.Order, error) {
	return s.finish(ctx, "", orderID, models.EventOrderExpired, models.StatusExpired, reason)
}

func (s *PaymentService) finish(ctx context.Context, userID, orderID string, eventType models.EventType, target models.OrderStatus, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.inTx(ctx, func(tx repositories.Repos) error {
		var err error
		order, err = lockOwnedOrder(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status == target {
			return nil
		}
		if order.Status != models.StatusPendingPayment {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.ID, order.Status)
		}
		meta := models.Metadata{}
		if reason != "" {
			meta["reason"] = reason
		}
		_, err = appendEvent(ctx, tx, s.topic, order, eventType, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Order %s is %s", order.ID, order.Status)
	return order, nil
}
