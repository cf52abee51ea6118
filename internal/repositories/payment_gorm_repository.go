package repositories

import (
	"context"
	"fmt"

	"toko-checkout/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository defines the interface for payment data access.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	LockByID(ctx context.Context, id string) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
}

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{db: db}
}

// Create inserts a new payment attempt.
func (r *GORMPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentInit
	}
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment for order %s: %w", payment.OrderID, TranslateError(err))
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *GORMPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment by ID %s: %w", id, TranslateError(err))
	}
	return &payment, nil
}

// LockByID reads a payment under a row lock.
func (r *GORMPaymentRepository) LockByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment %s: %w", id, TranslateError(err))
	}
	return &payment, nil
}

// ListByOrder returns every payment attempt of an order, oldest first.
func (r *GORMPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at, id").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments of order %s: %w", orderID, TranslateError(err))
	}
	return payments, nil
}

// Update stores the outcome fields of a payment.
func (r *GORMPaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]any{
		"status":       payment.Status,
		"provider_ref": payment.ProviderRef,
		"reason":       payment.Reason,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update payment %s: %w", payment.ID, TranslateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment with ID %s not found for update: %w", payment.ID, ErrRecordNotFound)
	}
	return nil
}
