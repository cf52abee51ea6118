package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the state of one payment attempt.
type PaymentStatus string

const (
	PaymentInit      PaymentStatus = "init"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment records an attempt to pay an order through a provider.
type Payment struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"order_id" gorm:"type:varchar(36);not null;index"`
	UserID      string          `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Provider    string          `json:"provider" gorm:"type:varchar(32);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Status      PaymentStatus   `json:"status" gorm:"type:varchar(16);not null"`
	ProviderRef string          `json:"provider_ref,omitempty" gorm:"type:varchar(128)"`
	Reason      string          `json:"reason,omitempty" gorm:"type:varchar(255)"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PaymentResult is what a provider reports back, either through the webhook
// or the payment.results queue.
type PaymentResult struct {
	PaymentID   string `json:"payment_id" validate:"required"`
	Succeeded   bool   `json:"succeeded"`
	ProviderRef string `json:"provider_ref"`
	Reason      string `json:"reason"`
}
