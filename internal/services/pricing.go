package services

import (
	"context"

	"toko-checkout/internal/models"

	"github.com/shopspring/decimal"
)

// PricingPolicy computes shipping and discount for a priced item list. It
// must be deterministic for the same input; it runs both for previews and
// inside the order transaction.
type PricingPolicy interface {
	Adjustments(ctx context.Context, userID string, items []models.CheckoutItem, subTotal decimal.Decimal) (shipping, discount decimal.Decimal, err error)
}

// ZeroPricing charges no shipping and grants no discount.
type ZeroPricing struct{}

func (ZeroPricing) Adjustments(context.Context, string, []models.CheckoutItem, decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

// FlatShipping charges a fixed shipping fee per order.
type FlatShipping struct {
	Fee decimal.Decimal
}

func (p FlatShipping) Adjustments(context.Context, string, []models.CheckoutItem, decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	return p.Fee, decimal.Zero, nil
}

// NewPricingPolicy picks FlatShipping when fee is positive.
func NewPricingPolicy(fee decimal.Decimal) PricingPolicy {
	if fee.IsPositive() {
		return FlatShipping{Fee: fee}
	}
	return ZeroPricing{}
}

func breakdown(ctx context.Context, policy PricingPolicy, userID string, items []models.CheckoutItem) (models.CheckoutBreakdown, error) {
	subTotal := decimal.Zero
	for _, item := range items {
		subTotal = subTotal.Add(item.LineTotal)
	}
	shipping, discount, err := policy.Adjustments(ctx, userID, items, subTotal)
	if err != nil {
		return models.CheckoutBreakdown{}, err
	}
	return models.NewBreakdown(subTotal, shipping, discount), nil
}
