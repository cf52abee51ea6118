package models

import "github.com/shopspring/decimal"

// SourceKind names where the items of a checkout come from.
type SourceKind string

const (
	SourceCart   SourceKind = "CART"
	SourceDirect SourceKind = "DIRECT"
)

// ItemSource is either a CartSource or a DirectSource. The unexported method
// keeps other types from satisfying it.
type ItemSource interface {
	Kind() SourceKind
	isItemSource()
}

// CartSource selects entries of the caller's persistent cart.
type CartSource struct {
	CartItemIDs []string
}

// DirectSource is a "buy now" list of products and quantities.
type DirectSource struct {
	Items []DirectItem
}

// DirectItem is one requested product in direct mode.
type DirectItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

func (CartSource) Kind() SourceKind   { return SourceCart }
func (DirectSource) Kind() SourceKind { return SourceDirect }
func (CartSource) isItemSource()      {}
func (DirectSource) isItemSource()    {}

// CheckoutItem is a priced, stock-annotated line computed for a session
// preview or inside the order transaction. It is never persisted.
type CheckoutItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Stock       int             `json:"stock"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Available   bool            `json:"available"`
	Reason      string          `json:"reason,omitempty"`
}

// CheckoutBreakdown is the cost summary of a session.
// TotalAmount = SubTotal + ShippingCost - Discount.
type CheckoutBreakdown struct {
	SubTotal     decimal.Decimal `json:"sub_total"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Discount     decimal.Decimal `json:"discount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// NewBreakdown derives the total from its parts.
func NewBreakdown(subTotal, shipping, discount decimal.Decimal) CheckoutBreakdown {
	return CheckoutBreakdown{
		SubTotal:     subTotal,
		ShippingCost: shipping,
		Discount:     discount,
		TotalAmount:  subTotal.Add(shipping).Sub(discount),
	}
}

// CheckoutSession is a point-in-time preview; it may be stale by the time an
// order is created.
type CheckoutSession struct {
	Source    SourceKind        `json:"source"`
	Items     []CheckoutItem    `json:"items"`
	Breakdown CheckoutBreakdown `json:"breakdown"`
	Valid     bool              `json:"valid"`
}
