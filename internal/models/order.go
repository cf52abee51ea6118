package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the cached projection of an order's event log.
type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusCancelled      OrderStatus = "cancelled"
	StatusExpired        OrderStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPaid, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

func (s OrderStatus) String() string {
	return string(s)
}

// EventType is the kind of an OrderEvent.
type EventType string

const (
	EventOrderCreated   EventType = "ORDER_CREATED"
	EventOrderPaid      EventType = "ORDER_PAID"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventOrderExpired   EventType = "ORDER_EXPIRED"
)

// ErrIllegalTransition is returned when an event cannot be applied to the
// order's current status.
var ErrIllegalTransition = errors.New("illegal order status transition")

// transitions maps (current status, event) to the resulting status.
// The empty status is the state before the order exists.
var transitions = map[OrderStatus]map[EventType]OrderStatus{
	"": {
		EventOrderCreated: StatusPendingPayment,
	},
	StatusPendingPayment: {
		EventOrderPaid:      StatusPaid,
		EventOrderCancelled: StatusCancelled,
		EventOrderExpired:   StatusExpired,
	},
}

// Transition returns the status produced by applying ev to current.
func Transition(current OrderStatus, ev EventType) (OrderStatus, error) {
	next, ok := transitions[current][ev]
	if !ok {
		return current, fmt.Errorf("%w: %s cannot follow status %q", ErrIllegalTransition, ev, current)
	}
	return next, nil
}

// DeriveStatus replays an event log in Seq order.
func DeriveStatus(events []OrderEvent) (OrderStatus, error) {
	ordered := make([]OrderEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	var status OrderStatus
	for _, e := range ordered {
		next, err := Transition(status, e.EventType)
		if err != nil {
			return status, err
		}
		status = next
	}
	return status, nil
}

// Order is a customer order. Status and the lifecycle timestamps are only
// written through ApplyEvent.
type Order struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string          `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_orders_user_idem,priority:1;index"`
	IdempotencyKey string          `json:"idempotency_key" gorm:"type:varchar(128);not null;uniqueIndex:idx_orders_user_idem,priority:2"`
	Status         OrderStatus     `json:"status" gorm:"type:varchar(32);not null;index"`
	Source         SourceKind      `json:"source" gorm:"type:varchar(16);not null"`
	SubTotal       decimal.Decimal `json:"sub_total" gorm:"type:decimal(12,2);not null"`
	ShippingCost   decimal.Decimal `json:"shipping_cost" gorm:"type:decimal(12,2);not null"`
	Discount       decimal.Decimal `json:"discount" gorm:"type:decimal(12,2);not null"`
	TotalAmount    decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	Items          []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	Events         []OrderEvent    `json:"events,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt      time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time       `json:"updated_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	ExpiredAt      *time.Time      `json:"expired_at,omitempty"`
}

// ApplyEvent moves the order to the status implied by e and stamps the
// matching timestamp.
func (o *Order) ApplyEvent(e *OrderEvent) error {
	next, err := Transition(o.Status, e.EventType)
	if err != nil {
		return err
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
		e.CreatedAt = at
	}
	switch e.EventType {
	case EventOrderPaid:
		o.PaidAt = &at
	case EventOrderCancelled:
		o.CancelledAt = &at
	case EventOrderExpired:
		o.ExpiredAt = &at
	}
	e.OrderID = o.ID
	o.Status = next
	return nil
}

// OrderItem is an immutable price snapshot of one purchased product.
type OrderItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"order_id" gorm:"type:varchar(36);not null;index"`
	ProductID   string          `json:"product_id" gorm:"type:varchar(36);not null;index"`
	ProductName string          `json:"product_name" gorm:"type:varchar(100);not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,2);not null"`
	Quantity    int             `json:"quantity" gorm:"not null;check:quantity > 0"`
	LineTotal   decimal.Decimal `json:"line_total" gorm:"type:decimal(12,2);not null"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderEvent is an append-only lifecycle record. Rows are never updated or
// deleted. Seq numbers the events of one order from 1 and fixes their
// replay order.
type OrderEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID   string    `json:"order_id" gorm:"type:varchar(36);not null;index;uniqueIndex:idx_order_events_seq,priority:1"`
	Seq       int       `json:"seq" gorm:"not null;uniqueIndex:idx_order_events_seq,priority:2"`
	EventType EventType `json:"event_type" gorm:"type:varchar(32);not null"`
	Metadata  Metadata  `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Status   OrderStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
