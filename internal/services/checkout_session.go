package services

import (
	"context"
	"fmt"
	"sort"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"

	"github.com/shopspring/decimal"
)

// Reasons reported on unavailable preview lines.
const (
	ReasonNotFound          = "product not found"
	ReasonInactive          = "product is not active"
	ReasonInsufficientStock = "insufficient stock"
)

// CheckoutService prices an item source without writing or locking anything.
type CheckoutService struct {
	productRepo repositories.ProductRepository
	cartRepo    repositories.CartRepository
	pricing     PricingPolicy
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(productRepo repositories.ProductRepository, cartRepo repositories.CartRepository, pricing PricingPolicy) *CheckoutService {
	if pricing == nil {
		pricing = ZeroPricing{}
	}
	return &CheckoutService{
		productRepo: productRepo,
		cartRepo:    cartRepo,
		pricing:     pricing,
	}
}

// PreviewSession resolves source into priced, stock-annotated lines. Missing,
// inactive or understocked products are reported on their line and make the
// session invalid. The result is a point-in-time estimate.
func (s *CheckoutService) PreviewSession(ctx context.Context, userID string, source models.ItemSource) (*models.CheckoutSession, error) {
	resolved, err := resolveSource(ctx, s.cartRepo, userID, source)
	if err != nil {
		return nil, err
	}

	products, err := s.productRepo.GetByIDs(ctx, resolved.productIDs())
	if err != nil {
		return nil, classify(err)
	}
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	session := &models.CheckoutSession{Source: source.Kind(), Valid: true}
	found := 0
	for _, line := range resolved.lines {
		product, ok := byID[line.ProductID]
		if !ok {
			session.Items = append(session.Items, models.CheckoutItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Reason:    ReasonNotFound,
			})
			session.Valid = false
			continue
		}
		found++
		item := priceLine(&product, line.Quantity)
		switch {
		case !product.IsActive():
			item.Reason = ReasonInactive
		case line.Quantity > product.Stock:
			item.Reason = ReasonInsufficientStock
		default:
			item.Available = true
		}
		if !item.Available {
			session.Valid = false
		}
		session.Items = append(session.Items, item)
	}
	if found == 0 {
		return nil, invalidRequest("no items to price")
	}

	available := make([]models.CheckoutItem, 0, len(session.Items))
	for _, item := range session.Items {
		if item.Reason != ReasonNotFound {
			available = append(available, item)
		}
	}
	session.Breakdown, err = breakdown(ctx, s.pricing, userID, available)
	if err != nil {
		return nil, fmt.Errorf("%w: pricing policy: %w", ErrInternal, err)
	}
	return session, nil
}

func priceLine(product *models.Product, qty int) models.CheckoutItem {
	return models.CheckoutItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Price:       product.Price,
		Quantity:    qty,
		Stock:       product.Stock,
		LineTotal:   product.Price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// requestedLine is one product to buy after a source has been resolved.
type requestedLine struct {
	ProductID string
	Quantity  int
}

type resolvedSource struct {
	// lines holds one entry per distinct product, sorted by product ID. The
	// order is the lock acquisition order.
	lines []requestedLine
	// cartItemIDs holds the distinct cart entries consumed in cart mode.
	cartItemIDs []string
}

func (r resolvedSource) productIDs() []string {
	ids := make([]string, len(r.lines))
	for i, l := range r.lines {
		ids[i] = l.ProductID
	}
	return ids
}

// resolveSource turns an item source into distinct product lines. Cart IDs
// that are unknown or belong to another user are reported as not found.
func resolveSource(ctx context.Context, carts repositories.CartRepository, userID string, source models.ItemSource) (resolvedSource, error) {
	var requested []requestedLine
	var cartItemIDs []string

	switch src := source.(type) {
	case models.CartSource:
		cartItemIDs = dedupe(src.CartItemIDs)
		if len(cartItemIDs) == 0 {
			return resolvedSource{}, invalidRequest("cart mode requires at least one cart item id")
		}
		items, err := carts.ListItems(ctx, userID, cartItemIDs)
		if err != nil {
			return resolvedSource{}, classify(err)
		}
		if len(items) != len(cartItemIDs) {
			return resolvedSource{}, fmt.Errorf("%w: %d of %d cart items not found in cart", ErrNotFound, len(cartItemIDs)-len(items), len(cartItemIDs))
		}
		for _, item := range items {
			requested = append(requested, requestedLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	case models.DirectSource:
		if len(src.Items) == 0 {
			return resolvedSource{}, invalidRequest("direct mode requires at least one item")
		}
		for _, item := range src.Items {
			if item.ProductID == "" {
				return resolvedSource{}, invalidRequest("product id is required")
			}
			if item.Quantity < 1 {
				return resolvedSource{}, invalidRequest("quantity for product %s must be at least 1", item.ProductID)
			}
			requested = append(requested, requestedLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	default:
		return resolvedSource{}, invalidRequest("item source is required")
	}

	lines := mergeLines(requested)
	if len(lines) == 0 {
		return resolvedSource{}, invalidRequest("no items to price")
	}
	return resolvedSource{lines: lines, cartItemIDs: cartItemIDs}, nil
}

// mergeLines sums quantities per product and sorts by product ID.
func mergeLines(requested []requestedLine) []requestedLine {
	qty := make(map[string]int, len(requested))
	for _, r := range requested {
		qty[r.ProductID] += r.Quantity
	}
	lines := make([]requestedLine, 0, len(qty))
	for id, q := range qty {
		lines = append(lines, requestedLine{ProductID: id, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
