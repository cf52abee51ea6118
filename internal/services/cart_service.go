package services

import (
	"context"
	"errors"
	"fmt"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
)

// CartService manages the persistent per-user cart.
type CartService struct {
	cartRepo    repositories.CartRepository
	productRepo repositories.ProductRepository
}

// NewCartService creates a new CartService.
func NewCartService(cartRepo repositories.CartRepository, productRepo repositories.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

// GetCart returns the user's cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.cartRepo.GetCart(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

// AddItem puts an active product in the cart. Stock is not reserved; it is
// checked at preview and locked at order creation.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, qty int) (*models.CartItem, error) {
	if qty < 1 {
		return nil, invalidRequest("quantity must be at least 1")
	}
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, classify(err)
	}
	if !product.IsActive() {
		return nil, invalidRequest("product %s is not active", productID)
	}
	item, err := s.cartRepo.AddItem(ctx, userID, productID, qty)
	if err != nil {
		return nil, classify(err)
	}
	return item, nil
}

// RemoveItem deletes one entry from the user's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	if err := s.cartRepo.DeleteItems(ctx, userID, []string{itemID}); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return fmt.Errorf("%w: cart item %s", ErrNotFound, itemID)
		}
		return classify(err)
	}
	return nil
}
