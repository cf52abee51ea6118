package repositories

import (
	"context"
	"errors"
	"fmt"

	"toko-checkout/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepository defines the interface for cart data access.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	AddItem(ctx context.Context, userID, productID string, qty int) (*models.CartItem, error)
	// ListItems returns the entries of userID's cart whose IDs are listed.
	// IDs that are unknown or belong to another user are left out.
	ListItems(ctx context.Context, userID string, ids []string) ([]models.CartItem, error)
	DeleteItems(ctx context.Context, userID string, ids []string) error
}

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

// GetCart returns the user's cart with its items, creating an empty cart on
// first access.
func (r *GORMCartRepository) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := r.getOrCreate(r.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cart.ID).Order("created_at").Find(&cart.Items).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart items for user %s: %w", userID, TranslateError(err))
	}
	return cart, nil
}

// AddItem puts qty units of a product in the cart, adding to an existing line
// for the same product.
func (r *GORMCartRepository) AddItem(ctx context.Context, userID, productID string, qty int) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := r.getOrCreate(tx, userID)
		if err != nil {
			return err
		}
		err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error
		switch {
		case err == nil:
			item.Quantity += qty
			return tx.Model(&item).Update("quantity", item.Quantity).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.CartItem{
				ID:        uuid.New().String(),
				CartID:    cart.ID,
				UserID:    userID,
				ProductID: productID,
				Quantity:  qty,
			}
			return tx.Create(&item).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add product %s to cart of user %s: %w", productID, userID, TranslateError(err))
	}
	return &item, nil
}

// ListItems returns the listed items that belong to userID.
func (r *GORMCartRepository) ListItems(ctx context.Context, userID string, ids []string) ([]models.CartItem, error) {
	var items []models.CartItem
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items for user %s: %w", userID, TranslateError(err))
	}
	return items, nil
}

// DeleteItems removes the listed items from userID's cart. It fails unless
// every listed item was still there, so two checkouts of the same cart lines
// cannot both commit.
func (r *GORMCartRepository) DeleteItems(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Delete(&models.CartItem{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete cart items for user %s: %w", userID, TranslateError(res.Error))
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("deleted %d of %d cart items of user %s: %w", res.RowsAffected, len(ids), userID, ErrRecordNotFound)
	}
	return nil
}

func (r *GORMCartRepository) getOrCreate(db *gorm.DB, userID string) (*models.Cart, error) {
	cart := models.Cart{ID: uuid.New().String(), UserID: userID}
	// Concurrent first accesses race on the unique user_id index; DO NOTHING
	// lets the loser read the winner's row.
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).Create(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create cart for user %s: %w", userID, TranslateError(err))
	}
	var stored models.Cart
	if err := db.First(&stored, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to get cart for user %s: %w", userID, TranslateError(err))
	}
	return &stored, nil
}
