package services

import (
	"context"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
)

// ProductService handles business logic related to products.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return products, nil
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return product, nil
}

// CreateProduct creates a new product.
func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	return classify(s.repo.Create(ctx, product))
}

// UpdateProduct updates an existing product. Orders already placed keep the
// price they were placed at.
func (s *ProductService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	if product.Status == "" {
		product.Status = models.ProductActive
	}
	return classify(s.repo.Update(ctx, product))
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	return classify(s.repo.Delete(ctx, id))
}

func validateProduct(p *models.Product) error {
	if p.Name == "" {
		return invalidRequest("product name is required")
	}
	if p.Price.IsNegative() {
		return invalidRequest("price must not be negative")
	}
	if p.Stock < 0 {
		return invalidRequest("stock must not be negative")
	}
	if p.Status != "" && p.Status != models.ProductActive && p.Status != models.ProductInactive {
		return invalidRequest("unknown product status %q", p.Status)
	}
	return nil
}
