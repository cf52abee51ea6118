package services_test

import (
	"context"
	"fmt"
	"testing"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
	"toko-checkout/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProductService_GetAllProducts(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	expectedProducts := []models.Product{
		{ID: "1", Name: "Product A", Price: price("10.00"), Stock: 100},
		{ID: "2", Name: "Product B", Price: price("20.00"), Stock: 50},
	}

	mockRepo.On("GetAll", mock.Anything).Return(expectedProducts, nil).Once()

	products, err := service.GetAllProducts(context.Background())

	assert.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, expectedProducts, products)
	mockRepo.AssertExpectations(t)
}

func TestProductService_GetProductByID(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	expectedProduct := &models.Product{ID: "1", Name: "Product A", Price: price("10.00"), Stock: 100}

	// Test successful retrieval
	mockRepo.On("GetByID", mock.Anything, "1").Return(expectedProduct, nil).Once()
	product, err := service.GetProductByID(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, expectedProduct, product)
	mockRepo.AssertExpectations(t)

	// Test product not found
	mockRepo.On("GetByID", mock.Anything, "99").Return(nil, fmt.Errorf("product 99: %w", repositories.ErrRecordNotFound)).Once()
	product, err = service.GetProductByID(context.Background(), "99")
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Nil(t, product)
	mockRepo.AssertExpectations(t)
}

func TestProductService_CreateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	newProduct := &models.Product{Name: "New Product", Price: price("50.00"), Stock: 20}

	// Test successful creation
	mockRepo.On("Create", mock.Anything, newProduct).Return(nil).Once()
	err := service.CreateProduct(context.Background(), newProduct)
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)

	// Test creation failure (e.g., database error)
	mockRepo.On("Create", mock.Anything, newProduct).Return(fmt.Errorf("database error")).Once()
	err = service.CreateProduct(context.Background(), newProduct)
	assert.ErrorIs(t, err, services.ErrInternal)
	assert.Contains(t, err.Error(), "database error")
	mockRepo.AssertExpectations(t)
}

func TestProductService_CreateProductValidation(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	invalid := []*models.Product{
		{Price: price("1.00"), Stock: 1},
		{Name: "Negative price", Price: price("-1.00"), Stock: 1},
		{Name: "Negative stock", Price: price("1.00"), Stock: -1},
		{Name: "Odd status", Price: price("1.00"), Stock: 1, Status: "archived"},
	}
	for _, p := range invalid {
		assert.ErrorIs(t, service.CreateProduct(context.Background(), p), services.ErrInvalidRequest, p.Name)
	}
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProductService_UpdateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	updatedProduct := &models.Product{ID: "1", Name: "Product A Updated", Price: price("12.00"), Stock: 95}

	// Test successful update
	mockRepo.On("Update", mock.Anything, updatedProduct).Return(nil).Once()
	err := service.UpdateProduct(context.Background(), updatedProduct)
	assert.NoError(t, err)
	assert.Equal(t, models.ProductActive, updatedProduct.Status)
	mockRepo.AssertExpectations(t)

	// Test update failure (e.g., product not found in repo)
	missing := &models.Product{ID: "99", Name: "NonExistent", Price: price("1.00"), Stock: 1}
	mockRepo.On("Update", mock.Anything, missing).Return(fmt.Errorf("product with ID 99 not found for update: %w", repositories.ErrRecordNotFound)).Once()
	err = service.UpdateProduct(context.Background(), missing)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Contains(t, err.Error(), "not found for update")
	mockRepo.AssertExpectations(t)
}

func TestProductService_DeleteProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo)

	// Test successful deletion
	mockRepo.On("Delete", mock.Anything, "1").Return(nil).Once()
	err := service.DeleteProduct(context.Background(), "1")
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)

	// Test deletion failure (e.g., product not found)
	mockRepo.On("Delete", mock.Anything, "99").Return(fmt.Errorf("product with ID 99 not found for deletion: %w", repositories.ErrRecordNotFound)).Once()
	err = service.DeleteProduct(context.Background(), "99")
	assert.ErrorIs(t, err, services.ErrNotFound)
	mockRepo.AssertExpectations(t)
}
