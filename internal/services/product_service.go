package services

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// ProductService handles read access to the catalog.
type ProductService struct {
	repo repositories.ItemRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ItemRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all catalog items.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Item, error) {
	return s.repo.GetAll(ctx)
}

// GetProductByID retrieves a single item with its variations.
func (s *ProductService) GetProductByID(ctx context.Context, id uint) (*models.Item, error) {
	return s.repo.GetByID(ctx, id)
}
