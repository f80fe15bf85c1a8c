package repositories

import (
	"context"

	"storefront/internal/models"
)

// ItemRepository defines read access to the catalog.
type ItemRepository interface {
	GetAll(ctx context.Context) ([]models.Item, error)
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	GetBySlug(ctx context.Context, slug string) (*models.Item, error)
}
