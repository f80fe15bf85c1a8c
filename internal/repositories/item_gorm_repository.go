package repositories

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/juju/errors"
	"gorm.io/gorm"
)

// GORMItemRepository is a GORM implementation of ItemRepository.
type GORMItemRepository struct {
	db *gorm.DB
}

// NewGORMItemRepository creates a new instance of GORMItemRepository.
func NewGORMItemRepository(db *gorm.DB) *GORMItemRepository {
	return &GORMItemRepository{
		db: db,
	}
}

// GetAll retrieves all items, without their variations.
func (r *GORMItemRepository) GetAll(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	if err := r.db.WithContext(ctx).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to get all items: %w", err)
	}
	return items, nil
}

// GetByID retrieves a single item with its variations and their values.
func (r *GORMItemRepository) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	err := r.db.WithContext(ctx).
		Preload("Variations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Variations.ItemVariations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("item with ID %d", id)
		}
		return nil, fmt.Errorf("failed to get item by ID %d: %w", id, err)
	}
	return &item, nil
}

// GetBySlug retrieves a single item by slug with its variations and their values.
func (r *GORMItemRepository) GetBySlug(ctx context.Context, slug string) (*models.Item, error) {
	var item models.Item
	err := r.db.WithContext(ctx).
		Preload("Variations.ItemVariations").
		First(&item, "slug = ?", slug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("item %q", slug)
		}
		return nil, fmt.Errorf("failed to get item by slug %s: %w", slug, err)
	}
	return &item, nil
}
