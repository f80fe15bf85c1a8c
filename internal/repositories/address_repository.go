package repositories

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/juju/errors"
	"gorm.io/gorm"
)

// AddressRepository defines the interface for address book data access.
type AddressRepository interface {
	List(ctx context.Context, userID string, addressType models.AddressType) ([]models.Address, error)
	GetByID(ctx context.Context, id uint) (*models.Address, error)
	Create(ctx context.Context, address *models.Address) error
	Update(ctx context.Context, address *models.Address) error
	Delete(ctx context.Context, id uint) error
}

// GORMAddressRepository is a GORM implementation of AddressRepository.
type GORMAddressRepository struct {
	db *gorm.DB
}

// NewGORMAddressRepository creates a new instance of GORMAddressRepository.
func NewGORMAddressRepository(db *gorm.DB) *GORMAddressRepository {
	return &GORMAddressRepository{db: db}
}

// List returns the addresses of a user, optionally restricted to one type.
func (r *GORMAddressRepository) List(ctx context.Context, userID string, addressType models.AddressType) ([]models.Address, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if addressType != "" {
		query = query.Where("address_type = ?", addressType)
	}
	var addresses []models.Address
	if err := query.Order("id").Find(&addresses).Error; err != nil {
		return nil, fmt.Errorf("failed to list addresses of user %s: %w", userID, err)
	}
	return addresses, nil
}

// GetByID retrieves a single address regardless of its owner.
func (r *GORMAddressRepository) GetByID(ctx context.Context, id uint) (*models.Address, error) {
	var address models.Address
	if err := r.db.WithContext(ctx).First(&address, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("address with ID %d", id)
		}
		return nil, fmt.Errorf("failed to get address %d: %w", id, err)
	}
	return &address, nil
}

// Create inserts an address. A default address clears the default flag of the
// owner's other addresses of the same type.
func (r *GORMAddressRepository) Create(ctx context.Context, address *models.Address) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(address).Error; err != nil {
			return err
		}
		return clearOtherDefaults(tx, address)
	})
	if err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}
	return nil
}

// Update saves every field of an existing address.
func (r *GORMAddressRepository) Update(ctx context.Context, address *models.Address) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Save(address)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.NotFoundf("address with ID %d", address.ID)
		}
		return clearOtherDefaults(tx, address)
	})
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}
	return nil
}

// Delete soft-deletes an address. Orders keep referencing it.
func (r *GORMAddressRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Address{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete address: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundf("address with ID %d", id)
	}
	return nil
}

func clearOtherDefaults(tx *gorm.DB, address *models.Address) error {
	if !address.Default {
		return nil
	}
	return tx.Model(&models.Address{}).
		Where("user_id = ? AND address_type = ? AND id <> ?", address.UserID, address.AddressType, address.ID).
		Update("is_default", false).Error
}
