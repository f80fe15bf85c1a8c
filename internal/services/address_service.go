package services

import (
	"context"
	"strings"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/juju/errors"
)

// AddressPatch holds the fields of a partial address update. Nil fields are kept.
type AddressPatch struct {
	StreetAddress    *string
	ApartmentAddress *string
	Country          *string
	Zip              *string
	AddressType      *models.AddressType
	Default          *bool
}

// AddressService manages the address book of a user.
type AddressService struct {
	repo repositories.AddressRepository
}

// NewAddressService creates a new AddressService.
func NewAddressService(repo repositories.AddressRepository) *AddressService {
	return &AddressService{repo: repo}
}

// ListAddresses returns the user's addresses, all of them when addressType is empty.
func (s *AddressService) ListAddresses(ctx context.Context, userID string, addressType models.AddressType) ([]models.Address, error) {
	return s.repo.List(ctx, userID, addressType)
}

// CreateAddress stores a new address owned by userID.
func (s *AddressService) CreateAddress(ctx context.Context, userID string, address *models.Address) error {
	address.ID = 0
	address.UserID = userID
	address.Country = strings.ToUpper(address.Country)
	return s.repo.Create(ctx, address)
}

// UpdateAddress applies patch to an address owned by userID.
func (s *AddressService) UpdateAddress(ctx context.Context, userID string, id uint, patch AddressPatch) (*models.Address, error) {
	address, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if patch.StreetAddress != nil {
		address.StreetAddress = *patch.StreetAddress
	}
	if patch.ApartmentAddress != nil {
		address.ApartmentAddress = *patch.ApartmentAddress
	}
	if patch.Country != nil {
		address.Country = strings.ToUpper(*patch.Country)
	}
	if patch.Zip != nil {
		address.Zip = *patch.Zip
	}
	if patch.AddressType != nil {
		address.AddressType = *patch.AddressType
	}
	if patch.Default != nil {
		address.Default = *patch.Default
	}
	if err := s.repo.Update(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

// DeleteAddress removes an address owned by userID.
func (s *AddressService) DeleteAddress(ctx context.Context, userID string, id uint) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *AddressService) owned(ctx context.Context, userID string, id uint) (*models.Address, error) {
	address, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if address.UserID != userID {
		return nil, errors.Forbiddenf("address %d of another user", id)
	}
	return address, nil
}
