package services_test

import (
	"context"
	"testing"

	"storefront/internal/database"
	"storefront/internal/database/dbtest"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// store is a seeded SQLite database with GORM repositories on top.
type store struct {
	db        *gorm.DB
	items     *repositories.GORMItemRepository
	orders    *repositories.GORMOrderRepository
	coupons   *repositories.GORMCouponRepository
	addresses *repositories.GORMAddressRepository
	users     *repositories.GORMUserRepository
}

func newStore(t *testing.T) *store {
	t.Helper()
	db := dbtest.New(t)
	require.NoError(t, database.SeedCatalog(db))
	return &store{
		db:        db,
		items:     repositories.NewGORMItemRepository(db),
		orders:    repositories.NewGORMOrderRepository(db),
		coupons:   repositories.NewGORMCouponRepository(db),
		addresses: repositories.NewGORMAddressRepository(db),
		users:     repositories.NewGORMUserRepository(db),
	}
}

func (s *store) item(t *testing.T, slug string) *models.Item {
	t.Helper()
	item, err := s.items.GetBySlug(context.Background(), slug)
	require.NoError(t, err)
	return item
}

// variation returns the id of the value of the named variation of item.
func variation(t *testing.T, item *models.Item, name, value string) uint {
	t.Helper()
	for _, v := range item.Variations {
		if v.Name != name {
			continue
		}
		for _, iv := range v.ItemVariations {
			if iv.Value == value {
				return iv.ID
			}
		}
	}
	t.Fatalf("%s has no %s=%s", item.Slug, name, value)
	return 0
}

func (s *store) user(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "hashed"}
	require.NoError(t, s.users.Create(context.Background(), user))
	return user
}

func (s *store) address(t *testing.T, userID string, addressType models.AddressType) *models.Address {
	t.Helper()
	address := &models.Address{
		UserID:        userID,
		StreetAddress: "1 Main St",
		Country:       "US",
		Zip:           "10001",
		AddressType:   addressType,
	}
	require.NoError(t, s.addresses.Create(context.Background(), address))
	return address
}
