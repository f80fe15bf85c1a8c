package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/database"
	"storefront/internal/database/dbtest"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type catalog struct {
	tee    models.Item
	jacket models.Item
	size   map[string]uint
	color  map[string]uint
}

func seedCatalog(t *testing.T, db *gorm.DB) catalog {
	t.Helper()
	require.NoError(t, database.SeedCatalog(db))

	items := repositories.NewGORMItemRepository(db)
	tee, err := items.GetBySlug(context.Background(), "classic-tee")
	require.NoError(t, err)
	jacket, err := items.GetBySlug(context.Background(), "running-jacket")
	require.NoError(t, err)

	c := catalog{tee: *tee, jacket: *jacket, size: map[string]uint{}, color: map[string]uint{}}
	for _, v := range jacket.Variations {
		for _, iv := range v.ItemVariations {
			switch v.Name {
			case "size":
				c.size[iv.Value] = iv.ID
			case "color":
				c.color[iv.Value] = iv.ID
			}
		}
	}
	return c
}

func createAddresses(t *testing.T, db *gorm.DB, userID string) (billing, shipping uint) {
	t.Helper()
	repo := repositories.NewGORMAddressRepository(db)
	b := models.Address{UserID: userID, StreetAddress: "1 Main St", Country: "US", Zip: "10001", AddressType: models.AddressBilling}
	s := models.Address{UserID: userID, StreetAddress: "2 Side St", Country: "US", Zip: "10002", AddressType: models.AddressShipping}
	require.NoError(t, repo.Create(context.Background(), &b))
	require.NoError(t, repo.Create(context.Background(), &s))
	return b.ID, s.ID
}

func TestOrderRepository_AddItemMergesSameSelection(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)
	ctx := context.Background()

	first, err := repo.AddItem(ctx, "u1", c.jacket.ID, []uint{c.size["M"], c.color["black"]})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Quantity)
	assert.Len(t, first.ItemVariations, 2)
	assert.Equal(t, "Running Jacket", first.Item.Title)

	// Selection order does not matter.
	second, err := repo.AddItem(ctx, "u1", c.jacket.ID, []uint{c.color["black"], c.size["M"]})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Quantity)

	other, err := repo.AddItem(ctx, "u1", c.jacket.ID, []uint{c.size["L"], c.color["black"]})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	order, err := repo.GetOpenOrder(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, 1, order.Items[1].Quantity)
	assert.True(t, decimal.RequireFromString("207").Equal(order.Total()), order.Total().String())
}

func TestOrderRepository_ConcurrentAddItem(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddItem(context.Background(), "u1", c.tee.ID, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Where("user_id = ?", "u1").Count(&orders).Error)
	assert.Equal(t, int64(1), orders)

	order, err := repo.GetOpenOrder(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, n, order.Items[0].Quantity)
}

func TestOrderRepository_DecrementItem(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)
	ctx := context.Background()

	_, err := repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{ItemID: c.tee.ID})
	assert.ErrorIs(t, err, models.ErrNoActiveOrder)

	_, err = repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)
	added, err := repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)

	_, err = repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{ItemID: c.jacket.ID})
	assert.ErrorIs(t, err, models.ErrItemNotInCart)

	left, err := repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{ItemID: c.tee.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, left.Quantity)

	gone, err := repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{OrderItemID: added.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, gone.Quantity)

	_, err = repo.GetOrderItem(ctx, added.ID)
	assert.True(t, errors.Is(err, errors.NotFound))

	order, err := repo.GetOpenOrder(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, order.Items)
}

func TestOrderRepository_DecrementItemAmbiguous(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)
	ctx := context.Background()

	black := []uint{c.size["M"], c.color["black"]}
	orange := []uint{c.size["M"], c.color["orange"]}
	_, err := repo.AddItem(ctx, "u1", c.jacket.ID, black)
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, "u1", c.jacket.ID, orange)
	require.NoError(t, err)

	_, err = repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{ItemID: c.jacket.ID})
	assert.ErrorIs(t, err, models.ErrAmbiguousItem)

	removed, err := repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{ItemID: c.jacket.ID, Selection: orange})
	require.NoError(t, err)
	assert.Equal(t, 0, removed.Quantity)

	var joins int64
	require.NoError(t, db.Table("order_item_variations").Where("order_item_id = ?", removed.ID).Count(&joins).Error)
	assert.Zero(t, joins)

	_, err = repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{ItemID: c.jacket.ID, Selection: []uint{}})
	assert.ErrorIs(t, err, models.ErrItemNotInCart)
}

func TestOrderRepository_SetCoupon(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)
	coupons := repositories.NewGORMCouponRepository(db)
	ctx := context.Background()

	coupon, err := coupons.GetByCode(ctx, "WELCOME5")
	require.NoError(t, err)

	_, err = repo.SetCoupon(ctx, "u1", coupon.ID)
	assert.ErrorIs(t, err, models.ErrNoActiveOrder)

	_, err = repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)
	order, err := repo.SetCoupon(ctx, "u1", coupon.ID)
	require.NoError(t, err)
	require.NotNil(t, order.Coupon)
	assert.Equal(t, "WELCOME5", order.Coupon.Code)
	assert.True(t, decimal.RequireFromString("14.99").Equal(order.Total()))
}

func TestOrderRepository_ChargeLifecycle(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)
	ctx := context.Background()

	billing, shipping := createAddresses(t, db, "u1")
	added, err := repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)

	order, err := repo.BeginCharge(ctx, added.OrderID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateCharging, order.State)
	assert.NotEmpty(t, order.ChargeAttempt)
	assert.NotEmpty(t, order.ChargeKey)
	require.Len(t, order.Items, 1)

	_, err = repo.BeginCharge(ctx, added.OrderID, time.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	_, err = repo.AddItem(ctx, "u1", c.tee.ID, nil)
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)
	_, err = repo.DecrementItem(ctx, "u1", repositories.OrderItemMatch{ItemID: c.tee.ID})
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	require.NoError(t, repo.AbortCharge(ctx, added.OrderID, order.ChargeAttempt))
	_, err = repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)

	// A definitely failed charge does not hand its key to the next attempt.
	retried, err := repo.BeginCharge(ctx, added.OrderID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, order.ChargeKey, retried.ChargeKey)
	assert.NotEqual(t, order.ChargeAttempt, retried.ChargeAttempt)

	_, err = repo.CompleteCharge(ctx, added.OrderID, repositories.ChargeCompletion{
		Attempt:           order.ChargeAttempt,
		ChargeID:          "ch_0",
		Amount:            decimal.RequireFromString("39.98"),
		BillingAddressID:  billing,
		ShippingAddressID: shipping,
	})
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	placed, err := repo.CompleteCharge(ctx, added.OrderID, repositories.ChargeCompletion{
		Attempt:           retried.ChargeAttempt,
		ChargeID:          "ch_1",
		Amount:            decimal.RequireFromString("39.98"),
		BillingAddressID:  billing,
		ShippingAddressID: shipping,
	})
	require.NoError(t, err)
	assert.True(t, placed.Ordered)
	assert.Equal(t, models.OrderStateOrdered, placed.State)
	require.NotNil(t, placed.Payment)
	assert.Equal(t, "ch_1", placed.Payment.ProcessorChargeID)
	assert.Equal(t, "u1", placed.Payment.UserID)
	require.NotNil(t, placed.BillingAddressID)
	assert.Equal(t, billing, *placed.BillingAddressID)
	for _, item := range placed.Items {
		assert.True(t, item.Ordered)
	}

	_, err = repo.GetOpenOrder(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNoActiveOrder)

	// The next add starts a fresh order.
	next, err := repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, added.OrderID, next.OrderID)
	assert.Equal(t, 1, next.Quantity)
}

func TestOrderRepository_BeginChargeTakesOverStaleCharge(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)
	ctx := context.Background()

	added, err := repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)
	first, err := repo.BeginCharge(ctx, added.OrderID, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = repo.BeginCharge(ctx, added.OrderID, time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	second, err := repo.BeginCharge(ctx, added.OrderID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, first.ChargeAttempt, second.ChargeAttempt)
	assert.Equal(t, first.ChargeKey, second.ChargeKey)

	// The checkout that was taken over can neither reopen nor complete the order.
	err = repo.AbortCharge(ctx, added.OrderID, first.ChargeAttempt)
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)
	_, err = repo.AddItem(ctx, "u1", c.tee.ID, nil)
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	billing, shipping := createAddresses(t, db, "u1")
	_, err = repo.CompleteCharge(ctx, added.OrderID, repositories.ChargeCompletion{
		Attempt:           first.ChargeAttempt,
		ChargeID:          "ch_late",
		Amount:            decimal.RequireFromString("19.99"),
		BillingAddressID:  billing,
		ShippingAddressID: shipping,
	})
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	placed, err := repo.CompleteCharge(ctx, added.OrderID, repositories.ChargeCompletion{
		Attempt:           second.ChargeAttempt,
		ChargeID:          "ch_1",
		Amount:            decimal.RequireFromString("19.99"),
		BillingAddressID:  billing,
		ShippingAddressID: shipping,
	})
	require.NoError(t, err)
	assert.True(t, placed.Ordered)
	assert.Empty(t, placed.ChargeAttempt)

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)
}

func TestOrderRepository_DeleteOrderItem(t *testing.T) {
	db := dbtest.New(t)
	c := seedCatalog(t, db)
	repo := repositories.NewGORMOrderRepository(db)
	ctx := context.Background()
	billing, shipping := createAddresses(t, db, "u1")

	added, err := repo.AddItem(ctx, "u1", c.jacket.ID, []uint{c.size["S"], c.color["orange"]})
	require.NoError(t, err)
	require.NoError(t, repo.DeleteOrderItem(ctx, added.ID))

	err = repo.DeleteOrderItem(ctx, added.ID)
	assert.True(t, errors.Is(err, errors.NotFound))

	placed, err := repo.AddItem(ctx, "u1", c.tee.ID, nil)
	require.NoError(t, err)
	charging, err := repo.BeginCharge(ctx, placed.OrderID, time.Now())
	require.NoError(t, err)
	_, err = repo.CompleteCharge(ctx, placed.OrderID, repositories.ChargeCompletion{
		Attempt:           charging.ChargeAttempt,
		ChargeID:          "ch_2",
		Amount:            decimal.NewFromInt(1),
		BillingAddressID:  billing,
		ShippingAddressID: shipping,
	})
	require.NoError(t, err)

	err = repo.DeleteOrderItem(ctx, placed.ID)
	assert.True(t, errors.Is(err, errors.Forbidden))
}
