package repositories

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	conflictAttempts = 5
	conflictDelay    = 10 * time.Millisecond
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
//
// The open order of a user is protected by the idx_orders_one_open partial
// unique index. Cart mutations lock that order row first, which serializes
// concurrent requests of the same user; order items are additionally unique
// per (order, item, selection key).
type GORMOrderRepository struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db:    db,
		clock: clock.WallClock,
	}
}

func preloadOrder(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Item").
		Preload("Items.ItemVariations.Variation").
		Preload("Coupon").
		Preload("Payment")
}

// GetByID retrieves an order with items, coupon and payment.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := preloadOrder(r.db.WithContext(ctx)).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("order with ID %d", id)
		}
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return &order, nil
}

// GetOpenOrder retrieves the open order of a user with items and coupon.
func (r *GORMOrderRepository) GetOpenOrder(ctx context.Context, userID string) (*models.Order, error) {
	var order models.Order
	err := preloadOrder(r.db.WithContext(ctx)).
		Where("user_id = ? AND ordered = ?", userID, false).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Annotatef(models.ErrNoActiveOrder, "user %s", userID)
		}
		return nil, fmt.Errorf("failed to get open order of user %s: %w", userID, err)
	}
	return &order, nil
}

// lockOpenOrder selects the open order row FOR UPDATE inside tx.
func lockOpenOrder(tx *gorm.DB, userID string) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND ordered = ?", userID, false).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Annotatef(models.ErrNoActiveOrder, "user %s", userID)
		}
		return nil, err
	}
	return &order, nil
}

// lockMutableOpenOrder is lockOpenOrder for cart mutations: a charging order is frozen.
func lockMutableOpenOrder(tx *gorm.DB, userID string) (*models.Order, error) {
	order, err := lockOpenOrder(tx, userID)
	if err != nil {
		return nil, err
	}
	if order.State == models.OrderStateCharging {
		return nil, errors.Annotatef(models.ErrCheckoutInProgress, "order %d", order.ID)
	}
	return order, nil
}

// retryOnConflict runs fn until it stops failing with a duplicate key or a
// vanished open order. Both mean another request won a race on the same user.
func (r *GORMOrderRepository) retryOnConflict(ctx context.Context, fn func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: fn,
		IsFatalError: func(err error) bool {
			return !errors.Is(err, gorm.ErrDuplicatedKey) && !errors.Is(err, models.ErrNoActiveOrder)
		},
		Attempts: conflictAttempts,
		Delay:    conflictDelay,
		Clock:    r.clock,
		Stop:     ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) {
		return retry.LastError(err)
	}
	return err
}

// FindOrCreateOpenOrder returns the open order of a user, creating it when missing.
// A creator that loses the race against the unique index retries as a lookup.
func (r *GORMOrderRepository) FindOrCreateOpenOrder(ctx context.Context, userID string) (*models.Order, error) {
	var order *models.Order
	err := r.retryOnConflict(ctx, func() error {
		var err error
		order, err = r.findOrCreateOnce(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find or create open order of user %s: %w", userID, err)
	}
	return order, nil
}

func (r *GORMOrderRepository) findOrCreateOnce(ctx context.Context, userID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("user_id = ? AND ordered = ?", userID, false).First(&order).Error
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	order = models.Order{
		UserID:      userID,
		State:       models.OrderStateOpen,
		OrderedDate: r.clock.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// AddItem puts one unit of (item, selection) into the user's open order, creating
// the order and the order item as needed.
func (r *GORMOrderRepository) AddItem(ctx context.Context, userID string, itemID uint, selection []uint) (*models.OrderItem, error) {
	key := models.SelectionKey(selection)
	var orderItemID uint
	err := r.retryOnConflict(ctx, func() error {
		if _, err := r.findOrCreateOnce(ctx, userID); err != nil {
			return err
		}
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			order, err := lockMutableOpenOrder(tx, userID)
			if err != nil {
				return err
			}

			var existing models.OrderItem
			err = tx.Where("order_id = ? AND item_id = ? AND selection_key = ?", order.ID, itemID, key).
				First(&existing).Error
			if err == nil {
				orderItemID = existing.ID
				return tx.Model(&existing).Update("quantity", gorm.Expr("quantity + ?", 1)).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			var variations []models.ItemVariation
			if len(selection) > 0 {
				if err := tx.Find(&variations, models.NormalizeSelection(selection)).Error; err != nil {
					return err
				}
			}
			orderItem := models.OrderItem{
				OrderID:        order.ID,
				ItemID:         itemID,
				SelectionKey:   key,
				UserID:         userID,
				Quantity:       1,
				ItemVariations: variations,
			}
			if err := tx.Omit("Item").Create(&orderItem).Error; err != nil {
				return err
			}
			orderItemID = orderItem.ID
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add item %d to cart of user %s: %w", itemID, userID, err)
	}
	return r.GetOrderItem(ctx, orderItemID)
}

// DecrementItem removes one unit of the matched order item. The returned item has
// Quantity 0 when it was removed from the order.
func (r *GORMOrderRepository) DecrementItem(ctx context.Context, userID string, match OrderItemMatch) (*models.OrderItem, error) {
	var result models.OrderItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockMutableOpenOrder(tx, userID)
		if err != nil {
			return err
		}

		query := tx.Where("order_id = ?", order.ID)
		if match.OrderItemID != 0 {
			query = query.Where("id = ?", match.OrderItemID)
		} else {
			query = query.Where("item_id = ?", match.ItemID)
			if match.Selection != nil {
				query = query.Where("selection_key = ?", models.SelectionKey(match.Selection))
			}
		}
		var candidates []models.OrderItem
		if err := query.Limit(2).Find(&candidates).Error; err != nil {
			return err
		}
		switch len(candidates) {
		case 0:
			return errors.Annotatef(models.ErrItemNotInCart, "order %d", order.ID)
		case 1:
		default:
			return errors.Annotatef(models.ErrAmbiguousItem, "item %d in order %d", match.ItemID, order.ID)
		}

		result = candidates[0]
		if result.Quantity > 1 {
			result.Quantity--
			return tx.Model(&result).Update("quantity", gorm.Expr("quantity - ?", 1)).Error
		}
		result.Quantity = 0
		return deleteOrderItem(tx, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrement cart item of user %s: %w", userID, err)
	}
	return &result, nil
}

func deleteOrderItem(tx *gorm.DB, orderItem *models.OrderItem) error {
	if err := tx.Model(orderItem).Association("ItemVariations").Clear(); err != nil {
		return err
	}
	return tx.Delete(&models.OrderItem{}, "id = ?", orderItem.ID).Error
}

// GetOrderItem retrieves an order item with its item and variations.
func (r *GORMOrderRepository) GetOrderItem(ctx context.Context, id uint) (*models.OrderItem, error) {
	var orderItem models.OrderItem
	err := r.db.WithContext(ctx).
		Preload("Item").
		Preload("ItemVariations.Variation").
		First(&orderItem, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundf("order item with ID %d", id)
		}
		return nil, fmt.Errorf("failed to get order item %d: %w", id, err)
	}
	return &orderItem, nil
}

// DeleteOrderItem removes an order item of an open order outright.
func (r *GORMOrderRepository) DeleteOrderItem(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orderItem models.OrderItem
		if err := tx.First(&orderItem, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFoundf("order item with ID %d", id)
			}
			return err
		}
		order, err := lockMutableOpenOrder(tx, orderItem.UserID)
		if err != nil {
			if errors.Is(err, models.ErrNoActiveOrder) {
				return errors.Forbiddenf("order item %d belongs to a placed order", id)
			}
			return err
		}
		if order.ID != orderItem.OrderID {
			return errors.Forbiddenf("order item %d belongs to a placed order", id)
		}
		return deleteOrderItem(tx, &orderItem)
	})
	if err != nil {
		return fmt.Errorf("failed to delete order item %d: %w", id, err)
	}
	return nil
}

// SetCoupon attaches a coupon to the user's open order, replacing any previous one.
func (r *GORMOrderRepository) SetCoupon(ctx context.Context, userID string, couponID uint) (*models.Order, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockMutableOpenOrder(tx, userID)
		if err != nil {
			return err
		}
		return tx.Model(order).Update("coupon_id", couponID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set coupon on order of user %s: %w", userID, err)
	}
	return r.GetOpenOrder(ctx, userID)
}

// BeginCharge moves an open order to the charging state and returns the frozen
// order, whose ChargeAttempt identifies this checkout. A charging order whose
// charge started before staleBefore is taken over and keeps its ChargeKey.
func (r *GORMOrderRepository) BeginCharge(ctx context.Context, orderID uint, staleBefore time.Time) (*models.Order, error) {
	attempt := uuid.NewString()
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND ordered = ?", orderID, false).
		Where("state = ? OR (state = ? AND charge_started_at < ?)", models.OrderStateOpen, models.OrderStateCharging, staleBefore).
		Updates(map[string]interface{}{
			"state":             models.OrderStateCharging,
			"charge_started_at": r.clock.Now(),
			"charge_attempt":    attempt,
			"charge_key":        gorm.Expr("CASE WHEN charge_key = '' THEN ? ELSE charge_key END", uuid.NewString()),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to start charging order %d: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errors.Annotatef(models.ErrCheckoutInProgress, "order %d", orderID)
	}
	order, err := r.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ChargeAttempt != attempt {
		return nil, errors.Annotatef(models.ErrCheckoutInProgress, "order %d was taken over", orderID)
	}
	return order, nil
}

// AbortCharge returns a charging order to the open state after a charge that
// definitely failed. It does nothing but report ErrCheckoutInProgress when
// another checkout has taken the order over.
func (r *GORMOrderRepository) AbortCharge(ctx context.Context, orderID uint, attempt string) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND state = ? AND charge_attempt = ?", orderID, models.OrderStateCharging, attempt).
		Updates(map[string]interface{}{
			"state":             models.OrderStateOpen,
			"charge_started_at": nil,
			"charge_attempt":    "",
			"charge_key":        "",
		})
	if res.Error != nil {
		return fmt.Errorf("failed to abort charge of order %d: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Annotatef(models.ErrCheckoutInProgress, "charge attempt %s no longer owns order %d", attempt, orderID)
	}
	return nil
}

// CompleteCharge records the payment and places the order in one transaction:
// the payment row, the order flags and addresses, and every order item flag.
func (r *GORMOrderRepository) CompleteCharge(ctx context.Context, orderID uint, completion ChargeCompletion) (*models.Order, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND state = ? AND charge_attempt = ?", orderID, models.OrderStateCharging, completion.Attempt).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Annotatef(models.ErrCheckoutInProgress, "order %d is not charged by attempt %s", orderID, completion.Attempt)
			}
			return err
		}

		payment := models.Payment{
			ProcessorChargeID: completion.ChargeID,
			UserID:            order.UserID,
			Amount:            completion.Amount,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		err = tx.Model(&order).Updates(map[string]interface{}{
			"ordered":             true,
			"state":               models.OrderStateOrdered,
			"payment_id":          payment.ID,
			"billing_address_id":  completion.BillingAddressID,
			"shipping_address_id": completion.ShippingAddressID,
			"charge_started_at":   nil,
			"charge_attempt":      "",
		}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Update("ordered", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete charge %s of order %d: %w", completion.ChargeID, orderID, err)
	}
	return r.GetByID(ctx, orderID)
}
