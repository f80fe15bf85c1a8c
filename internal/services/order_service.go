package services

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/juju/errors"
	"go.uber.org/zap"
)

// CartItemKey names an order item in the open order: either by id, or by item slug
// plus variation selection. A nil Variations leaves the selection unspecified.
type CartItemKey struct {
	OrderItemID uint
	Slug        string
	Variations  []uint
}

// OrderService handles business logic of the open order (the cart).
type OrderService struct {
	orderRepo  repositories.OrderRepository
	itemRepo   repositories.ItemRepository
	couponRepo repositories.CouponRepository
	logger     *zap.Logger
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo repositories.OrderRepository, itemRepo repositories.ItemRepository, couponRepo repositories.CouponRepository, logger *zap.Logger) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		itemRepo:   itemRepo,
		couponRepo: couponRepo,
		logger:     logger,
	}
}

// AddToCart adds one unit of the item configured by variations to the user's open order.
func (s *OrderService) AddToCart(ctx context.Context, userID, slug string, variations []uint) (orderItem *models.OrderItem, err error) {
	defer func() { cartMutations.WithLabelValues("add", resultLabel(err)).Inc() }()

	item, err := s.itemRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	selection, err := validateSelection(item, variations)
	if err != nil {
		return nil, err
	}
	orderItem, err = s.orderRepo.AddItem(ctx, userID, item.ID, selection)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("item added to cart",
		zap.String("user_id", userID),
		zap.String("slug", slug),
		zap.Uint("order_item_id", orderItem.ID),
		zap.Int("quantity", orderItem.Quantity))
	return orderItem, nil
}

// validateSelection checks that variations names exactly one value of every variation of item.
func validateSelection(item *models.Item, variations []uint) ([]uint, error) {
	selection := models.NormalizeSelection(variations)
	variationOf := make(map[uint]uint)
	for _, v := range item.Variations {
		for _, iv := range v.ItemVariations {
			variationOf[iv.ID] = v.ID
		}
	}

	chosen := make(map[uint]bool, len(selection))
	for _, id := range selection {
		variationID, ok := variationOf[id]
		if !ok {
			return nil, errors.Annotatef(models.ErrInvalidSelection, "variation value %d is not offered for %s", id, item.Slug)
		}
		if chosen[variationID] {
			return nil, errors.Annotatef(models.ErrInvalidSelection, "several values of variation %d for %s", variationID, item.Slug)
		}
		chosen[variationID] = true
	}
	if len(chosen) < len(item.Variations) {
		return nil, errors.Annotatef(models.ErrInvalidSelection, "%s needs %d variations, got %d", item.Slug, len(item.Variations), len(chosen))
	}
	return selection, nil
}

// DecrementOrRemove takes one unit of the keyed order item out of the cart. The
// returned order item has Quantity 0 once it is removed.
func (s *OrderService) DecrementOrRemove(ctx context.Context, userID string, key CartItemKey) (orderItem *models.OrderItem, err error) {
	defer func() { cartMutations.WithLabelValues("decrement", resultLabel(err)).Inc() }()

	match := repositories.OrderItemMatch{OrderItemID: key.OrderItemID}
	if key.OrderItemID == 0 {
		item, err := s.itemRepo.GetBySlug(ctx, key.Slug)
		if err != nil {
			return nil, err
		}
		match.ItemID = item.ID
		if key.Variations != nil {
			match.Selection = models.NormalizeSelection(key.Variations)
		}
	}
	return s.orderRepo.DecrementItem(ctx, userID, match)
}

// DeleteOrderItem removes an order item owned by userID from its open order.
func (s *OrderService) DeleteOrderItem(ctx context.Context, userID string, orderItemID uint) (err error) {
	defer func() { cartMutations.WithLabelValues("delete", resultLabel(err)).Inc() }()

	orderItem, err := s.orderRepo.GetOrderItem(ctx, orderItemID)
	if err != nil {
		return err
	}
	if orderItem.UserID != userID {
		return errors.Forbiddenf("order item %d of another user", orderItemID)
	}
	if orderItem.Ordered {
		return errors.Forbiddenf("order item %d was already ordered", orderItemID)
	}
	return s.orderRepo.DeleteOrderItem(ctx, orderItemID)
}

// OrderSummary returns the open order of a user.
func (s *OrderService) OrderSummary(ctx context.Context, userID string) (*models.Order, error) {
	return s.orderRepo.GetOpenOrder(ctx, userID)
}

// ApplyCoupon attaches the coupon with code to the user's open order.
func (s *OrderService) ApplyCoupon(ctx context.Context, userID, code string) (order *models.Order, err error) {
	defer func() { cartMutations.WithLabelValues("coupon", resultLabel(err)).Inc() }()

	if _, err := s.orderRepo.GetOpenOrder(ctx, userID); err != nil {
		return nil, err
	}
	coupon, err := s.couponRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	order, err = s.orderRepo.SetCoupon(ctx, userID, coupon.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to apply coupon %s: %w", code, err)
	}
	return order, nil
}
