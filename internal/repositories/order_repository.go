package repositories

import (
	"context"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// OrderItemMatch identifies an order item inside a user's open order.
// OrderItemID wins when set. Otherwise ItemID is required and Selection, when
// non-nil, must equal the item's variation selection exactly; a nil Selection
// matches any selection but must resolve to a single order item.
type OrderItemMatch struct {
	OrderItemID uint
	ItemID      uint
	Selection   []uint
}

// ChargeCompletion carries the result of a successful charge into the order.
// Attempt is the ChargeAttempt returned by BeginCharge.
type ChargeCompletion struct {
	Attempt           string
	ChargeID          string
	Amount            decimal.Decimal
	BillingAddressID  uint
	ShippingAddressID uint
}

// OrderRepository defines the interface for cart and order data access.
// Every mutating method is a single transaction.
type OrderRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetOpenOrder(ctx context.Context, userID string) (*models.Order, error)
	FindOrCreateOpenOrder(ctx context.Context, userID string) (*models.Order, error)
	AddItem(ctx context.Context, userID string, itemID uint, selection []uint) (*models.OrderItem, error)
	DecrementItem(ctx context.Context, userID string, match OrderItemMatch) (*models.OrderItem, error)
	GetOrderItem(ctx context.Context, id uint) (*models.OrderItem, error)
	DeleteOrderItem(ctx context.Context, id uint) error
	SetCoupon(ctx context.Context, userID string, couponID uint) (*models.Order, error)
	BeginCharge(ctx context.Context, orderID uint, staleBefore time.Time) (*models.Order, error)
	AbortCharge(ctx context.Context, orderID uint, attempt string) error
	CompleteCharge(ctx context.Context, orderID uint, completion ChargeCompletion) (*models.Order, error)
}
