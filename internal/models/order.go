package models

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState tracks an order through checkout.
type OrderState string

const (
	OrderStateOpen     OrderState = "open"
	OrderStateCharging OrderState = "charging"
	OrderStateOrdered  OrderState = "ordered"
)

// Currency is the only currency the shop charges in.
const Currency = "usd"

// OrderItem is a configured item inside a user's order.
// While unordered it is identified by (order, item, selection key).
type OrderItem struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	OrderID        uint            `json:"order_id" gorm:"not null;uniqueIndex:idx_order_item_selection"`
	ItemID         uint            `json:"item_id" gorm:"not null;uniqueIndex:idx_order_item_selection"`
	SelectionKey   string          `json:"-" gorm:"type:varchar(255);not null;uniqueIndex:idx_order_item_selection"`
	UserID         string          `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Item           Item            `json:"item"`
	ItemVariations []ItemVariation `json:"item_variations" gorm:"many2many:order_item_variations;"`
	Ordered        bool            `json:"ordered" gorm:"not null"`
	Quantity       int             `json:"quantity" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FinalPrice is the line total for the item quantity.
func (oi *OrderItem) FinalPrice() decimal.Decimal {
	return oi.Item.UnitPrice().Mul(decimal.NewFromInt(int64(oi.Quantity)))
}

// AmountSaved is how much the discount price saves on this line.
func (oi *OrderItem) AmountSaved() decimal.Decimal {
	if !oi.Item.DiscountPrice.Valid {
		return decimal.Zero
	}
	return oi.Item.Price.Sub(oi.Item.DiscountPrice.Decimal).Mul(decimal.NewFromInt(int64(oi.Quantity)))
}

// Order groups a user's order items. A user has at most one order with Ordered=false.
type Order struct {
	ID                uint        `json:"id" gorm:"primaryKey"`
	UserID            string      `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Ordered           bool        `json:"ordered" gorm:"not null"`
	State             OrderState  `json:"state" gorm:"type:varchar(16);not null"`
	ChargeStartedAt   *time.Time  `json:"-"`
	// ChargeAttempt names the checkout that currently owns a charging order.
	ChargeAttempt     string      `json:"-" gorm:"type:varchar(36);not null;default:''"`
	// ChargeKey is the processor idempotency key. It is kept when a stale charge
	// is taken over and cleared once a charge definitely failed.
	ChargeKey         string      `json:"-" gorm:"type:varchar(36);not null;default:''"`
	Items             []OrderItem `json:"items" gorm:"constraint:OnDelete:CASCADE"`
	CouponID          *uint       `json:"coupon_id"`
	Coupon            *Coupon     `json:"coupon,omitempty"`
	PaymentID         *uint       `json:"payment_id" gorm:"uniqueIndex"`
	Payment           *Payment    `json:"payment,omitempty"`
	BillingAddressID  *uint       `json:"billing_address_id"`
	BillingAddress    *Address    `json:"billing_address,omitempty"`
	ShippingAddressID *uint       `json:"shipping_address_id"`
	ShippingAddress   *Address    `json:"shipping_address,omitempty"`
	OrderedDate       time.Time   `json:"ordered_date"`
	BeingDelivered    bool        `json:"being_delivered" gorm:"not null"`
	Received          bool        `json:"received" gorm:"not null"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Subtotal sums the final price of every order item.
func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].FinalPrice())
	}
	return total
}

// Total is the subtotal adjusted by the coupon, never below zero.
func (o *Order) Total() decimal.Decimal {
	total := o.Subtotal()
	if o.Coupon != nil {
		total = o.Coupon.Apply(total)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// AmountMinorUnits is the total in cents, as the payment processor expects it.
func (o *Order) AmountMinorUnits() int64 {
	return o.Total().Shift(2).Round(0).IntPart()
}

// CouponKind selects how a coupon amount is applied.
type CouponKind string

const (
	CouponFlat    CouponKind = "flat"
	CouponPercent CouponKind = "percent"
)

// Coupon is a discount code that can be attached to an open order.
type Coupon struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Code      string          `json:"code" gorm:"type:varchar(15);uniqueIndex;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Kind      CouponKind      `json:"kind" gorm:"type:varchar(8);not null"`
	CreatedAt time.Time       `json:"created_at"`
}

// Apply returns total reduced by the coupon. Unknown kinds are treated as flat.
func (c *Coupon) Apply(total decimal.Decimal) decimal.Decimal {
	discount := c.Amount
	if c.Kind == CouponPercent {
		discount = total.Mul(c.Amount).Div(decimal.NewFromInt(100)).Round(2)
	}
	if discount.GreaterThan(total) {
		return decimal.Zero
	}
	return total.Sub(discount)
}

// Payment records a successful charge at the payment processor.
type Payment struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	ProcessorChargeID string          `json:"processor_charge_id" gorm:"type:varchar(50);uniqueIndex;not null"`
	UserID            string          `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	CreatedAt         time.Time       `json:"timestamp"`
}

// SelectionKey canonicalizes a variation selection: sorted, de-duplicated ids joined by ",".
func SelectionKey(ids []uint) string {
	sorted := NormalizeSelection(ids)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// NormalizeSelection returns a sorted copy of ids without duplicates.
func NormalizeSelection(ids []uint) []uint {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
