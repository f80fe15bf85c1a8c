package models

import "github.com/juju/errors"

// Domain errors shared by repositories, services and handlers.
// Callers test for them with errors.Is.
const (
	ErrNoActiveOrder      = errors.ConstError("you do not have an active order")
	ErrItemNotInCart      = errors.ConstError("this item was not in your cart")
	ErrInvalidSelection   = errors.ConstError("please specify the required variations")
	ErrAmbiguousItem      = errors.ConstError("several variations of this item are in your cart, specify which one")
	ErrCouponNotFound     = errors.ConstError("this coupon does not exist")
	ErrAddressNotFound    = errors.ConstError("address not found")
	ErrEmptyCart          = errors.ConstError("your cart is empty")
	ErrCheckoutInProgress = errors.ConstError("a checkout for this order is already in progress")
)
