package services

import (
	"context"
	"errors"
	"time"

	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/repositories"

	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"
)

// CheckoutRequest carries the shopper's payment token and chosen addresses.
type CheckoutRequest struct {
	PaymentToken      string
	BillingAddressID  uint
	ShippingAddressID uint
}

// CheckoutOptions bounds the calls made to the payment processor.
type CheckoutOptions struct {
	// PaymentTimeout bounds every single processor call.
	PaymentTimeout time.Duration
	// ChargeStaleAfter is how long a charging order stays locked to its checkout.
	ChargeStaleAfter time.Duration
}

// CheckoutService turns a user's open order into a paid order.
type CheckoutService struct {
	orderRepo   repositories.OrderRepository
	addressRepo repositories.AddressRepository
	userRepo    repositories.UserRepository
	processor   payments.Processor
	publisher   EventPublisher
	opts        CheckoutOptions
	logger      *zap.Logger
	now         func() time.Time
}

// NewCheckoutService creates a new CheckoutService. publisher may be nil.
func NewCheckoutService(
	orderRepo repositories.OrderRepository,
	addressRepo repositories.AddressRepository,
	userRepo repositories.UserRepository,
	processor payments.Processor,
	publisher EventPublisher,
	opts CheckoutOptions,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		orderRepo:   orderRepo,
		addressRepo: addressRepo,
		userRepo:    userRepo,
		processor:   processor,
		publisher:   publisher,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// Checkout charges the open order of userID and marks it ordered.
//
// The order is moved to the charging state before the processor is contacted, so
// concurrent checkouts and cart mutations of the same order are rejected. A charge
// that definitely failed returns it to the open state and never creates a payment.
// When the outcome of the charge is unknown the order stays charging; a checkout
// after ChargeStaleAfter retries it with the same idempotency key.
func (s *CheckoutService) Checkout(ctx context.Context, userID string, req CheckoutRequest) (order *models.Order, err error) {
	defer func() { checkouts.WithLabelValues(checkoutResult(err)).Inc() }()

	open, err := s.orderRepo.GetOpenOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(open.Items) == 0 {
		return nil, jujuerrors.Annotatef(models.ErrEmptyCart, "order %d", open.ID)
	}
	billing, err := s.ownedAddress(ctx, userID, req.BillingAddressID, models.AddressBilling)
	if err != nil {
		return nil, err
	}
	shipping, err := s.ownedAddress(ctx, userID, req.ShippingAddressID, models.AddressShipping)
	if err != nil {
		return nil, err
	}

	frozen, err := s.orderRepo.BeginCharge(ctx, open.ID, s.now().Add(-s.opts.ChargeStaleAfter))
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("user_id", userID), zap.Uint("order_id", frozen.ID))

	customerID, err := s.ensureCustomer(ctx, userID, req.PaymentToken)
	if err != nil {
		s.abort(ctx, frozen, log)
		log.Info("checkout failed before charging", zap.Error(err))
		return nil, err
	}

	chargeID, err := s.chargeOrder(ctx, frozen, customerID)
	if err != nil {
		var perr *payments.Error
		if errors.As(err, &perr) && perr.Kind == payments.KindIndeterminate {
			log.Warn("charge outcome unknown, order stays charging", zap.Error(err))
			return nil, err
		}
		s.abort(ctx, frozen, log)
		log.Info("checkout failed", zap.Error(err))
		return nil, err
	}

	order, err = s.orderRepo.CompleteCharge(context.WithoutCancel(ctx), frozen.ID, repositories.ChargeCompletion{
		Attempt:           frozen.ChargeAttempt,
		ChargeID:          chargeID,
		Amount:            frozen.Total(),
		BillingAddressID:  billing.ID,
		ShippingAddressID: shipping.ID,
	})
	if err != nil {
		// The shopper has been charged; the order stays charging until someone reconciles it.
		log.Error("charge succeeded but order could not be completed", zap.String("charge_id", chargeID), zap.Error(err))
		return nil, err
	}
	log.Info("order placed", zap.String("charge_id", chargeID), zap.String("amount", frozen.Total().StringFixed(2)))

	s.publishOrdered(order, log)
	return order, nil
}

func (s *CheckoutService) abort(ctx context.Context, frozen *models.Order, log *zap.Logger) {
	if err := s.orderRepo.AbortCharge(context.WithoutCancel(ctx), frozen.ID, frozen.ChargeAttempt); err != nil {
		log.Error("failed to reopen order after failed charge", zap.Error(err))
	}
}

func (s *CheckoutService) ownedAddress(ctx context.Context, userID string, id uint, addressType models.AddressType) (*models.Address, error) {
	address, err := s.addressRepo.GetByID(ctx, id)
	if err != nil {
		if jujuerrors.Is(err, jujuerrors.NotFound) {
			return nil, jujuerrors.Annotatef(models.ErrAddressNotFound, "address %d", id)
		}
		return nil, err
	}
	if address.UserID != userID || address.AddressType != addressType {
		return nil, jujuerrors.Annotatef(models.ErrAddressNotFound, "%s address %d of user %s", addressType, id, userID)
	}
	return address, nil
}

// ensureCustomer makes sure the processor knows the user as a customer with
// token as a payment source and returns the processor customer id.
func (s *CheckoutService) ensureCustomer(ctx context.Context, userID, token string) (string, error) {
	profile, err := s.userRepo.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.ProcessorCustomerID != "" {
		_, err := s.withTimeout(ctx, func(ctx context.Context) (string, error) {
			return "", s.processor.AttachSource(ctx, profile.ProcessorCustomerID, token)
		})
		return profile.ProcessorCustomerID, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	customerID, err := s.withTimeout(ctx, func(ctx context.Context) (string, error) {
		return s.processor.CreateCustomer(ctx, user.Email, token)
	})
	if err != nil {
		return "", err
	}
	profile.ProcessorCustomerID = customerID
	profile.OneClickPurchasing = true
	if err := s.userRepo.SaveProfile(ctx, profile); err != nil {
		return "", err
	}
	return customerID, nil
}

// chargeOrder charges the frozen order total under the order's idempotency key.
func (s *CheckoutService) chargeOrder(ctx context.Context, order *models.Order, customerID string) (string, error) {
	if len(order.Items) == 0 {
		return "", jujuerrors.Annotatef(models.ErrEmptyCart, "order %d", order.ID)
	}

	start := s.now()
	chargeID, err := s.withTimeout(ctx, func(ctx context.Context) (string, error) {
		return s.processor.Charge(ctx, payments.ChargeRequest{
			AmountMinor:    order.AmountMinorUnits(),
			Currency:       models.Currency,
			CustomerID:     customerID,
			IdempotencyKey: order.ChargeKey,
		})
	})
	chargeDuration.Observe(time.Since(start).Seconds())
	return chargeID, err
}

func (s *CheckoutService) withTimeout(ctx context.Context, call func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	defer cancel()
	return call(ctx)
}

func (s *CheckoutService) publishOrdered(order *models.Order, log *zap.Logger) {
	if s.publisher == nil {
		return
	}
	event := newOrderPlacedEvent(order, s.now())
	if err := publishJSON(s.publisher, OrdersExchange, OrderOrderedKey, event); err != nil {
		log.Warn("failed to publish order event", zap.Error(err))
	}
}

func checkoutResult(err error) string {
	var perr *payments.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &perr):
		return string(perr.Kind)
	case errors.Is(err, models.ErrCheckoutInProgress):
		return "in_progress"
	default:
		return "rejected"
	}
}
