package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockProcessor is a mock implementation of payments.Processor
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) CreateCustomer(ctx context.Context, email, token string) (string, error) {
	args := m.Called(ctx, email, token)
	return args.String(0), args.Error(1)
}

func (m *MockProcessor) AttachSource(ctx context.Context, customerID, token string) error {
	args := m.Called(ctx, customerID, token)
	return args.Error(0)
}

func (m *MockProcessor) Charge(ctx context.Context, req payments.ChargeRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(exchange, routingKey string, body []byte) error {
	args := m.Called(exchange, routingKey, body)
	return args.Error(0)
}

type checkoutFixture struct {
	*store
	processor *MockProcessor
	publisher *MockPublisher
	cart      *services.OrderService
	checkout  *services.CheckoutService
	user      *models.User
	billing   *models.Address
	shipping  *models.Address
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	s := newStore(t)
	f := &checkoutFixture{
		store:     s,
		processor: new(MockProcessor),
		publisher: new(MockPublisher),
		cart:      newOrderService(s),
	}
	f.checkout = services.NewCheckoutService(s.orders, s.addresses, s.users, f.processor, f.publisher, services.CheckoutOptions{
		PaymentTimeout:   time.Second,
		ChargeStaleAfter: time.Minute,
	}, zap.NewNop())
	f.user = s.user(t, "alice")
	f.billing = s.address(t, f.user.ID, models.AddressBilling)
	f.shipping = s.address(t, f.user.ID, models.AddressShipping)
	return f
}

func (f *checkoutFixture) request(token string) services.CheckoutRequest {
	return services.CheckoutRequest{
		PaymentToken:      token,
		BillingAddressID:  f.billing.ID,
		ShippingAddressID: f.shipping.ID,
	}
}

func (f *checkoutFixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.cart.AddToCart(ctx, f.user.ID, "classic-tee", nil)
		require.NoError(t, err)
	}
	_, err := f.cart.ApplyCoupon(ctx, f.user.ID, "TENOFF")
	require.NoError(t, err)
}

func (f *checkoutFixture) paymentCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&count).Error)
	return count
}

func TestCheckoutService_FirstPurchase(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	f.processor.On("CreateCustomer", mock.Anything, "alice@example.com", "tok_visa").Return("cus_1", nil).Once()
	f.processor.On("Charge", mock.Anything, mock.MatchedBy(func(req payments.ChargeRequest) bool {
		return req.AmountMinor == 3598 && req.Currency == "usd" && req.CustomerID == "cus_1" && req.IdempotencyKey != ""
	})).Return("ch_1", nil).Once()

	var published services.OrderPlacedEvent
	f.publisher.On("Publish", services.OrdersExchange, services.OrderOrderedKey, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &published))
		}).
		Return(nil).Once()

	order, err := f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	require.NoError(t, err)
	assert.True(t, order.Ordered)
	assert.Equal(t, models.OrderStateOrdered, order.State)
	require.NotNil(t, order.Payment)
	assert.Equal(t, "ch_1", order.Payment.ProcessorChargeID)
	assert.Equal(t, "35.98", order.Payment.Amount.StringFixed(2))
	require.NotNil(t, order.ShippingAddressID)
	assert.Equal(t, f.shipping.ID, *order.ShippingAddressID)
	for _, item := range order.Items {
		assert.True(t, item.Ordered)
	}

	profile, err := f.users.GetProfile(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", profile.ProcessorCustomerID)
	assert.True(t, profile.OneClickPurchasing)

	assert.Equal(t, order.ID, published.OrderID)
	assert.Equal(t, "ch_1", published.ChargeID)
	require.Len(t, published.Items, 1)
	assert.Equal(t, 2, published.Items[0].Quantity)

	_, err = f.cart.OrderSummary(ctx, f.user.ID)
	assert.ErrorIs(t, err, models.ErrNoActiveOrder)
	_, err = f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	assert.ErrorIs(t, err, models.ErrNoActiveOrder)

	f.processor.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestCheckoutService_ReturningCustomerAttachesSource(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	profile, err := f.users.GetProfile(ctx, f.user.ID)
	require.NoError(t, err)
	profile.ProcessorCustomerID = "cus_known"
	require.NoError(t, f.users.SaveProfile(ctx, profile))

	f.processor.On("AttachSource", mock.Anything, "cus_known", "tok_mc").Return(nil).Once()
	f.processor.On("Charge", mock.Anything, mock.MatchedBy(func(req payments.ChargeRequest) bool {
		return req.CustomerID == "cus_known"
	})).Return("ch_2", nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	// A failing publisher does not fail the checkout.
	order, err := f.checkout.Checkout(ctx, f.user.ID, f.request("tok_mc"))
	require.NoError(t, err)
	assert.True(t, order.Ordered)

	f.processor.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	f.processor.AssertExpectations(t)
}

func TestCheckoutService_DeclinedChargeReopensOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	declined := &payments.Error{Kind: payments.KindCardDeclined, Message: "Your card has insufficient funds."}
	f.processor.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	f.processor.On("Charge", mock.Anything, mock.Anything).Return("", declined).Once()

	_, err := f.checkout.Checkout(ctx, f.user.ID, f.request("tok_chargeDeclined"))
	var perr *payments.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, payments.KindCardDeclined, perr.Kind)
	assert.False(t, perr.Retryable())

	assert.Zero(t, f.paymentCount(t))
	order, err := f.cart.OrderSummary(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateOpen, order.State)
	assert.False(t, order.Ordered)

	// The cart is usable again.
	_, err = f.cart.AddToCart(ctx, f.user.ID, "classic-tee", nil)
	assert.NoError(t, err)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutService_RejectsForeignAddresses(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	bob := f.store.user(t, "bob")
	bobsBilling := f.store.address(t, bob.ID, models.AddressBilling)

	tests := []struct {
		name string
		req  services.CheckoutRequest
	}{
		{name: "billing of another user", req: services.CheckoutRequest{PaymentToken: "tok", BillingAddressID: bobsBilling.ID, ShippingAddressID: f.shipping.ID}},
		{name: "shipping used as billing", req: services.CheckoutRequest{PaymentToken: "tok", BillingAddressID: f.shipping.ID, ShippingAddressID: f.shipping.ID}},
		{name: "unknown address", req: services.CheckoutRequest{PaymentToken: "tok", BillingAddressID: f.billing.ID, ShippingAddressID: 9999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.checkout.Checkout(ctx, f.user.ID, tt.req)
			assert.ErrorIs(t, err, models.ErrAddressNotFound)
		})
	}

	f.processor.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	f.processor.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	order, err := f.cart.OrderSummary(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateOpen, order.State)
}

func TestCheckoutService_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.cart.AddToCart(ctx, f.user.ID, "classic-tee", nil)
	require.NoError(t, err)
	_, err = f.cart.DecrementOrRemove(ctx, f.user.ID, services.CartItemKey{Slug: "classic-tee"})
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	assert.ErrorIs(t, err, models.ErrEmptyCart)
	f.processor.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckoutService_SecondCheckoutWhileCharging(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	order, err := f.cart.OrderSummary(ctx, f.user.ID)
	require.NoError(t, err)
	_, err = f.orders.BeginCharge(ctx, order.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)
	_, err = f.cart.AddToCart(ctx, f.user.ID, "classic-tee", nil)
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)
	f.processor.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckoutService_ChargeIsBoundedByTimeout(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	f.processor.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	f.processor.On("Charge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, hasDeadline := args.Get(0).(context.Context).Deadline()
			assert.True(t, hasDeadline)
		}).
		Return("", payments.NewError(payments.KindIndeterminate, context.DeadlineExceeded)).Once()

	_, err := f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	var perr *payments.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, payments.KindIndeterminate, perr.Kind)
	assert.Zero(t, f.paymentCount(t))
	f.processor.AssertExpectations(t)
}

func TestCheckoutService_IndeterminateChargeKeepsOrderCharging(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	f.processor.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	f.processor.On("Charge", mock.Anything, mock.Anything).
		Return("", payments.NewError(payments.KindIndeterminate, context.DeadlineExceeded)).Once()

	summary, err := f.cart.OrderSummary(ctx, f.user.ID)
	require.NoError(t, err)
	_, err = f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	require.Error(t, err)

	order, err := f.orders.GetByID(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateCharging, order.State)
	assert.False(t, order.Ordered)

	// The shopper may have been charged, so neither a retry nor a cart change goes through.
	_, err = f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)
	_, err = f.cart.AddToCart(ctx, f.user.ID, "classic-tee", nil)
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	assert.Zero(t, f.paymentCount(t))
	f.processor.AssertNumberOfCalls(t, "Charge", 1)
}

func TestCheckoutService_StaleChargeRetriesWithSameIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	var firstKey string
	f.processor.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	f.processor.On("Charge", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			firstKey = args.Get(1).(payments.ChargeRequest).IdempotencyKey
		}).
		Return("", payments.NewError(payments.KindIndeterminate, context.DeadlineExceeded)).Once()
	_, err := f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	require.Error(t, err)
	require.NotEmpty(t, firstKey)

	// Every charging order counts as stale for this service.
	later := services.NewCheckoutService(f.orders, f.addresses, f.users, f.processor, nil, services.CheckoutOptions{
		PaymentTimeout:   time.Second,
		ChargeStaleAfter: -time.Hour,
	}, zap.NewNop())
	f.processor.On("AttachSource", mock.Anything, "cus_1", "tok_visa").Return(nil).Once()
	f.processor.On("Charge", mock.Anything, mock.MatchedBy(func(req payments.ChargeRequest) bool {
		return req.IdempotencyKey == firstKey
	})).Return("ch_1", nil).Once()

	order, err := later.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	require.NoError(t, err)
	assert.True(t, order.Ordered)
	assert.Equal(t, models.OrderStateOrdered, order.State)
	assert.Equal(t, int64(1), f.paymentCount(t))
	f.processor.AssertExpectations(t)
}

func TestCheckoutService_RetryAfterDeclineUsesFreshKey(t *testing.T) {
	f := newCheckoutFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	var keys []string
	recordKey := func(args mock.Arguments) {
		keys = append(keys, args.Get(1).(payments.ChargeRequest).IdempotencyKey)
	}
	declined := &payments.Error{Kind: payments.KindCardDeclined, Message: "Your card was declined."}
	f.processor.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	f.processor.On("AttachSource", mock.Anything, "cus_1", mock.Anything).Return(nil)
	f.processor.On("Charge", mock.Anything, mock.Anything).Run(recordKey).Return("", declined).Twice()

	_, err := f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	require.Error(t, err)
	_, err = f.checkout.Checkout(ctx, f.user.ID, f.request("tok_visa"))
	require.Error(t, err)

	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])
	assert.Zero(t, f.paymentCount(t))
}
