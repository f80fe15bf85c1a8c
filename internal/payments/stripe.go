package payments

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeProcessor is a Processor backed by the Stripe API.
type StripeProcessor struct {
	api *client.API
}

// StripeOption customizes the Stripe backend.
type StripeOption func(*stripe.BackendConfig)

// WithBaseURL points the client at another API host, e.g. stripe-mock.
func WithBaseURL(url string) StripeOption {
	return func(c *stripe.BackendConfig) {
		c.URL = stripe.String(url)
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(httpClient *http.Client) StripeOption {
	return func(c *stripe.BackendConfig) {
		c.HTTPClient = httpClient
	}
}

// NewStripeProcessor creates a Stripe processor. The client never retries on its own:
// a retried charge is a new checkout attempt with a new idempotency key.
func NewStripeProcessor(secretKey string, logger *zap.Logger, opts ...StripeOption) *StripeProcessor {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.Named("stripe").Sugar(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &StripeProcessor{api: client.New(secretKey, stripe.NewBackendsWithConfig(cfg))}
}

// CreateCustomer registers a customer with the token as its default source.
func (p *StripeProcessor) CreateCustomer(ctx context.Context, email, token string) (string, error) {
	params := &stripe.CustomerParams{
		Email:  stripe.String(email),
		Source: stripe.String(token),
	}
	params.Context = ctx
	customer, err := p.api.Customers.New(params)
	if err != nil {
		return "", classify(ctx, err)
	}
	return customer.ID, nil
}

// AttachSource adds the token as a new card of an existing customer.
func (p *StripeProcessor) AttachSource(ctx context.Context, customerID, token string) error {
	params := &stripe.CardParams{
		Customer: stripe.String(customerID),
		Token:    stripe.String(token),
	}
	params.Context = ctx
	if _, err := p.api.Cards.New(params); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// Charge charges the customer's default source.
func (p *StripeProcessor) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	params := &stripe.ChargeParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		Customer: stripe.String(req.CustomerID),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	charge, err := p.api.Charges.New(params)
	if err != nil {
		return "", classify(ctx, err)
	}
	return charge.ID, nil
}

func classify(ctx context.Context, err error) *Error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.Code == stripe.ErrorCodeRateLimit:
			return NewError(KindRateLimited, err)
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			return NewError(KindAuthFailed, err)
		case stripeErr.Type == stripe.ErrorTypeCard:
			e := NewError(KindCardDeclined, err)
			if stripeErr.Msg != "" {
				e.Message = stripeErr.Msg
			}
			return e
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return NewError(KindInvalidRequest, err)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			// Stripe may have processed the request before failing.
			return NewError(KindIndeterminate, err)
		default:
			return NewError(KindUnknown, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return NewError(KindIndeterminate, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(KindIndeterminate, err)
		}
		return NewError(KindNetwork, err)
	}
	return NewError(KindUnknown, err)
}
