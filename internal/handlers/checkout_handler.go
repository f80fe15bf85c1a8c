package handlers

import (
	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CheckoutHandler handles payment of the open order.
type CheckoutHandler struct {
	service  *services.CheckoutService
	validate *validator.Validate
	logger   *zap.Logger
	errorResponder
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(service *services.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service:        service,
		validate:       validator.New(),
		logger:         logger,
		errorResponder: errorResponder{logger: logger},
	}
}

// RegisterRoutes registers the checkout route. router must already require authentication.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/checkout", h.HandleCheckout)
}

// CheckoutPayload is the body posted by the storefront's payment form.
type CheckoutPayload struct {
	StripeToken             string `json:"stripeToken" validate:"required"`
	SelectedBillingAddress  uint   `json:"selectedBillingAddress" validate:"required"`
	SelectedShippingAddress uint   `json:"selectedShippingAddress" validate:"required"`
}

// HandleCheckout charges the open order and marks it ordered.
func (h *CheckoutHandler) HandleCheckout(c *fiber.Ctx) error {
	var req CheckoutPayload
	if ok, err := parseBody(c, h.validate, &req); !ok {
		return err
	}

	order, err := h.service.Checkout(c.UserContext(), middleware.UserID(c), services.CheckoutRequest{
		PaymentToken:      req.StripeToken,
		BillingAddressID:  req.SelectedBillingAddress,
		ShippingAddressID: req.SelectedShippingAddress,
	})
	if err != nil {
		h.logger.Info("checkout failed",
			zap.String("request_id", requestID(c)),
			zap.String("user_id", middleware.UserID(c)),
			zap.Error(err))
		return h.respond(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Your order was successful!",
		"order":   newOrderResponse(order),
	})
}
