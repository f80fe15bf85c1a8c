package handlers

import (
	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for the cart and its coupon.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
	errorResponder
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:        service,
		validate:       validator.New(),
		errorResponder: errorResponder{logger: logger},
	}
}

// RegisterRoutes registers the cart routes. router must already require authentication.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/add-to-cart", h.HandleAddToCart)
	router.Post("/order-item/update-quantity", h.HandleUpdateQuantity)
	router.Delete("/order-items/:id/delete", h.HandleDeleteOrderItem)
	router.Get("/order-summary", h.HandleOrderSummary)
	router.Post("/add-coupon", h.HandleAddCoupon)
}

// AddToCartRequest represents the request body for adding an item to the cart.
type AddToCartRequest struct {
	Slug       string `json:"slug" validate:"required"`
	Variations []uint `json:"variations"`
}

// UpdateQuantityRequest names the order item to decrement, either by id or by
// slug and variations. Omitting variations only works when the slug is unambiguous.
type UpdateQuantityRequest struct {
	OrderItemID uint    `json:"order_item_id"`
	Slug        string  `json:"slug" validate:"required_without=OrderItemID"`
	Variations  *[]uint `json:"variations"`
}

// AddCouponRequest represents the request body for applying a coupon.
type AddCouponRequest struct {
	Code string `json:"code" validate:"required,max=15"`
}

// HandleAddToCart adds one unit of the configured item to the open order.
func (h *OrderHandler) HandleAddToCart(c *fiber.Ctx) error {
	var req AddToCartRequest
	if ok, err := parseBody(c, h.validate, &req); !ok {
		return err
	}

	orderItem, err := h.service.AddToCart(c.UserContext(), middleware.UserID(c), req.Slug, req.Variations)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message":    "Item added to your cart",
		"order_item": newOrderItemResponse(orderItem),
	})
}

// HandleUpdateQuantity takes one unit of an order item out of the cart.
func (h *OrderHandler) HandleUpdateQuantity(c *fiber.Ctx) error {
	var req UpdateQuantityRequest
	if ok, err := parseBody(c, h.validate, &req); !ok {
		return err
	}

	key := services.CartItemKey{OrderItemID: req.OrderItemID, Slug: req.Slug}
	if req.Variations != nil {
		key.Variations = *req.Variations
		if key.Variations == nil {
			key.Variations = []uint{}
		}
	}
	orderItem, err := h.service.DecrementOrRemove(c.UserContext(), middleware.UserID(c), key)
	if err != nil {
		return h.respond(c, err)
	}
	if orderItem.Quantity == 0 {
		return c.JSON(fiber.Map{
			"message":  "Item removed from your cart",
			"quantity": 0,
		})
	}
	return c.JSON(fiber.Map{
		"message":  "This item quantity was updated",
		"quantity": orderItem.Quantity,
	})
}

// HandleDeleteOrderItem removes an order item from its open order.
func (h *OrderHandler) HandleDeleteOrderItem(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return invalidID(c, "order item id")
	}
	if err := h.service.DeleteOrderItem(c.UserContext(), middleware.UserID(c), id); err != nil {
		return h.respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleOrderSummary returns the open order with its computed total.
func (h *OrderHandler) HandleOrderSummary(c *fiber.Ctx) error {
	order, err := h.service.OrderSummary(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(newOrderResponse(order))
}

// HandleAddCoupon attaches a coupon to the open order.
func (h *OrderHandler) HandleAddCoupon(c *fiber.Ctx) error {
	var req AddCouponRequest
	if ok, err := parseBody(c, h.validate, &req); !ok {
		return err
	}

	order, err := h.service.ApplyCoupon(c.UserContext(), middleware.UserID(c), req.Code)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Successfully added coupon",
		"order":   newOrderResponse(order),
	})
}
