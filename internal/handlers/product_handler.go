package handlers

import (
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ProductHandler serves the public catalog.
type ProductHandler struct {
	service *services.ProductService
	errorResponder
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service:        service,
		errorResponder: errorResponder{logger: logger},
	}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)
}

// HandleGetProducts lists every item of the catalog.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	items, err := h.service.GetAllProducts(c.UserContext())
	if err != nil {
		return h.respond(c, err)
	}
	resp := make([]ItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, newItemResponse(&items[i]))
	}
	return c.JSON(resp)
}

// HandleGetProductByID returns one item with its variations.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return invalidID(c, "product id")
	}
	item, err := h.service.GetProductByID(c.UserContext(), id)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(newItemDetailResponse(item))
}
