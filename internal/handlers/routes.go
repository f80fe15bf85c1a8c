package handlers

import (
	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Services are the services the API handlers call into.
type Services struct {
	Auth      *services.AuthService
	Products  *services.ProductService
	Orders    *services.OrderService
	Checkout  *services.CheckoutService
	Addresses *services.AddressService
}

// RegisterAPI mounts every API route on router. Public routes are registered
// before the authenticated group so its middleware does not shadow them.
func RegisterAPI(router fiber.Router, svc Services, logger *zap.Logger) {
	NewAuthHandler(svc.Auth, logger).RegisterRoutes(router)
	NewProductHandler(svc.Products, logger).RegisterRoutes(router)
	router.Get("/countries", HandleCountries)

	protectedRoutes := router.Group("", middleware.AuthRequired(svc.Auth, logger))
	NewOrderHandler(svc.Orders, logger).RegisterRoutes(protectedRoutes)
	NewCheckoutHandler(svc.Checkout, logger).RegisterRoutes(protectedRoutes)
	NewAddressHandler(svc.Addresses, logger).RegisterRoutes(protectedRoutes)
}
