package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/logging"
	"storefront/internal/payments"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/rabbitmq"
)

// orderEventsQueue receives every order.ordered event for the fulfilment log.
const orderEventsQueue = "storefront.order-events"

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on the configuration, so report with a bootstrap logger.
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	// --- Database ---
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	if cfg.SeedCatalog {
		if err := database.SeedCatalog(db); err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
		logger.Info("sample catalog seeded")
	}

	// --- Payment processor ---
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY is empty, every checkout will fail to authenticate")
	}
	processor := payments.NewStripeProcessor(cfg.StripeSecretKey, logger)

	// --- RabbitMQ (optional) ---
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:        cfg.RabbitMQURL,
			Exchange:   services.OrdersExchange,
			Queue:      orderEventsQueue,
			BindingKey: services.OrderOrderedKey,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize RabbitMQ client", zap.Error(err))
		}
		defer mqClient.Close()
		publisher = mqClient

		if err := mqClient.Consume(orderEventsQueue, orderEventHandler(logger)); err != nil {
			logger.Error("failed to start RabbitMQ consumer", zap.Error(err))
		}
	} else {
		logger.Info("RABBITMQ_URL is empty, order events are not published")
	}

	app := buildApp(cfg, db, processor, publisher, logger)

	// --- Start HTTP Server ---
	logger.Info("starting server", zap.String("addr", cfg.AppPort))

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout(cfg)); err != nil {
		logger.Error("error during Fiber shutdown", zap.Error(err))
	}
	logger.Info("server gracefully stopped")
}

// shutdownTimeout lets an in-flight checkout finish its processor calls,
// up to three of them, before the server stops.
func shutdownTimeout(cfg *config.Config) time.Duration {
	return 3*cfg.PaymentTimeout + 5*time.Second
}

// buildApp wires repositories, services and handlers into a Fiber app.
// publisher may be nil, in which case order events are dropped.
func buildApp(cfg *config.Config, db *gorm.DB, processor payments.Processor, publisher services.EventPublisher, logger *zap.Logger) *fiber.App {
	// --- Repositories ---
	itemRepo := repositories.NewGORMItemRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	couponRepo := repositories.NewGORMCouponRepository(db)
	addressRepo := repositories.NewGORMAddressRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	// --- Services ---
	svc := handlers.Services{
		Auth:     services.NewAuthService(userRepo, cfg.JWTSecret, logger),
		Products: services.NewProductService(itemRepo),
		Orders:   services.NewOrderService(orderRepo, itemRepo, couponRepo, logger),
		Checkout: services.NewCheckoutService(orderRepo, addressRepo, userRepo, processor, publisher, services.CheckoutOptions{
			PaymentTimeout:   cfg.PaymentTimeout,
			ChargeStaleAfter: cfg.ChargeStaleAfter,
		}, logger),
		Addresses: services.NewAddressService(addressRepo),
	}

	app := fiber.New(fiber.Config{
		AppName:      "storefront",
		ErrorHandler: errorHandler(logger),
	})

	// --- Middleware ---
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// --- Health and metrics ---
	app.Get("/health", func(c *fiber.Ctx) error {
		status, health, dbStatus := fiber.StatusOK, "healthy", "connected"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status, health, dbStatus = fiber.StatusServiceUnavailable, "unhealthy", "unreachable"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    health,
			"time":      time.Now().Format(time.RFC3339),
			"database":  dbStatus,
			"rabbitmq":  publisher != nil,
			"processor": cfg.StripeSecretKey != "",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// --- API Routes ---
	handlers.RegisterAPI(app.Group("/api"), svc, logger)

	return app
}

// errorHandler answers errors that escaped the handlers (unknown routes, panics) with JSON.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}
		requestID, _ := c.Locals("requestid").(string)
		if code >= fiber.StatusInternalServerError {
			logger.Error("unhandled error",
				zap.String("request_id", requestID),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
			return c.Status(code).JSON(fiber.Map{
				"message":    "A serious error occurred",
				"request_id": requestID,
			})
		}
		return c.Status(code).JSON(fiber.Map{
			"message": err.Error(),
		})
	}
}

// orderEventHandler logs every placed order. Malformed events are acked and dropped.
func orderEventHandler(logger *zap.Logger) func(msg amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		var event services.OrderPlacedEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			logger.Warn("dropping malformed order event", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(err))
			return nil
		}
		logger.Info("order placed event received",
			zap.Uint("order_id", event.OrderID),
			zap.String("user_id", event.UserID),
			zap.String("charge_id", event.ChargeID),
			zap.String("amount", event.Amount.StringFixed(2)),
			zap.Int("lines", len(event.Items)))
		return nil
	}
}
