package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"
)

// Domain errors answered with 400 and their own text as message.
var badRequestErrors = []error{
	models.ErrNoActiveOrder,
	models.ErrInvalidSelection,
	models.ErrItemNotInCart,
	models.ErrAmbiguousItem,
	models.ErrEmptyCart,
	models.ErrCouponNotFound,
	models.ErrAddressNotFound,
}

// errorResponder writes the JSON error body for errors returned by services.
type errorResponder struct {
	logger *zap.Logger
}

func (r errorResponder) respond(c *fiber.Ctx, err error) error {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": target.Error()})
		}
	}

	var perr *payments.Error
	switch {
	case errors.As(err, &perr):
		status := fiber.StatusBadRequest
		if perr.Kind == payments.KindIndeterminate || perr.Kind == payments.KindAuthFailed {
			status = fiber.StatusBadGateway
			r.log(c, "payment processor failure", err)
		}
		return c.Status(status).JSON(fiber.Map{
			"message":   perr.Message,
			"retryable": perr.Retryable(),
		})
	case errors.Is(err, models.ErrCheckoutInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": models.ErrCheckoutInProgress.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authentication failed",
			"error":   err.Error(),
		})
	case jujuerrors.Is(err, jujuerrors.NotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Not found",
			"error":   err.Error(),
		})
	case jujuerrors.Is(err, jujuerrors.Forbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "You do not have permission to perform this action.",
		})
	case jujuerrors.Is(err, jujuerrors.AlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "Already exists",
			"error":   err.Error(),
		})
	default:
		r.log(c, "request failed", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message":    "A serious error occurred",
			"request_id": requestID(c),
		})
	}
}

func (r errorResponder) log(c *fiber.Ctx, msg string, err error) {
	r.logger.Error(msg,
		zap.String("request_id", requestID(c)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}

// parseBody decodes the request body into req and validates it.
// It writes the 400 response itself and reports whether the handler should go on.
func parseBody(c *fiber.Ctx, validate *validator.Validate, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := validate.Struct(req); err != nil {
		return false, validationFailed(c, err)
	}
	return true, nil
}

func validationFailed(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   err.Error(),
		})
	}
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}

// idParam reads a positive numeric route parameter.
func idParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func invalidID(c *fiber.Ctx, name string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": fmt.Sprintf("Invalid %s", name),
	})
}
