package handlers

import (
	"strings"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/biter777/countries"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AddressHandler handles the user's address book.
type AddressHandler struct {
	service  *services.AddressService
	validate *validator.Validate
	errorResponder
}

// NewAddressHandler creates a new AddressHandler.
func NewAddressHandler(service *services.AddressService, logger *zap.Logger) *AddressHandler {
	return &AddressHandler{
		service:        service,
		validate:       validator.New(),
		errorResponder: errorResponder{logger: logger},
	}
}

// RegisterRoutes registers the address routes. router must already require authentication.
func (h *AddressHandler) RegisterRoutes(router fiber.Router) {
	addressRoutes := router.Group("/addresses")
	addressRoutes.Get("/", h.HandleListAddresses)
	addressRoutes.Post("/create", h.HandleCreateAddress)
	addressRoutes.Patch("/:id/update", h.HandleUpdateAddress)
	addressRoutes.Delete("/:id/delete", h.HandleDeleteAddress)
}

// CreateAddressRequest represents the request body for a new address.
type CreateAddressRequest struct {
	StreetAddress    string `json:"street_address" validate:"required,max=100"`
	ApartmentAddress string `json:"apartment_address" validate:"max=100"`
	Country          string `json:"country" validate:"required,iso3166_1_alpha2"`
	Zip              string `json:"zip" validate:"required,max=100"`
	AddressType      string `json:"address_type" validate:"required,oneof=B S"`
	Default          bool   `json:"default"`
}

// UpdateAddressRequest carries the fields of a partial address update.
type UpdateAddressRequest struct {
	StreetAddress    *string `json:"street_address" validate:"omitempty,min=1,max=100"`
	ApartmentAddress *string `json:"apartment_address" validate:"omitempty,max=100"`
	Country          *string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	Zip              *string `json:"zip" validate:"omitempty,min=1,max=100"`
	AddressType      *string `json:"address_type" validate:"omitempty,oneof=B S"`
	Default          *bool   `json:"default"`
}

// HandleListAddresses lists the user's addresses, filtered by ?address_type=B|S.
func (h *AddressHandler) HandleListAddresses(c *fiber.Ctx) error {
	addressType := models.AddressType(c.Query("address_type"))
	if addressType != "" && addressType != models.AddressBilling && addressType != models.AddressShipping {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "address_type must be B or S",
		})
	}

	addresses, err := h.service.ListAddresses(c.UserContext(), middleware.UserID(c), addressType)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(addresses)
}

// HandleCreateAddress stores a new address for the user.
func (h *AddressHandler) HandleCreateAddress(c *fiber.Ctx) error {
	var req CreateAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	// Country codes are accepted in any case and stored upper case.
	req.Country = strings.ToUpper(req.Country)
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	address := models.Address{
		StreetAddress:    req.StreetAddress,
		ApartmentAddress: req.ApartmentAddress,
		Country:          req.Country,
		Zip:              req.Zip,
		AddressType:      models.AddressType(req.AddressType),
		Default:          req.Default,
	}
	if err := h.service.CreateAddress(c.UserContext(), middleware.UserID(c), &address); err != nil {
		return h.respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(address)
}

// HandleUpdateAddress applies a partial update to an address the user owns.
func (h *AddressHandler) HandleUpdateAddress(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return invalidID(c, "address id")
	}
	var req UpdateAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if req.Country != nil {
		upper := strings.ToUpper(*req.Country)
		req.Country = &upper
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	patch := services.AddressPatch{
		StreetAddress:    req.StreetAddress,
		ApartmentAddress: req.ApartmentAddress,
		Country:          req.Country,
		Zip:              req.Zip,
		Default:          req.Default,
	}
	if req.AddressType != nil {
		addressType := models.AddressType(*req.AddressType)
		patch.AddressType = &addressType
	}
	address, err := h.service.UpdateAddress(c.UserContext(), middleware.UserID(c), id, patch)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(address)
}

// HandleDeleteAddress removes an address the user owns.
func (h *AddressHandler) HandleDeleteAddress(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return invalidID(c, "address id")
	}
	if err := h.service.DeleteAddress(c.UserContext(), middleware.UserID(c), id); err != nil {
		return h.respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleCountries lists ISO 3166 countries as a code to name object.
func HandleCountries(c *fiber.Ctx) error {
	all := countries.All()
	resp := make(map[string]string, len(all))
	for _, code := range all {
		resp[code.Alpha2()] = code.String()
	}
	return c.JSON(resp)
}
