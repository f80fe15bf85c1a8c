package handlers

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// ItemResponse is the catalog list representation of an item.
type ItemResponse struct {
	ID            uint                `json:"id"`
	Title         string              `json:"title"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	Category      string              `json:"category"`
	Label         string              `json:"label"`
	Slug          string              `json:"slug"`
	Description   string              `json:"description"`
	Image         string              `json:"image"`
}

// ItemDetailResponse adds the variations an item can be configured with.
type ItemDetailResponse struct {
	ItemResponse
	Variations []VariationResponse `json:"variations"`
}

type VariationResponse struct {
	ID             uint                     `json:"id"`
	Name           string                   `json:"name"`
	ItemVariations []ItemVariationResponse `json:"item_variations"`
}

type ItemVariationResponse struct {
	ID         uint   `json:"id"`
	Value      string `json:"value"`
	Attachment string `json:"attachment"`
}

// SelectedVariationResponse is a chosen variation value inside an order item.
type SelectedVariationResponse struct {
	ID         uint           `json:"id"`
	Variation  VariationBrief `json:"variation"`
	Value      string         `json:"value"`
	Attachment string         `json:"attachment"`
}

type VariationBrief struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type OrderItemResponse struct {
	ID             uint                        `json:"id"`
	Item           ItemResponse                `json:"item"`
	Quantity       int                         `json:"quantity"`
	FinalPrice     decimal.Decimal             `json:"final_price"`
	AmountSaved    decimal.Decimal             `json:"amount_saved"`
	ItemVariations []SelectedVariationResponse `json:"item_variations"`
}

type CouponResponse struct {
	ID     uint              `json:"id"`
	Code   string            `json:"code"`
	Amount decimal.Decimal   `json:"amount"`
	Kind   models.CouponKind `json:"kind"`
}

// OrderResponse is an order with its computed total.
type OrderResponse struct {
	ID         uint                `json:"id"`
	OrderItems []OrderItemResponse `json:"order_items"`
	Total      decimal.Decimal     `json:"total"`
	Coupon     *CouponResponse     `json:"coupon"`
	Ordered    bool                `json:"ordered"`
	PaymentID  *uint               `json:"payment_id,omitempty"`
}

func newItemResponse(item *models.Item) ItemResponse {
	return ItemResponse{
		ID:            item.ID,
		Title:         item.Title,
		Price:         item.Price,
		DiscountPrice: item.DiscountPrice,
		Category:      item.Category.Display(),
		Label:         item.Label.Display(),
		Slug:          item.Slug,
		Description:   item.Description,
		Image:         item.Image,
	}
}

func newItemDetailResponse(item *models.Item) ItemDetailResponse {
	resp := ItemDetailResponse{
		ItemResponse: newItemResponse(item),
		Variations:   make([]VariationResponse, 0, len(item.Variations)),
	}
	for _, v := range item.Variations {
		vr := VariationResponse{ID: v.ID, Name: v.Name, ItemVariations: make([]ItemVariationResponse, 0, len(v.ItemVariations))}
		for _, iv := range v.ItemVariations {
			vr.ItemVariations = append(vr.ItemVariations, ItemVariationResponse{ID: iv.ID, Value: iv.Value, Attachment: iv.Attachment})
		}
		resp.Variations = append(resp.Variations, vr)
	}
	return resp
}

func newOrderItemResponse(oi *models.OrderItem) OrderItemResponse {
	resp := OrderItemResponse{
		ID:             oi.ID,
		Item:           newItemResponse(&oi.Item),
		Quantity:       oi.Quantity,
		FinalPrice:     oi.FinalPrice(),
		AmountSaved:    oi.AmountSaved(),
		ItemVariations: make([]SelectedVariationResponse, 0, len(oi.ItemVariations)),
	}
	for _, iv := range oi.ItemVariations {
		selected := SelectedVariationResponse{ID: iv.ID, Value: iv.Value, Attachment: iv.Attachment}
		if iv.Variation != nil {
			selected.Variation = VariationBrief{ID: iv.Variation.ID, Name: iv.Variation.Name}
		}
		resp.ItemVariations = append(resp.ItemVariations, selected)
	}
	return resp
}

func newOrderResponse(order *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:         order.ID,
		OrderItems: make([]OrderItemResponse, 0, len(order.Items)),
		Total:      order.Total(),
		Ordered:    order.Ordered,
		PaymentID:  order.PaymentID,
	}
	for i := range order.Items {
		resp.OrderItems = append(resp.OrderItems, newOrderItemResponse(&order.Items[i]))
	}
	if order.Coupon != nil {
		resp.Coupon = &CouponResponse{
			ID:     order.Coupon.ID,
			Code:   order.Coupon.Code,
			Amount: order.Coupon.Amount,
			Kind:   order.Coupon.Kind,
		}
	}
	return resp
}
