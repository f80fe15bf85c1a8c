package services

import (
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

const (
	// OrdersExchange is the topic exchange order events are published to.
	OrdersExchange = "orders"
	// OrderOrderedKey is the routing key of OrderPlacedEvent.
	OrderOrderedKey = "order.ordered"
)

// EventPublisher publishes a message body to an exchange. *rabbitmq.Client satisfies it.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// OrderPlacedEvent is published after an order has been paid.
type OrderPlacedEvent struct {
	OrderID   uint              `json:"order_id"`
	UserID    string            `json:"user_id"`
	ChargeID  string            `json:"charge_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Items     []OrderPlacedItem `json:"items"`
	OrderedAt time.Time         `json:"ordered_at"`
}

// OrderPlacedItem is one line of an OrderPlacedEvent.
type OrderPlacedItem struct {
	ItemID       uint   `json:"item_id"`
	Slug         string `json:"slug"`
	SelectionKey string `json:"selection_key"`
	Quantity     int    `json:"quantity"`
}

func newOrderPlacedEvent(order *models.Order, at time.Time) OrderPlacedEvent {
	event := OrderPlacedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Currency:  models.Currency,
		OrderedAt: at,
	}
	if order.Payment != nil {
		event.ChargeID = order.Payment.ProcessorChargeID
		event.Amount = order.Payment.Amount
	}
	for _, oi := range order.Items {
		event.Items = append(event.Items, OrderPlacedItem{
			ItemID:       oi.ItemID,
			Slug:         oi.Item.Slug,
			SelectionKey: oi.SelectionKey,
			Quantity:     oi.Quantity,
		})
	}
	return event
}

func publishJSON(publisher EventPublisher, exchange, routingKey string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}
	return publisher.Publish(exchange, routingKey, body)
}
