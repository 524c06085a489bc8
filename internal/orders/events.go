package orders

import (
	"strconv"

	"github.com/psecars/merch-backend/pkg/db/models"
	"github.com/psecars/merch-backend/pkg/enums"
	"github.com/psecars/merch-backend/pkg/outbox"
)

// Order sources recorded on placement events and metrics.
const (
	SourceCart     = "cart"
	SourceExplicit = "explicit"
)

// OrderPlacedEvent is the payload of order.placed.
type OrderPlacedEvent struct {
	OrderID       int64          `json:"orderId"`
	Source        string         `json:"source"`
	CustomerEmail string         `json:"customerEmail"`
	TotalAmount   string         `json:"totalAmount"`
	Items         []EventLineRef `json:"items"`
}

// EventLineRef identifies a product quantity moved by an order event.
type EventLineRef struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderCancelledEvent is the payload of order.cancelled.
type OrderCancelledEvent struct {
	OrderID        int64             `json:"orderId"`
	PreviousStatus enums.OrderStatus `json:"previousStatus"`
	RestoredItems  []EventLineRef    `json:"restoredItems"`
}

// OrderStatusChangedEvent is the payload of order.status_changed.
type OrderStatusChangedEvent struct {
	OrderID int64             `json:"orderId"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

func lineRefs(items []models.OrderItem) []EventLineRef {
	refs := make([]EventLineRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, EventLineRef{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return refs
}

func orderEvent(eventType enums.OutboxEventType, orderID int64, data any) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   strconv.FormatInt(orderID, 10),
		Data:          data,
	}
}
