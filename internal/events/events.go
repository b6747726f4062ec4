package events

import (
	"context"
	"time"

	"rms/order-service/internal/models"

	"github.com/shopspring/decimal"
)

// Event names are part of the client contract and must not change.
const (
	NewOrder          = "newOrder"
	OrderStatus       = "OrderStatus"
	ItemStatus        = "ItemStatus"
	UpdateItem        = "updateItem"
	NewItemAddToOrder = "newItemAddtoOrder"
)

var Names = []string{NewOrder, OrderStatus, ItemStatus, UpdateItem, NewItemAddToOrder}

type Event struct {
	Name       string
	OrderID    string
	Payload    any
	OccurredAt time.Time
}

// Envelope is the JSON frame written to realtime clients and brokers.
type Envelope struct {
	Event      string    `json:"event"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (e Event) Envelope() Envelope {
	return Envelope{Event: e.Name, Payload: e.Payload, OccurredAt: e.OccurredAt}
}

// Publisher is the single publish point used by order mutations. Delivery
// is best effort and Publish never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type OrderStatusPayload struct {
	OrderID     string             `json:"orderId"`
	WaiterID    int64              `json:"waiterId"`
	Status      models.OrderStatus `json:"status"`
	OrderNumber string             `json:"orderNumber"`
}

type ItemStatusPayload struct {
	WaiterID    int64             `json:"waiterId"`
	Status      models.ItemStatus `json:"status"`
	ItemID      string            `json:"itemId"`
	Name        string            `json:"name"`
	OrderID     string            `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	ChefRemarks string            `json:"chefRemarks,omitempty"`
}

type QuantityUpdate struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type UpdateItemPayload struct {
	OrderID     string           `json:"orderId"`
	WaiterID    int64            `json:"waiterId"`
	OrderNumber string           `json:"orderNumber"`
	Updates     []QuantityUpdate `json:"updates"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
}

type NewItemsPayload struct {
	OrderID     string             `json:"orderId"`
	WaiterID    int64              `json:"waiterId"`
	OrderNumber string             `json:"orderNumber"`
	Items       []models.OrderItem `json:"items"`
}

func NewOrderEvent(order models.Order, at time.Time) Event {
	return Event{Name: NewOrder, OrderID: order.ID, Payload: order, OccurredAt: at}
}

func OrderStatusEvent(order models.Order, at time.Time) Event {
	return Event{
		Name:    OrderStatus,
		OrderID: order.ID,
		Payload: OrderStatusPayload{
			OrderID:     order.ID,
			WaiterID:    order.WaiterID,
			Status:      order.Status,
			OrderNumber: order.OrderNumber,
		},
		OccurredAt: at,
	}
}

func ItemStatusEvent(order models.Order, item models.OrderItem, at time.Time) Event {
	return Event{
		Name:    ItemStatus,
		OrderID: order.ID,
		Payload: ItemStatusPayload{
			WaiterID:    order.WaiterID,
			Status:      item.Status,
			ItemID:      item.ID,
			Name:        item.Name,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ChefRemarks: item.ChefRemarks,
		},
		OccurredAt: at,
	}
}

func UpdateItemEvent(order models.Order, updates []QuantityUpdate, at time.Time) Event {
	return Event{
		Name:    UpdateItem,
		OrderID: order.ID,
		Payload: UpdateItemPayload{
			OrderID:     order.ID,
			WaiterID:    order.WaiterID,
			OrderNumber: order.OrderNumber,
			Updates:     updates,
			TotalAmount: order.TotalAmount,
		},
		OccurredAt: at,
	}
}

func NewItemsEvent(order models.Order, items []models.OrderItem, at time.Time) Event {
	return Event{
		Name:    NewItemAddToOrder,
		OrderID: order.ID,
		Payload: NewItemsPayload{
			OrderID:     order.ID,
			WaiterID:    order.WaiterID,
			OrderNumber: order.OrderNumber,
			Items:       items,
		},
		OccurredAt: at,
	}
}

func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}
