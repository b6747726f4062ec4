package store

import (
	"context"
	"time"

	"rms/order-service/internal/models"

	"github.com/shopspring/decimal"
)

type ListOrdersFilter struct {
	Status   models.OrderStatus
	WaiterID *int64
	Limit    int
}

type ItemStatusChange struct {
	ItemID      string
	Status      models.ItemStatus
	ChefRemarks *string
}

type QuantityChange struct {
	ItemID     string
	Quantity   int
	TotalPrice decimal.Decimal
}

// OrderChange is everything one mutation writes to an order. TotalDelta is
// added to the stored total rather than replacing it.
type OrderChange struct {
	Status        *models.OrderStatus
	ItemStatuses  []ItemStatusChange
	Quantities    []QuantityChange
	NewItems      []models.OrderItem
	TotalDelta    decimal.Decimal
	CashCollected bool
}

// MutateFunc inspects a locked snapshot of the order and decides the change.
// Returning an error aborts the mutation without writing anything.
type MutateFunc func(order models.Order) (OrderChange, error)

type OrderStore interface {
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	ListOrders(ctx context.Context, filter ListOrdersFilter) ([]models.Order, error)
	// MutateOrder serializes mutations per order. expectedVersion of 0 skips
	// the version check.
	MutateOrder(ctx context.Context, orderID string, expectedVersion int64, fn MutateFunc) (models.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// Apply projects the change onto a copy of order, the same way the stores
// persist it.
func (c OrderChange) Apply(order models.Order, now time.Time) models.Order {
	out := order.Clone()
	index := make(map[string]int, len(out.Items))
	for i, item := range out.Items {
		index[item.ID] = i
	}
	for _, change := range c.ItemStatuses {
		i, ok := index[change.ItemID]
		if !ok {
			continue
		}
		out.Items[i].Status = change.Status
		if change.ChefRemarks != nil {
			out.Items[i].ChefRemarks = *change.ChefRemarks
		}
		out.Items[i].UpdatedAt = now
	}
	for _, change := range c.Quantities {
		i, ok := index[change.ItemID]
		if !ok {
			continue
		}
		out.Items[i].Quantity = change.Quantity
		out.Items[i].TotalPrice = change.TotalPrice
		out.Items[i].UpdatedAt = now
	}
	for _, item := range c.NewItems {
		item.OrderID = out.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = now
		}
		out.Items = append(out.Items, item)
	}
	out.TotalAmount = out.TotalAmount.Add(c.TotalDelta)
	if c.Status != nil {
		out.Status = *c.Status
	}
	if c.CashCollected {
		out.CashCollected = true
	}
	out.Version++
	out.UpdatedAt = now
	return out
}
