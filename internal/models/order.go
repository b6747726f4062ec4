package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdminWaiterID marks an order placed by an admin rather than a waiter.
const AdminWaiterID int64 = 0

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	WaiterID      int64           `json:"waiterId"`
	TableNumber   int             `json:"tableNumber"`
	Status        OrderStatus     `json:"status"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Notes         string          `json:"notes,omitempty"`
	CashCollected bool            `json:"cashCollected"`
	Version       int64           `json:"version"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	MenuItemID  string          `json:"menuItemId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Status      ItemStatus      `json:"status"`
	ChefRemarks string          `json:"chefRemarks,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (o Order) Item(itemID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// Clone returns a copy that shares no item slice with the receiver.
func (o Order) Clone() Order {
	out := o
	out.Items = append([]OrderItem(nil), o.Items...)
	return out
}

// LineTotal is price x quantity.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// MenuItem is the catalog view consumed when snapshotting a line.
type MenuItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"isAvailable"`
}
