package models

import (
	"errors"
	"strings"
)

var (
	ErrUnknownStatus = errors.New("unknown status")
	ErrUnknownRole   = errors.New("unknown role")
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPreparing, OrderReady, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further mutation is accepted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// ItemStatus is the kitchen progress of a single line. Items never hold
// completed or cancelled.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
)

func ParseItemStatus(raw string) (ItemStatus, error) {
	status := ItemStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemPreparing, ItemReady:
		return true
	}
	return false
}

type Role string

const (
	RoleWaiter Role = "waiter"
	RoleChef   Role = "chef"
	RoleAdmin  Role = "admin"
)

func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleWaiter, RoleChef, RoleAdmin:
		return role, nil
	}
	return "", ErrUnknownRole
}

// Actor is the already authenticated caller of a mutation.
type Actor struct {
	UserID int64
	Role   Role
}
