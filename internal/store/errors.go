package store

import "errors"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrItemNotFound     = errors.New("order item not found")
	ErrMenuItemNotFound = errors.New("menu item not found")
	ErrVersionConflict  = errors.New("order has been modified by another request")
)
