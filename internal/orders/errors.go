package orders

import "errors"

var (
	ErrForbidden           = errors.New("action not permitted")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrMenuItemUnavailable = errors.New("menu item unavailable")
	ErrItemLocked          = errors.New("item is ready and can no longer be resized")
	ErrInvalidQuantity     = errors.New("quantity must be between 1 and 999")
	ErrAmountTooLarge      = errors.New("order total exceeds the storable amount")
	ErrEmptyOrder          = errors.New("at least one item is required")
)
