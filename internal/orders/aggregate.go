package orders

import "rms/order-service/internal/models"

// DeriveOrderStatus computes the order status implied by its items. Mixed
// pending and ready items with nothing in preparation count as pending.
func DeriveOrderStatus(items []models.OrderItem) models.OrderStatus {
	if len(items) == 0 {
		return models.OrderPending
	}
	allPending, allReady := true, true
	for _, item := range items {
		switch item.Status {
		case models.ItemPreparing:
			return models.OrderPreparing
		case models.ItemPending:
			allReady = false
		case models.ItemReady:
			allPending = false
		}
	}
	switch {
	case allPending:
		return models.OrderPending
	case allReady:
		return models.OrderReady
	default:
		return models.OrderPending
	}
}
