package orders

import (
	"testing"

	"rms/order-service/internal/models"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		action Action
		role   models.Role
		from   models.OrderStatus
		want   bool
	}{
		{ActionCancel, models.RoleWaiter, models.OrderPending, true},
		{ActionCancel, models.RoleWaiter, models.OrderPreparing, false},
		{ActionCancel, models.RoleWaiter, models.OrderReady, false},
		{ActionCancel, models.RoleChef, models.OrderPreparing, true},
		{ActionCancel, models.RoleAdmin, models.OrderReady, true},
		{ActionCancel, models.RoleAdmin, models.OrderCompleted, false},
		{ActionCancel, models.RoleChef, models.OrderCancelled, false},
		{ActionComplete, models.RoleWaiter, models.OrderReady, true},
		{ActionComplete, models.RoleWaiter, models.OrderPending, false},
		{ActionComplete, models.RoleWaiter, models.OrderPreparing, false},
		{ActionComplete, models.RoleChef, models.OrderPending, true},
		{ActionComplete, models.RoleAdmin, models.OrderPreparing, true},
		{ActionComplete, models.RoleAdmin, models.OrderCancelled, false},
		{ActionOverrideStatus, models.RoleWaiter, models.OrderPending, false},
		{ActionOverrideStatus, models.RoleChef, models.OrderPending, true},
		{ActionSetItemStatus, models.RoleWaiter, models.OrderPending, false},
		{ActionSetItemStatus, models.RoleChef, models.OrderReady, true},
		{ActionSetItemStatus, models.RoleChef, models.OrderCompleted, false},
		{ActionUpdateQuantities, models.RoleChef, models.OrderPending, false},
		{ActionUpdateQuantities, models.RoleWaiter, models.OrderPreparing, true},
		{ActionUpdateQuantities, models.RoleWaiter, models.OrderCancelled, false},
		{ActionAddItems, models.RoleAdmin, models.OrderReady, true},
		{ActionAddItems, models.RoleWaiter, models.OrderCompleted, false},
		{ActionCollectCash, models.RoleWaiter, models.OrderCompleted, true},
		{ActionCollectCash, models.RoleAdmin, models.OrderCancelled, false},
		{ActionCollectCash, models.RoleChef, models.OrderReady, false},
	}
	for _, tc := range tests {
		if got := Allowed(tc.action, tc.role, tc.from); got != tc.want {
			t.Fatalf("Allowed(%q, %q, %q)=%v, want %v", tc.action, tc.role, tc.from, got, tc.want)
		}
	}
}

func TestRoleAllowed(t *testing.T) {
	tests := []struct {
		action Action
		role   models.Role
		want   bool
	}{
		{ActionCreate, models.RoleWaiter, true},
		{ActionCreate, models.RoleAdmin, true},
		{ActionCreate, models.RoleChef, false},
		{ActionDelete, models.RoleAdmin, true},
		{ActionDelete, models.RoleWaiter, false},
		{ActionSetItemStatus, models.RoleWaiter, false},
		{Action("reopen"), models.RoleAdmin, false},
	}
	for _, tc := range tests {
		if got := RoleAllowed(tc.action, tc.role); got != tc.want {
			t.Fatalf("RoleAllowed(%q, %q)=%v, want %v", tc.action, tc.role, got, tc.want)
		}
	}
}

func TestStatusAction(t *testing.T) {
	if statusAction(models.OrderCancelled) != ActionCancel {
		t.Fatalf("cancelled should map to cancel")
	}
	if statusAction(models.OrderCompleted) != ActionComplete {
		t.Fatalf("completed should map to complete")
	}
	if statusAction(models.OrderReady) != ActionOverrideStatus {
		t.Fatalf("ready should map to override_status")
	}
}
