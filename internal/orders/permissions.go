package orders

import "rms/order-service/internal/models"

type Action string

const (
	ActionCreate           Action = "create"
	ActionCancel           Action = "cancel"
	ActionComplete         Action = "complete"
	ActionOverrideStatus   Action = "override_status"
	ActionSetItemStatus    Action = "set_item_status"
	ActionUpdateQuantities Action = "update_quantities"
	ActionAddItems         Action = "add_items"
	ActionCollectCash      Action = "collect_cash"
	ActionDelete           Action = "delete"
)

var (
	live     = []models.OrderStatus{models.OrderPending, models.OrderPreparing, models.OrderReady}
	billable = []models.OrderStatus{models.OrderPending, models.OrderPreparing, models.OrderReady, models.OrderCompleted}
)

// permissionTable maps an action and a role to the order statuses the action
// may start from. Actions that do not depend on the order status (create,
// delete) list the role with a nil slice.
var permissionTable = map[Action]map[models.Role][]models.OrderStatus{
	ActionCreate: {
		models.RoleWaiter: nil,
		models.RoleAdmin:  nil,
	},
	ActionCancel: {
		models.RoleAdmin:  live,
		models.RoleChef:   live,
		models.RoleWaiter: {models.OrderPending},
	},
	ActionComplete: {
		models.RoleAdmin:  live,
		models.RoleChef:   live,
		models.RoleWaiter: {models.OrderReady},
	},
	ActionOverrideStatus: {
		models.RoleAdmin: live,
		models.RoleChef:  live,
	},
	ActionSetItemStatus: {
		models.RoleAdmin: live,
		models.RoleChef:  live,
	},
	ActionUpdateQuantities: {
		models.RoleAdmin:  live,
		models.RoleWaiter: live,
	},
	ActionAddItems: {
		models.RoleAdmin:  live,
		models.RoleWaiter: live,
	},
	ActionCollectCash: {
		models.RoleAdmin:  billable,
		models.RoleWaiter: billable,
	},
	ActionDelete: {
		models.RoleAdmin: nil,
	},
}

func RoleAllowed(action Action, role models.Role) bool {
	roles, ok := permissionTable[action]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

func Allowed(action Action, role models.Role, from models.OrderStatus) bool {
	allowed, ok := permissionTable[action][role]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// statusAction names the action behind an explicit order status request.
func statusAction(to models.OrderStatus) Action {
	switch to {
	case models.OrderCancelled:
		return ActionCancel
	case models.OrderCompleted:
		return ActionComplete
	default:
		return ActionOverrideStatus
	}
}
