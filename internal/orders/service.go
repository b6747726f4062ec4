package orders

import (
	"context"
	"fmt"
	"time"

	"rms/order-service/internal/events"
	"rms/order-service/internal/logging"
	"rms/order-service/internal/models"
	"rms/order-service/internal/numbering"
	"rms/order-service/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MenuCatalog resolves menu items by id. Ids missing from the result are
// unknown to the catalog.
type MenuCatalog interface {
	MenuItems(ctx context.Context, ids []string) (map[string]models.MenuItem, error)
}

// MaxQuantity caps a single line.
const MaxQuantity = 999

// maxAmount is the largest value a NUMERIC(12,2) column holds.
var maxAmount = decimal.RequireFromString("9999999999.99")

func validQuantity(q int) bool {
	return q > 0 && q <= MaxQuantity
}

func checkAmount(total decimal.Decimal) error {
	if total.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: %s", ErrAmountTooLarge, total.String())
	}
	return nil
}

type ItemRequest struct {
	MenuItemID string
	Quantity   int
}

type CreateOrderInput struct {
	Items       []ItemRequest
	TableNumber int
	Notes       string
}

type QuantityUpdate struct {
	ItemID   string
	Quantity int
}

type SetItemStatusInput struct {
	OrderID         string
	ItemID          string
	Status          models.ItemStatus
	ChefRemarks     *string
	ExpectedVersion int64
}

type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

type Service struct {
	store     store.OrderStore
	catalog   MenuCatalog
	numbers   numbering.Source
	publisher events.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

func NewService(st store.OrderStore, catalog MenuCatalog, numbers numbering.Source, publisher events.Publisher, opts Options) *Service {
	s := &Service{
		store:     st,
		catalog:   catalog,
		numbers:   numbers,
		publisher: publisher,
		logger:    opts.Logger,
		tracer:    otel.Tracer("rms/order-service/orders"),
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Service) CreateOrder(ctx context.Context, actor models.Actor, input CreateOrderInput) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(attribute.String("actor.role", string(actor.Role))))
	defer span.End()

	if !RoleAllowed(ActionCreate, actor.Role) {
		return models.Order{}, fail(span, forbidden(actor.Role, ActionCreate))
	}
	if err := validateItemRequests(input.Items); err != nil {
		return models.Order{}, fail(span, err)
	}
	lines, total, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return models.Order{}, fail(span, err)
	}
	n, err := s.numbers.Next(ctx)
	if err != nil {
		return models.Order{}, fail(span, fmt.Errorf("order number: %w", err))
	}

	now := s.now().UTC()
	order := models.Order{
		ID:          s.newID(),
		OrderNumber: numbering.Format(n),
		WaiterID:    actor.UserID,
		TableNumber: input.TableNumber,
		Status:      models.OrderPending,
		TotalAmount: total,
		Notes:       input.Notes,
		Version:     1,
		Items:       lines,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor.Role == models.RoleAdmin {
		order.WaiterID = models.AdminWaiterID
		order.CashCollected = true
	}

	created, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		return models.Order{}, fail(span, fmt.Errorf("create order: %w", err))
	}
	span.SetAttributes(attribute.String("order.id", created.ID), attribute.String("order.number", created.OrderNumber))

	s.publisher.Publish(ctx, events.NewOrderEvent(created, now))
	logging.Info(ctx, s.logger, "order created",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.Int64("waiter_id", created.WaiterID),
		zap.Int("items", len(created.Items)),
		zap.String("total", created.TotalAmount.String()),
	)
	return created, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.GetOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, fail(span, err)
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter store.ListOrdersFilter) ([]models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.ListOrders")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fail(span, ErrInvalidStatus)
	}
	list, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fail(span, err)
	}
	return list, nil
}

// SetOrderStatus applies an explicit order status. Completing and
// cancelling freeze the order. An explicit pending, preparing or ready is
// pushed down to every item so the order stays consistent with its items.
func (s *Service) SetOrderStatus(ctx context.Context, actor models.Actor, orderID string, to models.OrderStatus, expectedVersion int64) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.SetOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(to)),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer span.End()

	if !to.Valid() {
		return models.Order{}, fail(span, fmt.Errorf("%w: %q", ErrInvalidStatus, to))
	}
	action := statusAction(to)
	if !RoleAllowed(action, actor.Role) {
		return models.Order{}, fail(span, forbidden(actor.Role, action))
	}

	updated, err := s.store.MutateOrder(ctx, orderID, expectedVersion, func(order models.Order) (store.OrderChange, error) {
		if err := guard(action, actor.Role, order.Status); err != nil {
			return store.OrderChange{}, err
		}
		change := store.OrderChange{Status: &to}
		if action == ActionOverrideStatus {
			itemStatus := models.ItemStatus(to)
			for _, item := range order.Items {
				if item.Status != itemStatus {
					change.ItemStatuses = append(change.ItemStatuses, store.ItemStatusChange{ItemID: item.ID, Status: itemStatus})
				}
			}
		}
		return change, nil
	})
	if err != nil {
		return models.Order{}, fail(span, err)
	}

	s.publisher.Publish(ctx, events.OrderStatusEvent(updated, s.now().UTC()))
	logging.Info(ctx, s.logger, "order status changed",
		zap.String("order_id", updated.ID),
		zap.String("order_number", updated.OrderNumber),
		zap.String("status", string(updated.Status)),
		zap.String("role", string(actor.Role)),
	)
	return updated, nil
}

// SetItemStatus moves one item through the kitchen and re-derives the
// order status. Both events are sent even when the order status is
// unchanged.
func (s *Service) SetItemStatus(ctx context.Context, actor models.Actor, input SetItemStatusInput) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.SetItemStatus", trace.WithAttributes(
		attribute.String("order.id", input.OrderID),
		attribute.String("item.id", input.ItemID),
		attribute.String("item.status", string(input.Status)),
	))
	defer span.End()

	if !input.Status.Valid() {
		return models.Order{}, fail(span, fmt.Errorf("%w: %q", ErrInvalidStatus, input.Status))
	}
	if !RoleAllowed(ActionSetItemStatus, actor.Role) {
		return models.Order{}, fail(span, forbidden(actor.Role, ActionSetItemStatus))
	}

	now := s.now().UTC()
	updated, err := s.store.MutateOrder(ctx, input.OrderID, input.ExpectedVersion, func(order models.Order) (store.OrderChange, error) {
		if err := guard(ActionSetItemStatus, actor.Role, order.Status); err != nil {
			return store.OrderChange{}, err
		}
		if _, ok := order.Item(input.ItemID); !ok {
			return store.OrderChange{}, fmt.Errorf("%w: %s", store.ErrItemNotFound, input.ItemID)
		}
		change := store.OrderChange{
			ItemStatuses: []store.ItemStatusChange{{ItemID: input.ItemID, Status: input.Status, ChefRemarks: input.ChefRemarks}},
		}
		derived := DeriveOrderStatus(change.Apply(order, now).Items)
		change.Status = &derived
		return change, nil
	})
	if err != nil {
		return models.Order{}, fail(span, err)
	}

	item, _ := updated.Item(input.ItemID)
	s.publisher.Publish(ctx, events.ItemStatusEvent(updated, item, now))
	s.publisher.Publish(ctx, events.OrderStatusEvent(updated, now))
	logging.Info(ctx, s.logger, "item status changed",
		zap.String("order_id", updated.ID),
		zap.String("item_id", item.ID),
		zap.String("item_status", string(item.Status)),
		zap.String("order_status", string(updated.Status)),
	)
	return updated, nil
}

// UpdateItemQuantities resizes items in one batch. Any ready item rejects
// the whole batch. The total moves by the accumulated price difference.
func (s *Service) UpdateItemQuantities(ctx context.Context, actor models.Actor, orderID string, updates []QuantityUpdate, expectedVersion int64) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdateItemQuantities", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("updates", len(updates)),
	))
	defer span.End()

	if len(updates) == 0 {
		return models.Order{}, fail(span, ErrEmptyOrder)
	}
	for _, u := range updates {
		if !validQuantity(u.Quantity) {
			return models.Order{}, fail(span, fmt.Errorf("%w: item %s", ErrInvalidQuantity, u.ItemID))
		}
	}
	if !RoleAllowed(ActionUpdateQuantities, actor.Role) {
		return models.Order{}, fail(span, forbidden(actor.Role, ActionUpdateQuantities))
	}

	updated, err := s.store.MutateOrder(ctx, orderID, expectedVersion, func(order models.Order) (store.OrderChange, error) {
		if err := guard(ActionUpdateQuantities, actor.Role, order.Status); err != nil {
			return store.OrderChange{}, err
		}
		quantities := make(map[string]int, len(updates))
		var touched []models.OrderItem
		delta := decimal.Zero
		for _, u := range updates {
			item, ok := order.Item(u.ItemID)
			if !ok {
				return store.OrderChange{}, fmt.Errorf("%w: %s", store.ErrItemNotFound, u.ItemID)
			}
			if item.Status == models.ItemReady {
				return store.OrderChange{}, fmt.Errorf("%w: %s", ErrItemLocked, item.Name)
			}
			before, seen := quantities[item.ID]
			if !seen {
				before = item.Quantity
				touched = append(touched, item)
			}
			delta = delta.Add(models.LineTotal(item.Price, u.Quantity-before))
			quantities[item.ID] = u.Quantity
		}

		if err := checkAmount(order.TotalAmount.Add(delta)); err != nil {
			return store.OrderChange{}, err
		}
		change := store.OrderChange{TotalDelta: delta}
		for _, item := range touched {
			q := quantities[item.ID]
			change.Quantities = append(change.Quantities, store.QuantityChange{
				ItemID:     item.ID,
				Quantity:   q,
				TotalPrice: models.LineTotal(item.Price, q),
			})
		}
		return change, nil
	})
	if err != nil {
		return models.Order{}, fail(span, err)
	}

	batch := make([]events.QuantityUpdate, 0, len(updates))
	for _, u := range updates {
		batch = append(batch, events.QuantityUpdate{ID: u.ItemID, Quantity: u.Quantity})
	}
	s.publisher.Publish(ctx, events.UpdateItemEvent(updated, batch, s.now().UTC()))
	logging.Info(ctx, s.logger, "item quantities updated",
		zap.String("order_id", updated.ID),
		zap.Int("updates", len(updates)),
		zap.String("total", updated.TotalAmount.String()),
	)
	return updated, nil
}

// AddItems appends freshly priced pending items to a live order.
func (s *Service) AddItems(ctx context.Context, actor models.Actor, orderID string, items []ItemRequest, expectedVersion int64) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.AddItems", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	if !RoleAllowed(ActionAddItems, actor.Role) {
		return models.Order{}, fail(span, forbidden(actor.Role, ActionAddItems))
	}
	if err := validateItemRequests(items); err != nil {
		return models.Order{}, fail(span, err)
	}
	lines, total, err := s.resolveItems(ctx, items)
	if err != nil {
		return models.Order{}, fail(span, err)
	}

	now := s.now().UTC()
	updated, err := s.store.MutateOrder(ctx, orderID, expectedVersion, func(order models.Order) (store.OrderChange, error) {
		if err := guard(ActionAddItems, actor.Role, order.Status); err != nil {
			return store.OrderChange{}, err
		}
		if err := checkAmount(order.TotalAmount.Add(total)); err != nil {
			return store.OrderChange{}, err
		}
		change := store.OrderChange{NewItems: lines, TotalDelta: total}
		derived := DeriveOrderStatus(change.Apply(order, now).Items)
		change.Status = &derived
		return change, nil
	})
	if err != nil {
		return models.Order{}, fail(span, err)
	}

	inserted := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		if item, ok := updated.Item(line.ID); ok {
			inserted = append(inserted, item)
		}
	}
	s.publisher.Publish(ctx, events.NewItemsEvent(updated, inserted, now))
	s.publisher.Publish(ctx, events.OrderStatusEvent(updated, now))
	logging.Info(ctx, s.logger, "items added to order",
		zap.String("order_id", updated.ID),
		zap.Int("items", len(inserted)),
		zap.String("total", updated.TotalAmount.String()),
	)
	return updated, nil
}

// CollectCash records that the bill was settled in cash.
func (s *Service) CollectCash(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CollectCash", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if !RoleAllowed(ActionCollectCash, actor.Role) {
		return models.Order{}, fail(span, forbidden(actor.Role, ActionCollectCash))
	}
	updated, err := s.store.MutateOrder(ctx, orderID, 0, func(order models.Order) (store.OrderChange, error) {
		if !Allowed(ActionCollectCash, actor.Role, order.Status) {
			return store.OrderChange{}, fmt.Errorf("%w: cannot collect cash for a %s order", ErrForbidden, order.Status)
		}
		return store.OrderChange{CashCollected: true}, nil
	})
	if err != nil {
		return models.Order{}, fail(span, err)
	}
	logging.Info(ctx, s.logger, "cash collected", zap.String("order_id", updated.ID), zap.Int64("user_id", actor.UserID))
	return updated, nil
}

// DeleteOrder removes the aggregate entirely. It bypasses the status rules.
func (s *Service) DeleteOrder(ctx context.Context, actor models.Actor, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "orders.DeleteOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if !RoleAllowed(ActionDelete, actor.Role) {
		return fail(span, forbidden(actor.Role, ActionDelete))
	}
	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		return fail(span, err)
	}
	logging.Info(ctx, s.logger, "order deleted", zap.String("order_id", orderID), zap.Int64("user_id", actor.UserID))
	return nil
}

func (s *Service) resolveItems(ctx context.Context, requests []ItemRequest) ([]models.OrderItem, decimal.Decimal, error) {
	ids := make([]string, 0, len(requests))
	seen := make(map[string]bool, len(requests))
	for _, r := range requests {
		if !seen[r.MenuItemID] {
			seen[r.MenuItemID] = true
			ids = append(ids, r.MenuItemID)
		}
	}
	menu, err := s.catalog.MenuItems(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("menu lookup: %w", err)
	}

	lines := make([]models.OrderItem, 0, len(requests))
	total := decimal.Zero
	for _, r := range requests {
		m, ok := menu[r.MenuItemID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", store.ErrMenuItemNotFound, r.MenuItemID)
		}
		if !m.IsAvailable {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, m.Name)
		}
		line := models.OrderItem{
			ID:         s.newID(),
			MenuItemID: m.ID,
			Name:       m.Name,
			Price:      m.Price,
			Quantity:   r.Quantity,
			TotalPrice: models.LineTotal(m.Price, r.Quantity),
			Status:     models.ItemPending,
		}
		total = total.Add(line.TotalPrice)
		lines = append(lines, line)
	}
	if err := checkAmount(total); err != nil {
		return nil, decimal.Zero, err
	}
	return lines, total, nil
}

func validateItemRequests(items []ItemRequest) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range items {
		if !validQuantity(item.Quantity) {
			return fmt.Errorf("%w: menu item %s", ErrInvalidQuantity, item.MenuItemID)
		}
	}
	return nil
}

// guard rejects any mutation of a terminal order, then consults the
// permission table.
func guard(action Action, role models.Role, from models.OrderStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: order is already %s", ErrForbidden, from)
	}
	if !Allowed(action, role, from) {
		return fmt.Errorf("%w: %s cannot %s a %s order", ErrForbidden, role, action, from)
	}
	return nil
}

func forbidden(role models.Role, action Action) error {
	return fmt.Errorf("%w: %s cannot %s", ErrForbidden, role, action)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
