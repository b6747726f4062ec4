// Package memory is an OrderStore kept in process memory. It backs local
// development and the service tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"rms/order-service/internal/models"
	"rms/order-service/internal/store"
)

type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	orders map[string]models.Order
}

func NewStore() *Store {
	return &Store{now: time.Now, orders: make(map[string]models.Order)}
}

func (s *Store) CreateOrder(_ context.Context, order models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	if order.Version == 0 {
		order.Version = 1
	}
	order = order.Clone()
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = order.CreatedAt
		order.Items[i].UpdatedAt = order.CreatedAt
	}
	s.orders[order.ID] = order
	return order.Clone(), nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, store.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, filter store.ListOrdersFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.WaiterID != nil && order.WaiterID != *filter.WaiterID {
			continue
		}
		out = append(out, order.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber > out[j].OrderNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) MutateOrder(_ context.Context, orderID string, expectedVersion int64, fn store.MutateFunc) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, store.ErrOrderNotFound
	}
	if expectedVersion > 0 && order.Version != expectedVersion {
		return models.Order{}, store.ErrVersionConflict
	}
	change, err := fn(order.Clone())
	if err != nil {
		return models.Order{}, err
	}
	for _, c := range change.ItemStatuses {
		if _, ok := order.Item(c.ItemID); !ok {
			return models.Order{}, store.ErrItemNotFound
		}
	}
	for _, c := range change.Quantities {
		if _, ok := order.Item(c.ItemID); !ok {
			return models.Order{}, store.ErrItemNotFound
		}
	}
	updated := change.Apply(order, s.now().UTC())
	s.orders[orderID] = updated
	return updated.Clone(), nil
}

func (s *Store) DeleteOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return store.ErrOrderNotFound
	}
	delete(s.orders, orderID)
	return nil
}
