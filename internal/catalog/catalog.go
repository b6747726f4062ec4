// Package catalog provides read-only menu lookups used when pricing order
// lines. Menu maintenance happens elsewhere.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"rms/order-service/internal/models"
)

type Source interface {
	MenuItems(ctx context.Context, ids []string) (map[string]models.MenuItem, error)
}

// Static serves a fixed menu held in memory. It is read-only after
// construction.
type Static struct {
	items map[string]models.MenuItem
}

func NewStatic(items ...models.MenuItem) *Static {
	s := &Static{items: make(map[string]models.MenuItem, len(items))}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *Static) MenuItems(_ context.Context, ids []string) (map[string]models.MenuItem, error) {
	out := make(map[string]models.MenuItem, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// LoadStatic reads a JSON array of menu items from path.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu file: %w", err)
	}
	var items []models.MenuItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse menu file: %w", err)
	}
	return NewStatic(items...), nil
}
