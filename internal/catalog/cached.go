package catalog

import (
	"context"
	"encoding/json"
	"time"

	"rms/order-service/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const keyPrefix = "menu_item:"

// Cached is a read-through Redis cache in front of another Source. Redis
// failures trip a circuit breaker and lookups fall through to the backing
// source, so the cache never fails an order.
//
// Entries, availability included, are served until ttl expires. An item
// switched off at the source can still be ordered for up to ttl.
type Cached struct {
	next    Source
	client  redis.Cmdable
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewCached(next Source, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "menu-cache",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Cached{next: next, client: client, ttl: ttl, breaker: breaker, logger: logger}
}

func (c *Cached) MenuItems(ctx context.Context, ids []string) (map[string]models.MenuItem, error) {
	out := make(map[string]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	missing := ids
	cached, err := withBreaker(c.breaker, func() ([]interface{}, error) {
		return c.client.MGet(ctx, keys(ids)...).Result()
	})
	if err != nil {
		c.logger.Debug("menu cache read skipped", zap.Error(err))
	} else {
		missing = missing[:0:0]
		for i, raw := range cached {
			item, ok := decode(raw)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			out[ids[i]] = item
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.next.MenuItems(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, item := range loaded {
		out[id] = item
	}
	c.store(ctx, loaded)
	return out, nil
}

func (c *Cached) store(ctx context.Context, items map[string]models.MenuItem) {
	if len(items) == 0 {
		return
	}
	_, err := withBreaker(c.breaker, func() ([]redis.Cmder, error) {
		return c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, item := range items {
				data, err := json.Marshal(item)
				if err != nil {
					return err
				}
				pipe.Set(ctx, keyPrefix+id, data, c.ttl)
			}
			return nil
		})
	})
	if err != nil {
		c.logger.Debug("menu cache write skipped", zap.Error(err))
	}
}

func keys(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = keyPrefix + id
	}
	return out
}

func decode(raw interface{}) (models.MenuItem, bool) {
	s, ok := raw.(string)
	if !ok {
		return models.MenuItem{}, false
	}
	var item models.MenuItem
	if err := json.Unmarshal([]byte(s), &item); err != nil {
		return models.MenuItem{}, false
	}
	return item, true
}

func withBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}
