package postgres

import (
	"context"
	"time"

	"rms/order-service/internal/models"
	"rms/order-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

type Options struct {
	Now func() time.Time
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Store{pool: pool, now: now}
}

func (s *Store) CreateOrder(ctx context.Context, order models.Order) (created models.Order, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, errors.Wrap(err, "begin tx")
	}
	defer rollback(ctx, tx, &err)

	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}
	if order.Version == 0 {
		order.Version = 1
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			order_id, order_number, business_date, waiter_id, table_number, status,
			total_amount, notes, cash_collected, version, created_at, updated_at
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $11)
	`, order.ID, order.OrderNumber, businessDate(order.CreatedAt), order.WaiterID, order.TableNumber,
		string(order.Status), order.TotalAmount, order.Notes, order.CashCollected, order.Version, order.CreatedAt)
	if err != nil {
		return models.Order{}, errors.Wrap(err, "insert order")
	}
	if err = insertItems(ctx, tx, order.ID, 0, order.Items, order.CreatedAt); err != nil {
		return models.Order{}, err
	}

	created, err = loadOrder(ctx, tx, order.ID, false)
	if err != nil {
		return models.Order{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Order{}, errors.Wrap(err, "commit")
	}
	return created, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	return loadOrder(ctx, s.pool, orderID, false)
}

func (s *Store) ListOrders(ctx context.Context, filter store.ListOrdersFilter) ([]models.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var status, waiterID interface{}
	if filter.Status != "" {
		status = string(filter.Status)
	}
	if filter.WaiterID != nil {
		waiterID = *filter.WaiterID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::bigint IS NULL OR waiter_id = $2)
		ORDER BY created_at DESC, order_number DESC
		LIMIT $3
	`, status, waiterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var out []models.Order
	index := make(map[string]int)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		index[order.ID] = len(out)
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(out) == 0 {
		return []models.Order{}, nil
	}

	ids := make([]string, 0, len(out))
	for _, order := range out {
		ids = append(ids, order.ID)
	}
	items, err := loadItems(ctx, s.pool, `WHERE order_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		i := index[item.OrderID]
		out[i].Items = append(out[i].Items, item)
	}
	return out, nil
}

// MutateOrder locks the order row for the duration of the transaction, so
// concurrent mutations of one order are applied one after another and each
// sees the result of the previous one.
func (s *Store) MutateOrder(ctx context.Context, orderID string, expectedVersion int64, fn store.MutateFunc) (updated models.Order, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, errors.Wrap(err, "begin tx")
	}
	defer rollback(ctx, tx, &err)

	current, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return models.Order{}, err
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return models.Order{}, store.ErrVersionConflict
	}

	change, err := fn(current.Clone())
	if err != nil {
		return models.Order{}, err
	}
	now := s.now().UTC()

	for _, c := range change.ItemStatuses {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
			UPDATE order_items
			SET status = $1, chef_remarks = COALESCE($2::text, chef_remarks), updated_at = $3
			WHERE order_item_id = $4 AND order_id = $5
		`, string(c.Status), c.ChefRemarks, now, c.ItemID, orderID)
		if err != nil {
			return models.Order{}, errors.Wrap(err, "update item status")
		}
		if tag.RowsAffected() == 0 {
			return models.Order{}, errors.Wrap(store.ErrItemNotFound, c.ItemID)
		}
	}

	for _, c := range change.Quantities {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
			UPDATE order_items
			SET quantity = $1, total_price = $2::numeric, updated_at = $3
			WHERE order_item_id = $4 AND order_id = $5
		`, c.Quantity, c.TotalPrice, now, c.ItemID, orderID)
		if err != nil {
			return models.Order{}, errors.Wrap(err, "update item quantity")
		}
		if tag.RowsAffected() == 0 {
			return models.Order{}, errors.Wrap(store.ErrItemNotFound, c.ItemID)
		}
	}

	if err = insertItems(ctx, tx, orderID, len(current.Items), change.NewItems, now); err != nil {
		return models.Order{}, err
	}

	var status interface{}
	if change.Status != nil {
		status = string(*change.Status)
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = COALESCE($2::text, status),
			total_amount = total_amount + $3::numeric,
			cash_collected = cash_collected OR $4,
			version = version + 1,
			updated_at = $5
		WHERE order_id = $1
	`, orderID, status, change.TotalDelta, change.CashCollected, now)
	if err != nil {
		return models.Order{}, errors.Wrap(err, "update order")
	}

	updated, err = loadOrder(ctx, tx, orderID, false)
	if err != nil {
		return models.Order{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Order{}, errors.Wrap(err, "commit")
	}
	return updated, nil
}

func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return errors.Wrap(err, "delete order")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrOrderNotFound
	}
	return nil
}

// NextDailyNumber hands out the next order number for businessDate
// (YYYY-MM-DD).
func (s *Store) NextDailyNumber(ctx context.Context, businessDate string) (int64, error) {
	var next int64
	row := s.pool.QueryRow(ctx, `
		INSERT INTO order_number_sequences (business_date, last_value)
		VALUES ($1::date, 1)
		ON CONFLICT (business_date)
		DO UPDATE SET last_value = order_number_sequences.last_value + 1
		RETURNING last_value
	`, businessDate)
	if err := row.Scan(&next); err != nil {
		return 0, errors.Wrap(err, "next order number")
	}
	return next, nil
}

func (s *Store) MenuItems(ctx context.Context, ids []string) (map[string]models.MenuItem, error) {
	out := make(map[string]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT menu_item_id, name, price, is_available
		FROM menu_items
		WHERE menu_item_id = ANY($1::text[])
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query menu items")
	}
	defer rows.Close()
	for rows.Next() {
		var item models.MenuItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.IsAvailable); err != nil {
			return nil, errors.Wrap(err, "scan menu item")
		}
		out[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "query menu items")
	}
	return out, nil
}

const orderColumns = `order_id, order_number, waiter_id, table_number, status, total_amount,
		notes, cash_collected, version, created_at, updated_at`

const itemColumns = `order_item_id, order_id, menu_item_id, name, price, quantity,
		total_price, status, chef_remarks, created_at, updated_at`

func loadOrder(ctx context.Context, q querier, orderID string, forUpdate bool) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRow(ctx, query, orderID))
	if err != nil {
		return models.Order{}, err
	}
	order.Items, err = loadItems(ctx, q, `WHERE order_id = $1`, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func loadItems(ctx context.Context, q querier, where string, arg any) ([]models.OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM order_items `+where+` ORDER BY order_id, position`, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		var status string
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.MenuItemID, &item.Name, &item.Price, &item.Quantity,
			&item.TotalPrice, &status, &item.ChefRemarks, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		item.Status = models.ItemStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	return items, nil
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var order models.Order
	var status string
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.WaiterID, &order.TableNumber, &status, &order.TotalAmount,
		&order.Notes, &order.CashCollected, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, store.ErrOrderNotFound
		}
		return models.Order{}, errors.Wrap(err, "scan order")
	}
	order.Status = models.OrderStatus(status)
	return order, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID string, offset int, items []models.OrderItem, at time.Time) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, item := range items {
		batch.Queue(`
			INSERT INTO order_items (
				order_item_id, order_id, position, menu_item_id, name, price, quantity,
				total_price, status, chef_remarks, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9, $10, $11, $11)
		`, item.ID, orderID, offset+i, item.MenuItemID, item.Name, item.Price, item.Quantity,
			item.TotalPrice, string(item.Status), item.ChefRemarks, at)
	}
	results := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return errors.Wrap(err, "insert order item")
		}
	}
	return errors.Wrap(results.Close(), "insert order items")
}

func rollback(ctx context.Context, tx pgx.Tx, err *error) {
	if *err == nil {
		return
	}
	if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
		*err = errors.Wrapf(*err, "rollback failed: %v", rbErr)
	}
}

func businessDate(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
