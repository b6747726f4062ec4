package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rms/order-service/internal/models"
	"rms/order-service/internal/orders"
	"rms/order-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOrderID = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	testItemID  = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

type fakeService struct {
	createFn     func(ctx context.Context, actor models.Actor, input orders.CreateOrderInput) (models.Order, error)
	getFn        func(ctx context.Context, orderID string) (models.Order, error)
	listFn       func(ctx context.Context, filter store.ListOrdersFilter) ([]models.Order, error)
	setStatusFn  func(ctx context.Context, actor models.Actor, orderID string, to models.OrderStatus, version int64) (models.Order, error)
	itemStatusFn func(ctx context.Context, actor models.Actor, input orders.SetItemStatusInput) (models.Order, error)
	quantitiesFn func(ctx context.Context, actor models.Actor, orderID string, updates []orders.QuantityUpdate, version int64) (models.Order, error)
	addItemsFn   func(ctx context.Context, actor models.Actor, orderID string, items []orders.ItemRequest, version int64) (models.Order, error)
	cashFn       func(ctx context.Context, actor models.Actor, orderID string) (models.Order, error)
	deleteFn     func(ctx context.Context, actor models.Actor, orderID string) error
}

func (f fakeService) CreateOrder(ctx context.Context, actor models.Actor, input orders.CreateOrderInput) (models.Order, error) {
	if f.createFn == nil {
		return models.Order{}, nil
	}
	return f.createFn(ctx, actor, input)
}

func (f fakeService) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	if f.getFn == nil {
		return models.Order{}, store.ErrOrderNotFound
	}
	return f.getFn(ctx, orderID)
}

func (f fakeService) ListOrders(ctx context.Context, filter store.ListOrdersFilter) ([]models.Order, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, filter)
}

func (f fakeService) SetOrderStatus(ctx context.Context, actor models.Actor, orderID string, to models.OrderStatus, version int64) (models.Order, error) {
	if f.setStatusFn == nil {
		return models.Order{}, nil
	}
	return f.setStatusFn(ctx, actor, orderID, to, version)
}

func (f fakeService) SetItemStatus(ctx context.Context, actor models.Actor, input orders.SetItemStatusInput) (models.Order, error) {
	if f.itemStatusFn == nil {
		return models.Order{}, nil
	}
	return f.itemStatusFn(ctx, actor, input)
}

func (f fakeService) UpdateItemQuantities(ctx context.Context, actor models.Actor, orderID string, updates []orders.QuantityUpdate, version int64) (models.Order, error) {
	if f.quantitiesFn == nil {
		return models.Order{}, nil
	}
	return f.quantitiesFn(ctx, actor, orderID, updates, version)
}

func (f fakeService) AddItems(ctx context.Context, actor models.Actor, orderID string, items []orders.ItemRequest, version int64) (models.Order, error) {
	if f.addItemsFn == nil {
		return models.Order{}, nil
	}
	return f.addItemsFn(ctx, actor, orderID, items, version)
}

func (f fakeService) CollectCash(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
	if f.cashFn == nil {
		return models.Order{}, nil
	}
	return f.cashFn(ctx, actor, orderID)
}

func (f fakeService) DeleteOrder(ctx context.Context, actor models.Actor, orderID string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, actor, orderID)
}

func newRequest(method, path string, body interface{}, role string) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	if role != "" {
		req.Header.Set("X-User-ID", "7")
		req.Header.Set("X-User-Role", role)
	}
	return req
}

func serve(svc OrderService, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	NewHandler(svc, nil).Routes().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	resp := serve(fakeService{}, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCreateOrderSuccess(t *testing.T) {
	var gotActor models.Actor
	var gotInput orders.CreateOrderInput
	svc := fakeService{
		createFn: func(ctx context.Context, actor models.Actor, input orders.CreateOrderInput) (models.Order, error) {
			gotActor, gotInput = actor, input
			return models.Order{ID: testOrderID, OrderNumber: "004"}, nil
		},
	}
	body := map[string]interface{}{
		"items":       []map[string]interface{}{{"menuItemId": "paneer", "quantity": 1}, {"menuItemId": "naan", "quantity": 2}},
		"tableNumber": 5,
		"notes":       " no onion ",
	}

	resp := serve(svc, newRequest(http.MethodPost, "/api/orders", body, "waiter"))

	require.Equal(t, http.StatusCreated, resp.Code)
	var created createOrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "004", created.OrderNumber)
	assert.Equal(t, testOrderID, created.OrderID)
	assert.Equal(t, models.Actor{UserID: 7, Role: models.RoleWaiter}, gotActor)
	assert.Equal(t, 5, gotInput.TableNumber)
	assert.Equal(t, "no onion", gotInput.Notes)
	assert.Equal(t, []orders.ItemRequest{{MenuItemID: "paneer", Quantity: 1}, {MenuItemID: "naan", Quantity: 2}}, gotInput.Items)
}

func TestCreateOrderRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"no items", map[string]interface{}{"items": []interface{}{}}, "invalid_request"},
		{"zero quantity", map[string]interface{}{"items": []map[string]interface{}{{"menuItemId": "naan", "quantity": 0}}}, "invalid_request"},
		{"missing menu id", map[string]interface{}{"items": []map[string]interface{}{{"quantity": 1}}}, "invalid_request"},
		{"quantity too large", map[string]interface{}{"items": []map[string]interface{}{{"menuItemId": "naan", "quantity": 1000}}}, "invalid_request"},
		{"quantity beyond int", map[string]interface{}{"items": []map[string]interface{}{{"menuItemId": "naan", "quantity": 1e20}}}, "invalid_json"},
		{"unknown field", map[string]interface{}{"items": []map[string]interface{}{{"menuItemId": "naan", "quantity": 1}}, "total": 10}, "invalid_json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := serve(fakeService{}, newRequest(http.MethodPost, "/api/orders", tc.body, "waiter"))
			require.Equal(t, http.StatusBadRequest, resp.Code)
			body := decodeError(t, resp)
			assert.Equal(t, tc.code, body.Error.Code)
			assert.Equal(t, "req-1", body.RequestID)
		})
	}
}

func TestActorHeadersRequired(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		role   string
	}{
		{"missing", "", ""},
		{"bad id", "abc", "waiter"},
		{"unknown role", "7", "manager"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := newRequest(http.MethodGet, "/api/orders", nil, "")
			if tc.userID != "" {
				req.Header.Set("X-User-ID", tc.userID)
				req.Header.Set("X-User-Role", tc.role)
			}
			resp := serve(fakeService{}, req)
			require.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.Equal(t, "unauthorized", decodeError(t, resp).Error.Code)
		})
	}
}

func TestListOrdersParsesFilter(t *testing.T) {
	var got store.ListOrdersFilter
	svc := fakeService{
		listFn: func(ctx context.Context, filter store.ListOrdersFilter) ([]models.Order, error) {
			got = filter
			return nil, nil
		},
	}

	resp := serve(svc, newRequest(http.MethodGet, "/api/orders?status=ready&waiterId=12&limit=20", nil, "chef"))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, "[]", resp.Body.String())
	assert.Equal(t, models.OrderReady, got.Status)
	require.NotNil(t, got.WaiterID)
	assert.Equal(t, int64(12), *got.WaiterID)
	assert.Equal(t, 20, got.Limit)

	resp = serve(svc, newRequest(http.MethodGet, "/api/orders?limit=0", nil, "chef"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetOrder(t *testing.T) {
	svc := fakeService{
		getFn: func(ctx context.Context, orderID string) (models.Order, error) {
			return models.Order{ID: orderID, Version: 3, TotalAmount: decimal.NewFromInt(200), CreatedAt: time.Now()}, nil
		},
	}

	resp := serve(svc, newRequest(http.MethodGet, "/api/orders/"+testOrderID, nil, "waiter"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `"3"`, resp.Header().Get("ETag"))

	resp = serve(svc, newRequest(http.MethodGet, "/api/orders/not-a-uuid", nil, "waiter"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = serve(fakeService{}, newRequest(http.MethodGet, "/api/orders/"+testOrderID, nil, "waiter"))
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "order_not_found", decodeError(t, resp).Error.Code)
}

func TestSetOrderStatusPassesVersion(t *testing.T) {
	var gotVersion int64
	var gotStatus models.OrderStatus
	svc := fakeService{
		setStatusFn: func(ctx context.Context, actor models.Actor, orderID string, to models.OrderStatus, version int64) (models.Order, error) {
			gotStatus, gotVersion = to, version
			return models.Order{ID: orderID, Status: to, Version: version + 1}, nil
		},
	}

	req := newRequest(http.MethodPut, "/api/orders/"+testOrderID+"/status", map[string]string{"status": "completed"}, "waiter")
	req.Header.Set("If-Match", `W/"4"`)
	resp := serve(svc, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.OrderCompleted, gotStatus)
	assert.Equal(t, int64(4), gotVersion)
	assert.Equal(t, `"5"`, resp.Header().Get("ETag"))

	req = newRequest(http.MethodPut, "/api/orders/"+testOrderID+"/status", map[string]string{"status": "completed"}, "waiter")
	req.Header.Set("If-Match", "latest")
	resp = serve(svc, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSetItemStatus(t *testing.T) {
	var got orders.SetItemStatusInput
	svc := fakeService{
		itemStatusFn: func(ctx context.Context, actor models.Actor, input orders.SetItemStatusInput) (models.Order, error) {
			got = input
			return models.Order{ID: input.OrderID}, nil
		},
	}

	body := map[string]string{"status": "ready", "chefRemarks": "extra crispy"}
	resp := serve(svc, newRequest(http.MethodPut, "/api/orders/"+testOrderID+"/items/"+testItemID+"/status", body, "chef"))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, testOrderID, got.OrderID)
	assert.Equal(t, testItemID, got.ItemID)
	assert.Equal(t, models.ItemReady, got.Status)
	require.NotNil(t, got.ChefRemarks)
	assert.Equal(t, "extra crispy", *got.ChefRemarks)
}

func TestUpdateQuantitiesAndAddItems(t *testing.T) {
	var gotUpdates []orders.QuantityUpdate
	var gotItems []orders.ItemRequest
	svc := fakeService{
		quantitiesFn: func(ctx context.Context, actor models.Actor, orderID string, updates []orders.QuantityUpdate, version int64) (models.Order, error) {
			gotUpdates = updates
			return models.Order{ID: orderID}, nil
		},
		addItemsFn: func(ctx context.Context, actor models.Actor, orderID string, items []orders.ItemRequest, version int64) (models.Order, error) {
			gotItems = items
			return models.Order{ID: orderID}, nil
		},
	}

	body := map[string]interface{}{"updates": []map[string]interface{}{{"id": testItemID, "quantity": 3}}}
	resp := serve(svc, newRequest(http.MethodPut, "/api/orders/"+testOrderID+"/items", body, "waiter"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []orders.QuantityUpdate{{ItemID: testItemID, Quantity: 3}}, gotUpdates)

	body = map[string]interface{}{"items": []map[string]interface{}{{"id": "lassi", "quantity": 3}}}
	resp = serve(svc, newRequest(http.MethodPost, "/api/orders/"+testOrderID+"/items", body, "waiter"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []orders.ItemRequest{{MenuItemID: "lassi", Quantity: 3}}, gotItems)

	gotUpdates, gotItems = nil, nil
	body = map[string]interface{}{"updates": []map[string]interface{}{{"id": testItemID, "quantity": 5000000000}}}
	resp = serve(svc, newRequest(http.MethodPut, "/api/orders/"+testOrderID+"/items", body, "waiter"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, gotUpdates)

	body = map[string]interface{}{"items": []map[string]interface{}{{"id": "lassi", "quantity": 1000}}}
	resp = serve(svc, newRequest(http.MethodPost, "/api/orders/"+testOrderID+"/items", body, "waiter"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, gotItems)
}

func TestCollectCashAndDelete(t *testing.T) {
	svc := fakeService{
		cashFn: func(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
			return models.Order{ID: orderID, CashCollected: true}, nil
		},
	}
	resp := serve(svc, newRequest(http.MethodPut, "/api/orders/"+testOrderID+"/cash", nil, "waiter"))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = serve(svc, newRequest(http.MethodDelete, "/api/orders/"+testOrderID, nil, "admin"))
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("set status: %w", orders.ErrForbidden), http.StatusForbidden, "forbidden"},
		{orders.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
		{store.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{store.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
		{store.ErrMenuItemNotFound, http.StatusNotFound, "menu_item_not_found"},
		{orders.ErrMenuItemUnavailable, http.StatusConflict, "menu_item_unavailable"},
		{orders.ErrItemLocked, http.StatusConflict, "item_locked"},
		{orders.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{orders.ErrEmptyOrder, http.StatusBadRequest, "empty_order"},
		{orders.ErrAmountTooLarge, http.StatusUnprocessableEntity, "amount_too_large"},
		{store.ErrVersionConflict, http.StatusConflict, "version_conflict"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			svc := fakeService{
				cashFn: func(ctx context.Context, actor models.Actor, orderID string) (models.Order, error) {
					return models.Order{}, tc.err
				},
			}
			resp := serve(svc, newRequest(http.MethodPut, "/api/orders/"+testOrderID+"/cash", nil, "waiter"))
			require.Equal(t, tc.status, resp.Code)
			body := decodeError(t, resp)
			assert.Equal(t, tc.code, body.Error.Code)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Error.Message)
			}
		})
	}
}
