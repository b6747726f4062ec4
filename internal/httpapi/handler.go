package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"rms/order-service/internal/logging"
	"rms/order-service/internal/models"
	"rms/order-service/internal/orders"
	"rms/order-service/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// OrderService is the set of order operations exposed over HTTP.
type OrderService interface {
	CreateOrder(ctx context.Context, actor models.Actor, input orders.CreateOrderInput) (models.Order, error)
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	ListOrders(ctx context.Context, filter store.ListOrdersFilter) ([]models.Order, error)
	SetOrderStatus(ctx context.Context, actor models.Actor, orderID string, to models.OrderStatus, expectedVersion int64) (models.Order, error)
	SetItemStatus(ctx context.Context, actor models.Actor, input orders.SetItemStatusInput) (models.Order, error)
	UpdateItemQuantities(ctx context.Context, actor models.Actor, orderID string, updates []orders.QuantityUpdate, expectedVersion int64) (models.Order, error)
	AddItems(ctx context.Context, actor models.Actor, orderID string, items []orders.ItemRequest, expectedVersion int64) (models.Order, error)
	CollectCash(ctx context.Context, actor models.Actor, orderID string) (models.Order, error)
	DeleteOrder(ctx context.Context, actor models.Actor, orderID string) error
}

type Handler struct {
	service  OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

type itemRequest struct {
	MenuItemID string `json:"menuItemId" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=999"`
}

type createOrderRequest struct {
	Items       []itemRequest `json:"items" validate:"required,min=1,dive"`
	TableNumber int           `json:"tableNumber" validate:"gte=0"`
	Notes       string        `json:"notes" validate:"max=500"`
}

type createOrderResponse struct {
	OrderNumber string `json:"orderNumber"`
	OrderID     string `json:"orderId"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type itemStatusRequest struct {
	Status      string  `json:"status" validate:"required"`
	ChefRemarks *string `json:"chefRemarks" validate:"omitempty,max=500"`
}

type quantityUpdate struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"lte=999"`
}

type updateQuantitiesRequest struct {
	Updates []quantityUpdate `json:"updates" validate:"required,min=1,dive"`
}

type addItem struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"lte=999"`
}

type addItemsRequest struct {
	Items []addItem `json:"items" validate:"required,min=1,dive"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(service OrderService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, validate: validator.New(), logger: logger}
}

func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/orders").Subrouter()
	api.Use(ActorMiddleware)
	api.HandleFunc("", h.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("", h.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/{orderID}", h.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/{orderID}", h.handleDeleteOrder).Methods(http.MethodDelete)
	api.HandleFunc("/{orderID}/status", h.handleSetStatus).Methods(http.MethodPut)
	api.HandleFunc("/{orderID}/cash", h.handleCollectCash).Methods(http.MethodPut)
	api.HandleFunc("/{orderID}/items", h.handleUpdateQuantities).Methods(http.MethodPut)
	api.HandleFunc("/{orderID}/items", h.handleAddItems).Methods(http.MethodPost)
	api.HandleFunc("/{orderID}/items/{itemID}/status", h.handleSetItemStatus).Methods(http.MethodPut)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := orders.CreateOrderInput{TableNumber: req.TableNumber, Notes: strings.TrimSpace(req.Notes)}
	for _, item := range req.Items {
		input.Items = append(input.Items, orders.ItemRequest{MenuItemID: strings.TrimSpace(item.MenuItemID), Quantity: item.Quantity})
	}

	order, err := h.service.CreateOrder(r.Context(), actorFrom(r), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResponse{OrderNumber: order.OrderNumber, OrderID: order.ID})
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.ListOrdersFilter{Status: models.OrderStatus(strings.TrimSpace(query.Get("status")))}
	if raw := strings.TrimSpace(query.Get("waiterId")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "waiterId must be a non-negative integer")
			return
		}
		filter.WaiterID = &id
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		filter.Limit = limit
	}

	list, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, order)
}

func (h *Handler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteOrder(r.Context(), actorFrom(r), orderID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.SetOrderStatus(r.Context(), actorFrom(r), orderID, models.OrderStatus(strings.TrimSpace(req.Status)), version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, order)
}

func (h *Handler) handleCollectCash(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	order, err := h.service.CollectCash(r.Context(), actorFrom(r), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, order)
}

func (h *Handler) handleUpdateQuantities(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	var req updateQuantitiesRequest
	if !h.decode(w, r, &req) {
		return
	}
	updates := make([]orders.QuantityUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, orders.QuantityUpdate{ItemID: strings.TrimSpace(u.ID), Quantity: u.Quantity})
	}

	order, err := h.service.UpdateItemQuantities(r.Context(), actorFrom(r), orderID, updates, version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, order)
}

func (h *Handler) handleAddItems(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	var req addItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]orders.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orders.ItemRequest{MenuItemID: strings.TrimSpace(item.ID), Quantity: item.Quantity})
	}

	order, err := h.service.AddItems(r.Context(), actorFrom(r), orderID, items, version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, order)
}

func (h *Handler) handleSetItemStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	itemID := mux.Vars(r)["itemID"]
	if !isValidUUID(itemID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "item id must be a UUID")
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	var req itemStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.SetItemStatus(r.Context(), actorFrom(r), orders.SetItemStatusInput{
		OrderID:         orderID,
		ItemID:          itemID,
		Status:          models.ItemStatus(strings.TrimSpace(req.Status)),
		ChefRemarks:     req.ChefRemarks,
		ExpectedVersion: version,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrder(w, order)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		logging.Error(r.Context(), h.logger, "request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid request payload"
	}
	first := errs[0]
	return first.Namespace() + " failed " + first.Tag() + " validation"
}

func orderIDFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := mux.Vars(r)["orderID"]
	if !isValidUUID(orderID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "order id must be a UUID")
		return "", false
	}
	return orderID, true
}

// expectedVersion reads the optional If-Match header. A missing header
// yields 0, which disables the version check.
func expectedVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "If-Match must carry an order version")
		return 0, false
	}
	return version, true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found", "order not found"
	case errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found", "order item not found"
	case errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, orders.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status", err.Error()
	case errors.Is(err, store.ErrMenuItemNotFound):
		return http.StatusNotFound, "menu_item_not_found", err.Error()
	case errors.Is(err, orders.ErrMenuItemUnavailable):
		return http.StatusConflict, "menu_item_unavailable", err.Error()
	case errors.Is(err, orders.ErrItemLocked):
		return http.StatusConflict, "item_locked", err.Error()
	case errors.Is(err, orders.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity", err.Error()
	case errors.Is(err, orders.ErrAmountTooLarge):
		return http.StatusUnprocessableEntity, "amount_too_large", err.Error()
	case errors.Is(err, orders.ErrEmptyOrder):
		return http.StatusBadRequest, "empty_order", err.Error()
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, "version_conflict", "order has been modified, reload and retry"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeOrder(w http.ResponseWriter, order models.Order) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(order.Version, 10)+`"`)
	writeJSON(w, http.StatusOK, order)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
