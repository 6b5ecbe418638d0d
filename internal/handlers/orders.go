package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/mealbridge/api/internal/domain"
	"github.com/mealbridge/api/internal/platform/auth"
	"github.com/mealbridge/api/internal/platform/httpx"
	"github.com/mealbridge/api/internal/platform/pagination"
	"github.com/mealbridge/api/internal/services"
)

var orderListPagination = pagination.Options{
	AllowedSortFields: []string{"createdAt", "totalPrice", "status"},
	DefaultSortBy:     "createdAt",
	DefaultDesc:       true,
}

type createOrderRequest struct {
	ShopID  string `json:"shopId"`
	Address struct {
		Road   string `json:"road"`
		Detail string `json:"detail"`
		Zip    string `json:"zip"`
	} `json:"address"`
	Phone        string `json:"phone"`
	OrderNote    string `json:"orderNote"`
	DeliveryNote string `json:"deliveryNote"`
	Items        []struct {
		ItemID   string `json:"itemId"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	TotalPrice int64 `json:"totalPrice"`
}

type orderItemPayload struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type orderPayload struct {
	ID      string `json:"id"`
	ShopID  string `json:"shopId"`
	Name    string `json:"name"`
	Address struct {
		Road   string `json:"road"`
		Detail string `json:"detail,omitempty"`
		Zip    string `json:"zip"`
	} `json:"address"`
	Phone        string             `json:"phone"`
	OrderNote    string             `json:"orderNote,omitempty"`
	DeliveryNote string             `json:"deliveryNote,omitempty"`
	TotalPrice   int64              `json:"totalPrice"`
	Status       string             `json:"status"`
	Items        []orderItemPayload `json:"items"`
	CreatedAt    string             `json:"createdAt"`
	UpdatedAt    string             `json:"updatedAt"`
}

type orderSummaryPayload struct {
	ID         string `json:"id"`
	ShopID     string `json:"shopId"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	TotalPrice int64  `json:"totalPrice"`
	CreatedAt  string `json:"createdAt"`
}

type orderPagePayload struct {
	Items   []orderSummaryPayload `json:"items"`
	Page    int                   `json:"page"`
	Size    int                   `json:"size"`
	HasNext bool                  `json:"hasNext"`
}

type historyEntryPayload struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type orderHistoryPayload struct {
	OrderID       string                `json:"orderId"`
	CurrentStatus string                `json:"currentStatus"`
	Entries       []historyEntryPayload `json:"entries"`
}

type cancelReceiptPayload struct {
	OrderID      string `json:"orderId"`
	Status       string `json:"status"`
	RefundAmount int64  `json:"refundAmount"`
	CancelledAt  string `json:"cancelledAt"`
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers over the order service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints. Authentication middleware is applied
// by the caller.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/history", h.getOrderHistory)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	items := make([]services.OrderItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemRequest{ItemID: item.ItemID, Quantity: item.Quantity})
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		Principal: principal,
		ShopID:    req.ShopID,
		Items:     items,
		Address: domain.Address{
			Road:   req.Address.Road,
			Detail: req.Address.Detail,
			Zip:    req.Address.Zip,
		},
		Phone:         req.Phone,
		OrderNote:     req.OrderNote,
		DeliveryNote:  req.DeliveryNote,
		DeclaredTotal: req.TotalPrice,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, orderListPagination)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	sortOrder := domain.SortAsc
	if params.Desc {
		sortOrder = domain.SortDesc
	}
	page, err := h.orders.ListForCustomer(ctx, services.CustomerOrdersQuery{
		Principal: principal,
		Page:      params.Page,
		Size:      params.Size,
		SortBy:    params.SortBy,
		Order:     sortOrder,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderPagePayload{
		Items:   make([]orderSummaryPayload, 0, len(page.Items)),
		Page:    page.Page,
		Size:    page.Size,
		HasNext: page.HasNext,
	}
	for _, summary := range page.Items {
		payload.Items = append(payload.Items, orderSummaryPayload{
			ID:         summary.ID,
			ShopID:     summary.ShopID,
			Name:       summary.Name,
			Status:     string(summary.Status),
			TotalPrice: summary.TotalPrice,
			CreatedAt:  formatTime(summary.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, orderID, principal)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrderHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	history, err := h.orders.StatusHistory(ctx, orderID, principal)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderHistoryPayload{
		OrderID:       history.OrderID,
		CurrentStatus: string(history.CurrentStatus),
		Entries:       make([]historyEntryPayload, 0, len(history.Entries)),
	}
	for _, entry := range history.Entries {
		payload.Entries = append(payload.Entries, historyEntryPayload{
			ID:        entry.ID,
			Status:    string(entry.Status),
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	receipt, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		Principal: principal,
		OrderID:   orderID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cancelReceiptPayload{
		OrderID:      receipt.OrderID,
		Status:       string(receipt.Status),
		RefundAmount: receipt.RefundAmount,
		CancelledAt:  formatTime(receipt.CancelledAt),
	})
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           order.ID,
		ShopID:       order.ShopID,
		Name:         order.Name,
		Phone:        order.Phone,
		OrderNote:    order.OrderNote,
		DeliveryNote: order.DeliveryNote,
		TotalPrice:   order.TotalPrice,
		Status:       string(order.Status),
		Items:        make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}
	payload.Address.Road = order.Address.Road
	payload.Address.Detail = order.Address.Detail
	payload.Address.Zip = order.Address.Zip
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}
	return payload
}

func requirePrincipal(ctx context.Context, w http.ResponseWriter) (services.Principal, bool) {
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Principal{}, false
	}
	return principal, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderForbidden), errors.Is(err, services.ErrOrderOwnerMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden_access", "caller may not perform this operation", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("resource_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderTotalMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("total_price_mismatch", err.Error(), http.StatusBadRequest))
	case errors.Is(err, domain.ErrCancelNotAllowed), errors.Is(err, domain.ErrCancelWindowExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("order_cancel_rejected", err.Error(), http.StatusConflict))
	case errors.Is(err, domain.ErrUnknownOrderStatus), errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderHistoryEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("order_history_missing", "order has no status history", http.StatusInternalServerError))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order store is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
