package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mealbridge/api/internal/platform/httpx"
	"github.com/mealbridge/api/internal/services"
)

type transitionOrderRequest struct {
	Status string `json:"status"`
}

// ShopOrderHandlers exposes the shop owner order endpoints.
type ShopOrderHandlers struct {
	orders services.OrderService
}

// NewShopOrderHandlers constructs shop order handlers over the order service.
func NewShopOrderHandlers(orders services.OrderService) *ShopOrderHandlers {
	return &ShopOrderHandlers{orders: orders}
}

// Routes registers the /shop/orders endpoints.
func (h *ShopOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Patch("/{orderID}/status", h.transitionStatus)
}

func (h *ShopOrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	var req transitionOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderCommand{
		Principal: principal,
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderID")),
		Target:    strings.TrimSpace(req.Status),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
