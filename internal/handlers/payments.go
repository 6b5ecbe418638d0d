package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mealbridge/api/internal/platform/httpx"
	"github.com/mealbridge/api/internal/services"
)

type requestPaymentRequest struct {
	OrderID string `json:"orderId"`
	Method  string `json:"method"`
}

type confirmPaymentRequest struct {
	TransactionKey string `json:"transactionKey"`
}

type cancelPaymentRequest struct {
	Amount int64 `json:"amount"`
}

type paymentPayload struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"orderId"`
	OrderName      string  `json:"orderName"`
	Method         string  `json:"method"`
	TotalAmount    int64   `json:"totalAmount"`
	BalanceAmount  int64   `json:"balanceAmount"`
	Status         string  `json:"status"`
	TransactionKey string  `json:"transactionKey,omitempty"`
	RequestedAt    string  `json:"requestedAt"`
	ApprovedAt     *string `json:"approvedAt,omitempty"`
}

// PaymentHandlers exposes the payment endpoints.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment handlers over the payment service.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers the /payments endpoints. Mutating routes are expected to be
// wrapped in idempotency middleware by the caller.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.requestPayment)
	r.Post("/{paymentID}/confirm", h.confirmPayment)
	r.Post("/{paymentID}/cancel", h.cancelPayment)
	r.Post("/{paymentID}/abort", h.abortPayment)
}

func (h *PaymentHandlers) requestPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	var req requestPaymentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.Request(ctx, services.RequestPaymentCommand{
		Principal: principal,
		OrderID:   strings.TrimSpace(req.OrderID),
		Method:    req.Method,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildPaymentPayload(payment))
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.Confirm(ctx, services.ConfirmPaymentCommand{
		Principal:      principal,
		PaymentID:      strings.TrimSpace(chi.URLParam(r, "paymentID")),
		TransactionKey: req.TransactionKey,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentPayload(payment))
}

func (h *PaymentHandlers) cancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	var req cancelPaymentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.CancelAmount(ctx, services.CancelPaymentCommand{
		Principal: principal,
		PaymentID: strings.TrimSpace(chi.URLParam(r, "paymentID")),
		Amount:    req.Amount,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentPayload(payment))
}

func (h *PaymentHandlers) abortPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return
	}

	payment, err := h.payments.Abort(ctx, strings.TrimSpace(chi.URLParam(r, "paymentID")), principal)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentPayload(payment))
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:             payment.ID,
		OrderID:        payment.OrderID,
		OrderName:      payment.OrderName,
		Method:         payment.Method,
		TotalAmount:    payment.TotalAmount,
		BalanceAmount:  payment.BalanceAmount,
		Status:         string(payment.Status),
		TransactionKey: payment.TransactionKey,
		RequestedAt:    formatTime(payment.RequestedAt),
		ApprovedAt:     formatTimePtr(payment.ApprovedAt),
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden_access", "caller may not perform this operation", http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("resource_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("payment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentAmountExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("payment_amount_exceeded", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "payment store is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
