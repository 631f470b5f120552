package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/application"
	"github.com/shopworks/commerce-api/internal/domain"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "place_order")
		return
	}
	var req application.PlaceOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "place_order", err)
		return
	}

	res, err := h.service.PlaceOrder(r.Context(), account.AccountID, req, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		writeMappedError(r.Context(), w, "place_order", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_orders")
		return
	}

	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	res, err := h.service.ListOrders(r.Context(), account.AccountID, page, limit)
	if err != nil {
		writeMappedError(r.Context(), w, "list_orders", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "get_order")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_order", domain.ErrNotFound)
		return
	}

	res, err := h.service.GetOrder(r.Context(), account.AccountID, orderID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_order", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	res, err := h.service.ListAllOrders(r.Context(), page, limit)
	if err != nil {
		writeMappedError(r.Context(), w, "list_all_orders", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "update_order_status", domain.ErrNotFound)
		return
	}
	var req application.UpdateOrderStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_order_status", err)
		return
	}

	res, err := h.service.UpdateOrderStatus(r.Context(), orderID, req.Status)
	if err != nil {
		writeMappedError(r.Context(), w, "update_order_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "update_payment_status", domain.ErrNotFound)
		return
	}
	var req application.UpdatePaymentStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_payment_status", err)
		return
	}

	res, err := h.service.UpdatePaymentStatus(r.Context(), orderID, req.PaymentStatus)
	if err != nil {
		writeMappedError(r.Context(), w, "update_payment_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
