package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/application"
	"github.com/shopworks/commerce-api/internal/domain"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "get_cart")
		return
	}
	res, err := h.service.GetCart(r.Context(), account.AccountID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_cart", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "add_cart_item")
		return
	}
	var req application.AddCartLineRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "add_cart_item", err)
		return
	}

	res, err := h.service.AddCartLine(r.Context(), account.AccountID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "add_cart_item", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) setCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "set_cart_item_quantity")
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "product_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "set_cart_item_quantity", domain.ErrLineNotFound)
		return
	}
	var req application.SetCartLineQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "set_cart_item_quantity", err)
		return
	}

	res, err := h.service.SetCartLineQuantity(r.Context(), account.AccountID, productID, req.Quantity)
	if err != nil {
		writeMappedError(r.Context(), w, "set_cart_item_quantity", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "remove_cart_item")
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "product_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "remove_cart_item", domain.ErrLineNotFound)
		return
	}

	res, err := h.service.RemoveCartLine(r.Context(), account.AccountID, productID)
	if err != nil {
		writeMappedError(r.Context(), w, "remove_cart_item", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
