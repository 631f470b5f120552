package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/application"
	"github.com/shopworks/commerce-api/internal/domain"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := application.ProductListQuery{
		Category: r.URL.Query().Get("category"),
		Page:     parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit:    parseIntDefault(r.URL.Query().Get("limit"), 20),
	}
	res, err := h.service.ListProducts(r.Context(), q)
	if err != nil {
		writeMappedError(r.Context(), w, "list_products", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "product_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_product", domain.ErrNotFound)
		return
	}
	res, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_product", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "create_product")
		return
	}
	var input application.ProductInput
	if err := decodeBody(r, &input); err != nil {
		writeValidationError(r.Context(), w, "create_product", err)
		return
	}

	res, err := h.service.CreateProduct(r.Context(), account.AccountID, input)
	if err != nil {
		writeMappedError(r.Context(), w, "create_product", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "product_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "update_product", domain.ErrNotFound)
		return
	}
	var input application.ProductInput
	if err := decodeBody(r, &input); err != nil {
		writeValidationError(r.Context(), w, "update_product", err)
		return
	}

	res, err := h.service.UpdateProduct(r.Context(), productID, input)
	if err != nil {
		writeMappedError(r.Context(), w, "update_product", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "product_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "deactivate_product", domain.ErrNotFound)
		return
	}
	if err := h.service.DeactivateProduct(r.Context(), productID); err != nil {
		writeMappedError(r.Context(), w, "deactivate_product", err)
		return
	}
	writeMessage(w, http.StatusOK, "Product deactivated successfully")
}
