package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers the API routes and middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handler.rateLimitMiddleware("api", handler.limits.API))

		r.With(handler.rateLimitMiddleware("register", handler.limits.Register)).
			Post("/auth/register", handler.register)
		r.With(handler.rateLimitMiddleware("login", handler.limits.Login)).
			Post("/auth/login", handler.login)

		r.Get("/products", handler.listProducts)
		r.Get("/products/{product_id}", handler.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)

			r.Get("/auth/me", handler.me)
			r.Put("/auth/password", handler.changePassword)
			r.Get("/auth/login-history", handler.loginHistory)

			r.Get("/cart", handler.getCart)
			r.Post("/cart/items", handler.addCartItem)
			r.Put("/cart/items/{product_id}", handler.setCartItemQuantity)
			r.Delete("/cart/items/{product_id}", handler.removeCartItem)

			r.Post("/orders", handler.placeOrder)
			r.Get("/orders", handler.listOrders)
			r.Get("/orders/{order_id}", handler.getOrder)

			r.Group(func(r chi.Router) {
				r.Use(handler.requireAdmin)

				r.Post("/products", handler.createProduct)
				r.Put("/products/{product_id}", handler.updateProduct)
				r.Delete("/products/{product_id}", handler.deactivateProduct)

				r.Get("/admin/orders", handler.listAllOrders)
				r.Put("/orders/{order_id}/status", handler.updateOrderStatus)
				r.Put("/orders/{order_id}/payment", handler.updatePaymentStatus)
			})
		})
	})

	return r
}
