package http

import (
	"context"
	"net/http"

	"github.com/shopworks/commerce-api/internal/application"
	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

// Handler is the HTTP adapter entrypoint for the commerce use-cases.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
	limiter ports.RateLimitStore
	limits  RateLimits
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, limiter ports.RateLimitStore, limits RateLimits) *Handler {
	return &Handler{service: service, limiter: limiter, limits: limits}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

// authMiddleware resolves the bearer token to an account and stores it in the
// request context. Tokens minted before the account's last password change are
// rejected here, before any handler runs.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		account, err := h.service.Authenticate(r.Context(), raw)
		if err != nil {
			status, code, msg := mapDomainError(err)
			writeError(w, status, code, msg)
			return
		}

		ctx := contextWithAccount(r.Context(), account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates admin-only routes. It runs after authMiddleware.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		if account.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func contextWithAccount(ctx context.Context, account domain.Account) context.Context {
	return context.WithValue(ctx, ctxKeyAccount, account)
}
