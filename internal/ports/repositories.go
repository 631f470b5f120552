package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/domain"
)

// CreateAccountParams captures atomic account-creation inputs.
type CreateAccountParams struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         domain.Role
	RegisteredAt time.Time
}

// AccountRepository defines persistence for accounts and their guard state.
// The guard mutations are single atomic store-level updates, never a
// read-modify-write pair, so concurrent login attempts cannot lose counts
// beyond the tolerated same-instant race.
type AccountRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateAccountParams, event OutboxEvent) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error)
	// RecordLoginFailure applies the guard's failure transition atomically and
	// returns the resulting state.
	RecordLoginFailure(ctx context.Context, accountID uuid.UUID, now time.Time, threshold int, lockFor time.Duration) (domain.GuardState, error)
	// RecordLoginSuccess resets the guard and stamps the last-login time.
	RecordLoginSuccess(ctx context.Context, accountID uuid.UUID, now time.Time) error
	// UpdatePassword stores a new hash and the password-changed timestamp that
	// invalidates earlier tokens.
	UpdatePassword(ctx context.Context, accountID uuid.UUID, passwordHash string, changedAt time.Time) error
}

// LoginAttemptRecord is one audited login outcome.
type LoginAttemptRecord struct {
	ID            int64
	AccountID     *uuid.UUID
	AttemptAt     time.Time
	IPAddress     string
	Status        string
	FailureReason string
	UserAgent     string
}

// LoginAttemptRepository stores login outcomes for the history endpoint.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt LoginAttemptRecord) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]LoginAttemptRecord, error)
}

// ProductFilter narrows and pages the catalog listing.
type ProductFilter struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ProductRepository defines catalog persistence.
type ProductRepository interface {
	Create(ctx context.Context, product domain.Product) (domain.Product, error)
	Update(ctx context.Context, product domain.Product) (domain.Product, error)
	Deactivate(ctx context.Context, productID uuid.UUID, at time.Time) error
	GetByID(ctx context.Context, productID uuid.UUID) (domain.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
}

// CartRepository defines persistence for the per-account cart. GetOrCreate is
// idempotent under concurrent first access; UpsertLine merges quantities at
// the store so two concurrent adds of the same product cannot produce two
// lines.
type CartRepository interface {
	GetOrCreate(ctx context.Context, accountID uuid.UUID, at time.Time) (domain.Cart, error)
	// UpsertLine adds quantityDelta to an existing line or inserts a new line
	// with the given price snapshot. The snapshot of an existing line is kept.
	UpsertLine(ctx context.Context, accountID, productID uuid.UUID, quantityDelta int, unitPriceCents int64, at time.Time) (domain.Cart, error)
	// SetLineQuantity replaces a line's quantity; ErrLineNotFound when absent.
	SetLineQuantity(ctx context.Context, accountID, productID uuid.UUID, quantity int, at time.Time) (domain.Cart, error)
	// RemoveLine deletes a line, a no-op when absent.
	RemoveLine(ctx context.Context, accountID, productID uuid.UUID, at time.Time) (domain.Cart, error)
}

// PlaceOrderParams are the checkout inputs for the order placement
// transaction.
type PlaceOrderParams struct {
	AccountID       uuid.UUID
	ShippingAddress domain.ShippingAddress
	PaymentMethod   domain.PaymentMethod
	PlacedAt        time.Time
}

// OrderRepository owns the all-or-nothing checkout transaction and order
// reads/updates. PlaceFromCartTx reserves stock line by line in ascending
// product-id order, snapshots the order, clears the cart, and enqueues the
// outbox event — committing all of it or none of it.
type OrderRepository interface {
	PlaceFromCartTx(ctx context.Context, params PlaceOrderParams, event OutboxEvent) (domain.Order, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (domain.Order, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Order, error)
	ListAll(ctx context.Context, limit, offset int) ([]domain.Order, error)
	// UpdateStatusTx validates the forward-only transition inside the
	// transaction and restocks items when cancelling.
	UpdateStatusTx(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus, at time.Time) (domain.Order, error)
	UpdatePaymentStatusTx(ctx context.Context, orderID uuid.UUID, next domain.PaymentStatus, at time.Time) (domain.Order, error)
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for domain events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// IdempotencyRecord tracks a previously accepted mutating request.
// Storing response metadata lets handlers return stable replay responses.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdempotencyRepository enforces idempotent mutation semantics for
// registration and order placement.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}
