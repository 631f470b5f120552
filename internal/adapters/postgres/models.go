package postgres

import (
	"time"

	"github.com/google/uuid"
)

type accountModel struct {
	AccountID         uuid.UUID  `gorm:"column:account_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email             string     `gorm:"column:email"`
	PasswordHash      string     `gorm:"column:password_hash"`
	FirstName         string     `gorm:"column:first_name"`
	LastName          string     `gorm:"column:last_name"`
	Role              string     `gorm:"column:role"`
	IsActive          bool       `gorm:"column:is_active"`
	FailedAttempts    int        `gorm:"column:failed_attempts"`
	LockedUntil       *time.Time `gorm:"column:locked_until"`
	LastLoginAt       *time.Time `gorm:"column:last_login_at"`
	PasswordChangedAt *time.Time `gorm:"column:password_changed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type productModel struct {
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Name        string    `gorm:"column:name"`
	Description string    `gorm:"column:description"`
	PriceCents  int64     `gorm:"column:price_cents"`
	Stock       int       `gorm:"column:stock"`
	Category    string    `gorm:"column:category"`
	Images      string    `gorm:"column:images;type:jsonb"`
	IsActive    bool      `gorm:"column:is_active"`
	CreatedBy   uuid.UUID `gorm:"column:created_by"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (productModel) TableName() string { return "products" }

type cartModel struct {
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID uuid.UUID `gorm:"column:account_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (cartModel) TableName() string { return "carts" }

type cartItemModel struct {
	CartID         uuid.UUID `gorm:"column:cart_id;type:uuid;primaryKey"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Quantity       int       `gorm:"column:quantity"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents"`
	AddedAt        time.Time `gorm:"column:added_at"`
}

func (cartItemModel) TableName() string { return "cart_items" }

type orderModel struct {
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	AccountID      uuid.UUID `gorm:"column:account_id"`
	Status         string    `gorm:"column:status"`
	PaymentMethod  string    `gorm:"column:payment_method"`
	PaymentStatus  string    `gorm:"column:payment_status"`
	TotalCents     int64     `gorm:"column:total_cents"`
	ShipAddress    string    `gorm:"column:ship_address"`
	ShipCity       string    `gorm:"column:ship_city"`
	ShipPostalCode string    `gorm:"column:ship_postal_code"`
	ShipCountry    string    `gorm:"column:ship_country"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	ProductName    string    `gorm:"column:product_name"`
	Quantity       int       `gorm:"column:quantity"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents"`
}

func (orderItemModel) TableName() string { return "order_items" }

type loginAttemptModel struct {
	ID            int64      `gorm:"column:id;primaryKey"`
	AccountID     *uuid.UUID `gorm:"column:account_id"`
	AttemptAt     time.Time  `gorm:"column:attempt_at"`
	IPAddress     *string    `gorm:"column:ip_address"`
	Status        string     `gorm:"column:status"`
	FailureReason string     `gorm:"column:failure_reason"`
	UserAgent     string     `gorm:"column:user_agent"`
}

func (loginAttemptModel) TableName() string { return "login_attempts" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "outbox_events" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:jsonb"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "idempotency_keys" }
