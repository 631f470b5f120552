package postgres

import (
	"gorm.io/gorm"

	"github.com/shopworks/commerce-api/internal/ports"
)

type Repositories struct {
	Accounts      ports.AccountRepository
	LoginAttempts ports.LoginAttemptRepository
	Products      ports.ProductRepository
	Carts         ports.CartRepository
	Orders        ports.OrderRepository
	Outbox        ports.OutboxRepository
	Idempotency   ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Accounts:      &accountRepository{db: db},
		LoginAttempts: &loginAttemptRepository{db: db},
		Products:      &productRepository{db: db},
		Carts:         &cartRepository{db: db},
		Orders:        &orderRepository{db: db},
		Outbox:        &outboxRepository{db: db},
		Idempotency:   &idempotencyRepository{db: db},
	}
}
