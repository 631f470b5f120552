package application

import (
	"time"

	"github.com/shopworks/commerce-api/internal/ports"
)

// Config is the policy slice of configuration the use-case layer needs.
type Config struct {
	TokenTTL             time.Duration
	FailedLoginThreshold int
	LockoutDuration      time.Duration
	IdempotencyKeyTTL    time.Duration
}

// Service implements the account, catalog, cart and order use-cases over
// injected ports. nowFn is injected so tests can drive the clock.
type Service struct {
	cfg           Config
	accounts      ports.AccountRepository
	loginAttempts ports.LoginAttemptRepository
	products      ports.ProductRepository
	carts         ports.CartRepository
	orders        ports.OrderRepository
	idempotency   ports.IdempotencyRepository
	hasher        ports.PasswordHasher
	tokenSigner   ports.TokenSigner
	nowFn         func() time.Time
}

type Dependencies struct {
	Config        Config
	Accounts      ports.AccountRepository
	LoginAttempts ports.LoginAttemptRepository
	Products      ports.ProductRepository
	Carts         ports.CartRepository
	Orders        ports.OrderRepository
	Idempotency   ports.IdempotencyRepository
	Hasher        ports.PasswordHasher
	TokenSigner   ports.TokenSigner
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.IdempotencyKeyTTL <= 0 {
		cfg.IdempotencyKeyTTL = 24 * time.Hour
	}
	return &Service{
		cfg:           cfg,
		accounts:      deps.Accounts,
		loginAttempts: deps.LoginAttempts,
		products:      deps.Products,
		carts:         deps.Carts,
		orders:        deps.Orders,
		idempotency:   deps.Idempotency,
		hasher:        deps.Hasher,
		tokenSigner:   deps.TokenSigner,
		nowFn:         func() time.Time { return time.Now().UTC() },
	}
}
