package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization level attached to an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the two supported levels.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is the authentication identity aggregate.
// PasswordHash never leaves the service boundary; API representations are
// built from the remaining fields.
type Account struct {
	AccountID         uuid.UUID
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Role              Role
	IsActive          bool
	Guard             GuardState
	LastLoginAt       *time.Time
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TokenIssuedBeforePasswordChange reports whether a token minted at issuedAt
// predates the account's last password change. Comparison is in whole unix
// seconds because that is the resolution of the JWT iat claim.
func (a Account) TokenIssuedBeforePasswordChange(issuedAt time.Time) bool {
	if a.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Unix() < a.PasswordChangedAt.Unix()
}
