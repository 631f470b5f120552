package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

const (
	eventTypeAccountRegistered = "account.registered"

	minNameLength = 2
	maxNameLength = 50
)

// Register creates an account and emits a registration outbox event in one
// transaction, then issues the first bearer token.
func (s *Service) Register(ctx context.Context, req RegisterRequest, idempotencyKey string) (AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return AuthResponse{}, err
	}
	firstName, err := normalizeName("first name", req.FirstName)
	if err != nil {
		return AuthResponse{}, err
	}
	lastName, err := normalizeName("last name", req.LastName)
	if err != nil {
		return AuthResponse{}, err
	}

	if idempotencyKey != "" {
		if err := s.idempotency.Reserve(ctx, idempotencyKey, hashRequest(req), s.nowFn().Add(s.cfg.IdempotencyKeyTTL)); err != nil {
			return AuthResponse{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
		}
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"email":         email,
		"registered_at": now,
	})

	account, err := s.accounts.CreateWithOutboxTx(ctx, ports.CreateAccountParams{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         domain.RoleUser,
		RegisteredAt: now,
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeAccountRegistered,
		PartitionKey: email,
		Payload:      payload,
		OccurredAt:   now,
	})
	if err != nil {
		return AuthResponse{}, err
	}

	token, err := s.signToken(account, now)
	if err != nil {
		return AuthResponse{}, err
	}

	res := AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
		User:      toAccountView(account),
	}
	if idempotencyKey != "" {
		responseBody, _ := json.Marshal(res)
		_ = s.idempotency.Complete(ctx, idempotencyKey, 201, responseBody, s.nowFn())
	}
	return res, nil
}

// Login runs the account-guard state machine around the credential check.
// A locked account is rejected before the password is consulted, and every
// counter mutation is durably applied before this method returns.
func (s *Service) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		s.recordAttempt(ctx, nil, req, "FAILED", "ACCOUNT_NOT_FOUND")
		return AuthResponse{}, domain.ErrInvalidCredentials
	}
	if !account.IsActive {
		s.recordAttempt(ctx, &account.AccountID, req, "FAILED", "ACCOUNT_INACTIVE")
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	now := s.nowFn()
	if account.Guard.IsLocked(now) {
		s.recordAttempt(ctx, &account.AccountID, req, "BLOCKED", "ACCOUNT_LOCKED")
		slog.Default().WarnContext(ctx, "login rejected by active lockout",
			"module", "application",
			"operation", "login",
			"outcome", "blocked",
			"account_id", account.AccountID,
			"locked_until", account.Guard.LockedUntil(),
		)
		return AuthResponse{}, &domain.AccountLockedError{RetryAfter: account.Guard.RemainingLock(now)}
	}

	if err := s.hasher.Compare(account.PasswordHash, req.Password); err != nil {
		s.recordAttempt(ctx, &account.AccountID, req, "FAILED", "INVALID_PASSWORD")
		state, guardErr := s.accounts.RecordLoginFailure(ctx, account.AccountID, now, s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
		if guardErr != nil {
			slog.Default().ErrorContext(ctx, "failed to persist guard state",
				"module", "application",
				"operation", "login",
				"outcome", "failure",
				"account_id", account.AccountID,
				"error", guardErr,
			)
			return AuthResponse{}, guardErr
		}
		if state.IsLocked(now) {
			slog.Default().WarnContext(ctx, "account lockout triggered",
				"module", "application",
				"operation", "login",
				"outcome", "blocked",
				"account_id", account.AccountID,
				"locked_until", state.LockedUntil(),
			)
			return AuthResponse{}, &domain.AccountLockedError{RetryAfter: state.RemainingLock(now)}
		}
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	if err := s.accounts.RecordLoginSuccess(ctx, account.AccountID, now); err != nil {
		return AuthResponse{}, fmt.Errorf("record login success: %w", err)
	}
	s.recordAttempt(ctx, &account.AccountID, req, "SUCCESS", "")

	token, err := s.signToken(account, now)
	if err != nil {
		return AuthResponse{}, err
	}

	account.LastLoginAt = &now
	return AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
		User:      toAccountView(account),
	}, nil
}

// Authenticate resolves a bearer token to its account. Tokens issued before
// the account's last password change fail even when unexpired.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Account, error) {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return domain.Account{}, domain.ErrUnauthorized
	}
	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		return domain.Account{}, domain.ErrUnauthorized
	}
	if !account.IsActive {
		return domain.Account{}, domain.ErrUnauthorized
	}
	if account.TokenIssuedBeforePasswordChange(claims.IssuedAt) {
		return domain.Account{}, domain.ErrUnauthorized
	}
	return account, nil
}

// Profile returns the API view of the authenticated account.
func (s *Service) Profile(account domain.Account) AccountView {
	return toAccountView(account)
}

// ChangePassword verifies the current password and stores a new hash. The
// password-changed timestamp is backdated one second so the comparison in
// whole unix seconds never rejects a token minted in the same second as the
// change, such as the one authorizing this request.
func (s *Service) ChangePassword(ctx context.Context, account domain.Account, req ChangePasswordRequest) error {
	if err := s.hasher.Compare(account.PasswordHash, req.CurrentPassword); err != nil {
		return domain.ErrInvalidCredentials
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	changedAt := s.nowFn().Add(-time.Second)
	return s.accounts.UpdatePassword(ctx, account.AccountID, newHash, changedAt)
}

// LoginHistory lists the caller's audited login attempts, newest first.
func (s *Service) LoginHistory(ctx context.Context, accountID uuid.UUID, page, limit int) ([]LoginHistoryItem, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	attempts, err := s.loginAttempts.ListByAccount(ctx, accountID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	result := make([]LoginHistoryItem, 0, len(attempts))
	for _, attempt := range attempts {
		result = append(result, LoginHistoryItem{
			ID:            attempt.ID,
			Timestamp:     attempt.AttemptAt,
			Status:        attempt.Status,
			FailureReason: attempt.FailureReason,
			IPAddress:     attempt.IPAddress,
		})
	}
	return result, nil
}

func (s *Service) signToken(account domain.Account, now time.Time) (string, error) {
	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		AccountID: account.AccountID,
		Email:     account.Email,
		Role:      account.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func normalizeName(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < minNameLength {
		return "", fmt.Errorf("%w: %s must be at least %d characters", domain.ErrInvalidInput, field, minNameLength)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: %s must be <= %d characters", domain.ErrInvalidInput, field, maxNameLength)
	}
	return trimmed, nil
}
