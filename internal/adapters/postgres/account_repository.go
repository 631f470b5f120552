package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopworks/commerce-api/internal/domain"
	"github.com/shopworks/commerce-api/internal/ports"
)

type accountRepository struct {
	db *gorm.DB
}

func (r *accountRepository) CreateWithOutboxTx(ctx context.Context, params ports.CreateAccountParams, outboxEvent ports.OutboxEvent) (domain.Account, error) {
	var result domain.Account
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := accountModel{
			Email:        params.Email,
			PasswordHash: params.PasswordHash,
			FirstName:    params.FirstName,
			LastName:     params.LastName,
			Role:         string(params.Role),
			IsActive:     true,
			CreatedAt:    params.RegisteredAt,
			UpdatedAt:    params.RegisteredAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["account_id"] = rec.AccountID.String()
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}

		outbox := outboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: rec.AccountID.String(),
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainAccount(rec)
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return result, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

func (r *accountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (domain.Account, error) {
	var rec accountModel
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return toDomainAccount(rec), nil
}

// RecordLoginFailure applies the guard failure transition in one UPDATE so
// concurrent failures serialize on the row lock instead of losing counts to a
// read-modify-write race. The CASE arms mirror the domain transition: an
// active lock is left untouched, an expired lock restarts the counter at 1,
// and reaching the threshold trades the counter for a lock deadline.
func (r *accountRepository) RecordLoginFailure(ctx context.Context, accountID uuid.UUID, now time.Time, threshold int, lockFor time.Duration) (domain.GuardState, error) {
	lockedUntil := now.Add(lockFor)

	var row struct {
		FailedAttempts int        `gorm:"column:failed_attempts"`
		LockedUntil    *time.Time `gorm:"column:locked_until"`
	}
	res := r.db.WithContext(ctx).Raw(`
		UPDATE accounts SET
			failed_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until > ? THEN failed_attempts
				WHEN locked_until IS NOT NULL THEN 1
				WHEN failed_attempts + 1 >= ? THEN 0
				ELSE failed_attempts + 1
			END,
			locked_until = CASE
				WHEN locked_until IS NOT NULL AND locked_until > ? THEN locked_until
				WHEN locked_until IS NOT NULL THEN NULL
				WHEN failed_attempts + 1 >= ? THEN ?::timestamptz
				ELSE NULL
			END,
			updated_at = ?
		WHERE account_id = ?
		RETURNING failed_attempts, locked_until`,
		now, threshold, now, threshold, lockedUntil, now, accountID,
	).Scan(&row)
	if res.Error != nil {
		return domain.GuardState{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.GuardState{}, domain.ErrNotFound
	}
	return toGuardState(row.FailedAttempts, row.LockedUntil), nil
}

func (r *accountRepository) RecordLoginSuccess(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
			"last_login_at":   now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdatePassword(ctx context.Context, accountID uuid.UUID, passwordHash string, changedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"password_hash":       passwordHash,
			"password_changed_at": changedAt,
			"updated_at":          changedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
