package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akshitverma317/diagnoai/internal/models"
)

var ErrAccountNotFound = errors.New("account not found")

type rowScanner interface {
	Scan(dest ...any) error
}

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `
	email, display_name, free_usage_count, premium_usage_count, premium,
	subscription_expires_at, created_at, updated_at
`

func scanAccount(row rowScanner) (models.UsageRecord, error) {
	var record models.UsageRecord
	if err := row.Scan(
		&record.Email,
		&record.DisplayName,
		&record.FreeUsageCount,
		&record.PremiumUsageCount,
		&record.Premium,
		&record.SubscriptionExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UsageRecord{}, ErrAccountNotFound
		}
		return models.UsageRecord{}, err
	}
	return record, nil
}

func (r *AccountRepository) Get(ctx context.Context, email string) (models.UsageRecord, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

// EnsureExists inserts record with zero counters unless the email is already known,
// and returns the stored row.
func (r *AccountRepository) EnsureExists(ctx context.Context, record models.UsageRecord) (models.UsageRecord, error) {
	const query = `
		INSERT INTO accounts (email, display_name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (email) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, record.Email, record.DisplayName); err != nil {
		return models.UsageRecord{}, err
	}
	return r.Get(ctx, record.Email)
}

// Update locks the row for email, applies fn and writes the result in one transaction.
func (r *AccountRepository) Update(ctx context.Context, email string, fn func(*models.UsageRecord) error) (models.UsageRecord, error) {
	const selectQuery = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 FOR UPDATE`
	const updateQuery = `
		UPDATE accounts
		SET free_usage_count = $2,
		    premium_usage_count = $3,
		    premium = $4,
		    subscription_expires_at = $5,
		    updated_at = NOW()
		WHERE email = $1
		RETURNING updated_at
	`

	var out models.UsageRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		record, err := scanAccount(tx.QueryRow(ctx, selectQuery, email))
		if err != nil {
			return err
		}
		if err := fn(&record); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, updateQuery,
			record.Email,
			record.FreeUsageCount,
			record.PremiumUsageCount,
			record.Premium,
			record.SubscriptionExpiresAt,
		).Scan(&record.UpdatedAt); err != nil {
			return err
		}
		out = record
		return nil
	})
	if err != nil {
		return models.UsageRecord{}, err
	}
	return out, nil
}

// DemoteLapsed clears premium on every account whose subscription ended before now
// or whose premium allowance is used up. It returns the number of demoted accounts.
func (r *AccountRepository) DemoteLapsed(ctx context.Context, now time.Time, premiumLimit int) (int64, error) {
	const query = `
		UPDATE accounts
		SET premium = FALSE,
		    subscription_expires_at = NULL,
		    updated_at = NOW()
		WHERE premium
		  AND (subscription_expires_at < $1 OR premium_usage_count >= $2)
	`

	cmd, err := r.pool.Exec(ctx, query, now, premiumLimit)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
