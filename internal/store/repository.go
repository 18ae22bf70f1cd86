/**
 * @description
 * This file implements the data access layer for the mealplan-service.
 * It contains the SQL for the profiles table, which holds one subscription
 * record per Clerk user.
 *
 * @notes
 * - Every subscription transition is a single keyed UPDATE that overwrites the
 *   columns it owns. There is no read-modify-write and no application locking.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mealplanner/mealplan-service/internal/domain"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for profiles.
type Repository struct {
	db DBTX
}

// NewRepository creates a new repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const profileColumns = `user_id, email, COALESCE(subscription_tier, ''), COALESCE(stripe_subscription_id, ''), subscription_active, created_at, updated_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		p     domain.Profile
		tier  string
		subID string
	)
	if err := row.Scan(&p.UserID, &p.Email, &tier, &subID, &p.SubscriptionActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if tier != "" {
		t := domain.Tier(tier)
		p.SubscriptionTier = &t
	}
	if subID != "" {
		p.BillingSubscriptionID = &subID
	}
	return &p, nil
}

// CreateProfile inserts an empty subscription record for userID.
// It reports false without error when the record already exists.
func (r *Repository) CreateProfile(ctx context.Context, userID, email string) (bool, error) {
	query := `
        INSERT INTO profiles (user_id, email, subscription_tier, stripe_subscription_id, subscription_active)
        VALUES ($1, $2, NULL, NULL, FALSE)
        ON CONFLICT (user_id) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query, userID, email)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetProfile retrieves the profile for a user.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	p, err := scanProfile(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return p, nil
}

// FindUserIDByBillingSubscriptionID resolves the owner of a billing subscription.
func (r *Repository) FindUserIDByBillingSubscriptionID(ctx context.Context, subscriptionID string) (string, error) {
	var userID string
	query := `SELECT user_id FROM profiles WHERE stripe_subscription_id = $1 LIMIT 1`
	if err := r.db.QueryRow(ctx, query, subscriptionID).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrProfileNotFound
		}
		return "", fmt.Errorf("select profile by subscription: %w", err)
	}
	return userID, nil
}

// ActivateSubscription records a completed checkout. A nil tier clears the column.
func (r *Repository) ActivateSubscription(ctx context.Context, userID, subscriptionID string, tier *domain.Tier) error {
	query := `
        UPDATE profiles
        SET stripe_subscription_id = $2, subscription_active = TRUE, subscription_tier = $3, updated_at = NOW()
        WHERE user_id = $1
    `
	return r.execUpdate(ctx, query, userID, subscriptionID, tierArg(tier))
}

// DeactivateSubscription marks a subscription past due. Tier and reference are kept.
// The row is only touched while it still references subscriptionID.
func (r *Repository) DeactivateSubscription(ctx context.Context, userID, subscriptionID string) error {
	query := `
        UPDATE profiles
        SET subscription_active = FALSE, updated_at = NOW()
        WHERE user_id = $1 AND stripe_subscription_id = $2
    `
	return r.execUpdate(ctx, query, userID, subscriptionID)
}

// ClearSubscription removes every subscription field from the profile while it
// still references subscriptionID.
func (r *Repository) ClearSubscription(ctx context.Context, userID, subscriptionID string) error {
	query := `
        UPDATE profiles
        SET stripe_subscription_id = NULL, subscription_tier = NULL, subscription_active = FALSE, updated_at = NOW()
        WHERE user_id = $1 AND stripe_subscription_id = $2
    `
	return r.execUpdate(ctx, query, userID, subscriptionID)
}

// UpdateSubscriptionPlan mirrors a plan change made on the billing service.
func (r *Repository) UpdateSubscriptionPlan(ctx context.Context, userID string, tier domain.Tier, subscriptionID string) (*domain.Profile, error) {
	query := `
        UPDATE profiles
        SET subscription_tier = $2, stripe_subscription_id = $3, updated_at = NOW()
        WHERE user_id = $1
        RETURNING ` + profileColumns
	p, err := scanProfile(r.db.QueryRow(ctx, query, userID, string(tier), subscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("update profile plan: %w", err)
	}
	return p, nil
}

// ListBillingSubscriptions returns up to limit profiles that still reference a
// billing subscription, ordered by user id and starting after afterUserID.
func (r *Repository) ListBillingSubscriptions(ctx context.Context, afterUserID string, limit int) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + `
        FROM profiles
        WHERE stripe_subscription_id IS NOT NULL AND user_id > $1
        ORDER BY user_id ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, afterUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list billing subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

func (r *Repository) execUpdate(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func tierArg(tier *domain.Tier) any {
	if tier == nil {
		return nil
	}
	return string(*tier)
}
