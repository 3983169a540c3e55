package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/park285/isle-dino-bot/internal/domain"
)

// SubscriptionRepository stores paid tiers that grant extra dino slots.
type SubscriptionRepository struct {
	d *DB
}

const subscriptionColumns = `id, discord_id, tier, dino_slots, is_active, auto_renewal, purchased_at, expires_at`

// Active returns the newest active, unexpired subscription or nil.
func (r *SubscriptionRepository) Active(ctx context.Context, discordID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE discord_id = $1 AND is_active = TRUE AND expires_at > $2
ORDER BY purchased_at DESC, id DESC LIMIT 1`
	s, err := scanSubscription(r.d.db.QueryRowContext(ctx, r.d.q(query), discordID, r.d.stamp()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Purchase debits price and creates an active subscription in one transaction.
func (r *SubscriptionRepository) Purchase(ctx context.Context, s *domain.Subscription, price int64, period time.Duration) (*domain.Subscription, int64, error) {
	if s == nil || s.DiscordID == "" || period <= 0 {
		return nil, 0, domain.ErrInvalidArgs
	}
	out := *s
	out.Active = true
	out.PurchasedAt = r.d.stamp()
	out.ExpiresAt = out.PurchasedAt.Add(period)

	var balance int64
	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = debitTx(ctx, r.d, tx, out.DiscordID, price)
		if err != nil {
			return err
		}
		const query = `
INSERT INTO subscriptions (discord_id, tier, dino_slots, is_active, auto_renewal, expiry_notified, purchased_at, expires_at)
VALUES ($1, $2, $3, TRUE, $4, FALSE, $5, $6)
RETURNING id`
		if err := tx.QueryRowContext(ctx, r.d.q(query),
			out.DiscordID, out.Tier, out.DinoSlots, out.AutoRenewal, out.PurchasedAt, out.ExpiresAt,
		).Scan(&out.ID); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &out, balance, nil
}

// ExpiringWithin lists active subscriptions that end inside window and have
// not been announced yet.
func (r *SubscriptionRepository) ExpiringWithin(ctx context.Context, window time.Duration) ([]*domain.Subscription, error) {
	now := r.d.stamp()
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE is_active = TRUE AND expiry_notified = FALSE AND expires_at > $1 AND expires_at <= $2
ORDER BY expires_at`
	return r.list(ctx, query, now, now.Add(window))
}

// Expired lists active subscriptions whose end time has passed.
func (r *SubscriptionRepository) Expired(ctx context.Context) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE is_active = TRUE AND expires_at <= $1
ORDER BY expires_at`
	return r.list(ctx, query, r.d.stamp())
}

func (r *SubscriptionRepository) MarkNotified(ctx context.Context, id int64) error {
	if _, err := r.d.db.ExecContext(ctx, r.d.q(`UPDATE subscriptions SET expiry_notified = TRUE WHERE id = $1`), id); err != nil {
		return fmt.Errorf("mark subscription notified: %w", err)
	}
	return nil
}

// RenewPaid debits price and extends the subscription by period, counted from
// the later of now and the current end.
func (r *SubscriptionRepository) RenewPaid(ctx context.Context, s *domain.Subscription, price int64, period time.Duration) (time.Time, int64, error) {
	if s == nil || period <= 0 {
		return time.Time{}, 0, domain.ErrInvalidArgs
	}
	base := r.d.stamp()
	if s.ExpiresAt.After(base) {
		base = s.ExpiresAt.UTC()
	}
	expires := base.Add(period)

	var balance int64
	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = debitTx(ctx, r.d, tx, s.DiscordID, price)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, r.d.q(`UPDATE subscriptions SET expires_at = $1, is_active = TRUE, expiry_notified = FALSE WHERE id = $2`), expires, s.ID)
		if err != nil {
			return fmt.Errorf("renew subscription: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return time.Time{}, balance, err
	}
	return expires, balance, nil
}

func (r *SubscriptionRepository) Expire(ctx context.Context, id int64) error {
	if _, err := r.d.db.ExecContext(ctx, r.d.q(`UPDATE subscriptions SET is_active = FALSE WHERE id = $1`), id); err != nil {
		return fmt.Errorf("expire subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) SetAutoRenewal(ctx context.Context, id int64, on bool) error {
	if _, err := r.d.db.ExecContext(ctx, r.d.q(`UPDATE subscriptions SET auto_renewal = $1 WHERE id = $2`), on, id); err != nil {
		return fmt.Errorf("set auto renewal: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Subscription, error) {
	rows, err := r.d.db.QueryContext(ctx, r.d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}

func scanSubscription(s rowScanner) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	err := s.Scan(&sub.ID, &sub.DiscordID, &sub.Tier, &sub.DinoSlots, &sub.Active, &sub.AutoRenewal, &sub.PurchasedAt, &sub.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.PurchasedAt = sub.PurchasedAt.UTC()
	sub.ExpiresAt = sub.ExpiresAt.UTC()
	return sub, nil
}
