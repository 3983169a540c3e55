package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/park285/isle-dino-bot/internal/domain"
)

// PendingRepository holds staged saves keyed by Steam id.
// It performs no business validation.
type PendingRepository struct {
	d *DB
}

const pendingColumns = `id, steam_id, discord_id, callback_url, dino_class, growth, hunger, thirst, health, created_at`

// Stage persists p with a fresh id and created_at. p is not modified.
func (r *PendingRepository) Stage(ctx context.Context, p *domain.PendingSave) (*domain.PendingSave, error) {
	if p == nil || strings.TrimSpace(p.SteamID) == "" {
		return nil, fmt.Errorf("stage pending: steam id required")
	}
	out := *p
	out.CreatedAt = r.d.stamp()

	const query = `
INSERT INTO pending_dino_storage (steam_id, discord_id, callback_url, dino_class, growth, hunger, thirst, health, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err := r.d.db.QueryRowContext(ctx, r.d.q(query),
		out.SteamID, out.DiscordID, out.Callback, out.Species,
		out.Growth, out.Hunger, out.Thirst, out.Health, out.CreatedAt,
	).Scan(&out.ID)
	if err != nil {
		return nil, fmt.Errorf("insert pending: %w", err)
	}
	return &out, nil
}

// PeekAll lists staged saves for steamID without removing them.
func (r *PendingRepository) PeekAll(ctx context.Context, steamID string) ([]*domain.PendingSave, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_dino_storage WHERE steam_id = $1 ORDER BY id`
	rows, err := r.d.db.QueryContext(ctx, r.d.q(query), steamID)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	defer rows.Close()
	return scanPendingRows(rows)
}

// ConflictError carries the staged saves discarded by a conflicting claim.
// It matches ErrConflict.
type ConflictError struct {
	Discarded []*domain.PendingSave
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %d rows discarded", ErrConflict, len(e.Discarded))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ClaimAndRemove atomically reads and deletes the single staged save for
// steamID. Concurrent callers for the same player get the row at most once;
// the losers see ErrNotFound. When more than one row is staged every row is
// deleted and a *ConflictError listing them is returned.
func (r *PendingRepository) ClaimAndRemove(ctx context.Context, steamID string) (*domain.PendingSave, error) {
	unlock := r.d.lockKey("pending:" + steamID)
	defer unlock()

	var claimed *domain.PendingSave
	var discarded []*domain.PendingSave
	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + pendingColumns + ` FROM pending_dino_storage WHERE steam_id = $1 ORDER BY id` + r.d.dialect.forUpdate()
		rows, err := tx.QueryContext(ctx, r.d.q(query), steamID)
		if err != nil {
			return fmt.Errorf("select pending for claim: %w", err)
		}
		list, err := scanPendingRows(rows)
		rows.Close()
		if err != nil {
			return err
		}

		switch len(list) {
		case 0:
			return ErrNotFound
		case 1:
			if _, err := tx.ExecContext(ctx, r.d.q(`DELETE FROM pending_dino_storage WHERE id = $1`), list[0].ID); err != nil {
				return fmt.Errorf("delete claimed pending: %w", err)
			}
			claimed = list[0]
			return nil
		default:
			if _, err := tx.ExecContext(ctx, r.d.q(`DELETE FROM pending_dino_storage WHERE steam_id = $1`), steamID); err != nil {
				return fmt.Errorf("delete conflicting pending: %w", err)
			}
			discarded = list
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if len(discarded) > 0 {
		return nil, &ConflictError{Discarded: discarded}
	}
	return claimed, nil
}

// DeleteByPlayer removes every staged save for steamID and returns how many
// were still there.
func (r *PendingRepository) DeleteByPlayer(ctx context.Context, steamID string) (int64, error) {
	unlock := r.d.lockKey("pending:" + steamID)
	defer unlock()

	res, err := r.d.db.ExecContext(ctx, r.d.q(`DELETE FROM pending_dino_storage WHERE steam_id = $1`), steamID)
	if err != nil {
		return 0, fmt.Errorf("delete pending by player: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SweepOlderThan deletes staged saves created more than age ago and returns
// the deleted rows.
func (r *PendingRepository) SweepOlderThan(ctx context.Context, age time.Duration) ([]*domain.PendingSave, error) {
	cutoff := r.d.stamp().Add(-age)
	query := `DELETE FROM pending_dino_storage WHERE created_at < $1 RETURNING ` + pendingColumns
	rows, err := r.d.db.QueryContext(ctx, r.d.q(query), cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweep pending: %w", err)
	}
	defer rows.Close()
	return scanPendingRows(rows)
}

func scanPendingRows(rows *sql.Rows) ([]*domain.PendingSave, error) {
	var out []*domain.PendingSave
	for rows.Next() {
		p := &domain.PendingSave{}
		if err := rows.Scan(
			&p.ID, &p.SteamID, &p.DiscordID, &p.Callback, &p.Species,
			&p.Growth, &p.Hunger, &p.Thirst, &p.Health, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return out, nil
}
