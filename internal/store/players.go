package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/isle-dino-bot/internal/domain"
)

// PlayerRepository maps chat accounts to Steam ids and keeps balances.
type PlayerRepository struct {
	d *DB
}

// Get returns nil, nil when the chat account has never registered.
func (r *PlayerRepository) Get(ctx context.Context, discordID string) (*domain.Player, error) {
	const query = `SELECT discord_id, COALESCE(steam_id, ''), balance, registered_at FROM players WHERE discord_id = $1`
	return r.scanOne(ctx, query, discordID)
}

// GetBySteam returns nil, nil when no chat account is linked to steamID.
func (r *PlayerRepository) GetBySteam(ctx context.Context, steamID string) (*domain.Player, error) {
	const query = `SELECT discord_id, COALESCE(steam_id, ''), balance, registered_at FROM players WHERE steam_id = $1`
	return r.scanOne(ctx, query, steamID)
}

func (r *PlayerRepository) scanOne(ctx context.Context, query string, arg string) (*domain.Player, error) {
	p := &domain.Player{}
	err := r.d.db.QueryRowContext(ctx, r.d.q(query), arg).Scan(&p.DiscordID, &p.SteamID, &p.Balance, &p.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player: %w", err)
	}
	p.RegisteredAt = p.RegisteredAt.UTC()
	return p, nil
}

// Link registers discordID or moves it to steamID. ErrSteamTaken is returned
// when steamID already belongs to another chat account.
func (r *PlayerRepository) Link(ctx context.Context, discordID, steamID string) (*domain.Player, error) {
	discordID = strings.TrimSpace(discordID)
	steamID = strings.TrimSpace(steamID)
	if discordID == "" || steamID == "" {
		return nil, fmt.Errorf("link player: ids required")
	}

	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, r.d.q(`SELECT discord_id FROM players WHERE steam_id = $1`), steamID).Scan(&owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("select steam owner: %w", err)
		case owner != discordID:
			return ErrSteamTaken
		}

		const query = `
INSERT INTO players (discord_id, steam_id, balance, registered_at)
VALUES ($1, $2, 0, $3)
ON CONFLICT (discord_id) DO UPDATE SET steam_id = excluded.steam_id`
		if _, err := tx.ExecContext(ctx, r.d.q(query), discordID, steamID, r.d.stamp()); err != nil {
			return fmt.Errorf("upsert player: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, discordID)
}

// Unlink clears the Steam id but keeps the balance.
func (r *PlayerRepository) Unlink(ctx context.Context, discordID string) (bool, error) {
	res, err := r.d.db.ExecContext(ctx, r.d.q(`UPDATE players SET steam_id = NULL WHERE discord_id = $1 AND steam_id IS NOT NULL`), discordID)
	if err != nil {
		return false, fmt.Errorf("unlink player: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Credit adds amount to the balance, registering the account if needed.
func (r *PlayerRepository) Credit(ctx context.Context, discordID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgs
	}
	var balance int64
	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		const query = `
INSERT INTO players (discord_id, balance, registered_at)
VALUES ($1, $2, $3)
ON CONFLICT (discord_id) DO UPDATE SET balance = players.balance + excluded.balance`
		if _, err := tx.ExecContext(ctx, r.d.q(query), discordID, amount, r.d.stamp()); err != nil {
			return fmt.Errorf("credit player: %w", err)
		}
		if err := tx.QueryRowContext(ctx, r.d.q(`SELECT balance FROM players WHERE discord_id = $1`), discordID).Scan(&balance); err != nil {
			return fmt.Errorf("select balance: %w", err)
		}
		return nil
	})
	return balance, err
}

// Debit subtracts amount. The balance never goes negative.
func (r *PlayerRepository) Debit(ctx context.Context, discordID string, amount int64) (int64, error) {
	var balance int64
	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = debitTx(ctx, r.d, tx, discordID, amount)
		return err
	})
	return balance, err
}

func debitTx(ctx context.Context, d *DB, tx *sql.Tx, discordID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrInvalidArgs
	}
	var balance int64
	query := `SELECT balance FROM players WHERE discord_id = $1` + d.dialect.forUpdate()
	err := tx.QueryRowContext(ctx, d.q(query), discordID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	if balance < amount {
		return balance, domain.ErrInsufficientFunds
	}
	if amount == 0 {
		return balance, nil
	}
	if _, err := tx.ExecContext(ctx, d.q(`UPDATE players SET balance = balance - $1 WHERE discord_id = $2`), amount, discordID); err != nil {
		return 0, fmt.Errorf("debit player: %w", err)
	}
	return balance - amount, nil
}
