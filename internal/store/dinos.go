package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/park285/isle-dino-bot/internal/domain"
)

// DinoRepository holds committed dinosaurs keyed by owner Steam id.
type DinoRepository struct {
	d *DB
}

const dinoColumns = `id, steam_id, dino_class, growth, hunger, thirst, health, created_at`

// Add stores dino for its owner unless the owner already holds limit or more
// dinosaurs. The count and insert run in one transaction. The owner must be a
// linked player.
func (r *DinoRepository) Add(ctx context.Context, dino *domain.CommittedDino, limit int) (*domain.CommittedDino, error) {
	if dino == nil || dino.SteamID == "" {
		return nil, fmt.Errorf("add dino: owner required")
	}
	unlock := r.d.lockKey("owner:" + dino.SteamID)
	defer unlock()

	var out *domain.CommittedDino
	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.lockOwner(ctx, tx, dino.SteamID); err != nil {
			return err
		}
		var err error
		out, err = r.insertWithLimit(ctx, tx, dino, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Purchase debits price from the buyer and stores dino in one transaction.
// It returns the stored dino and the new balance.
func (r *DinoRepository) Purchase(ctx context.Context, discordID string, dino *domain.CommittedDino, limit int, price int64) (*domain.CommittedDino, int64, error) {
	if dino == nil || dino.SteamID == "" {
		return nil, 0, fmt.Errorf("purchase dino: owner required")
	}
	unlock := r.d.lockKey("owner:" + dino.SteamID)
	defer unlock()

	var out *domain.CommittedDino
	var balance int64
	err := r.d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = debitTx(ctx, r.d, tx, discordID, price)
		if err != nil {
			return err
		}
		out, err = r.insertWithLimit(ctx, tx, dino, limit)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, balance, nil
}

func (r *DinoRepository) lockOwner(ctx context.Context, tx *sql.Tx, steamID string) error {
	query := `SELECT discord_id FROM players WHERE steam_id = $1` + r.d.dialect.forUpdate()
	var discordID string
	err := tx.QueryRowContext(ctx, r.d.q(query), steamID).Scan(&discordID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

func (r *DinoRepository) insertWithLimit(ctx context.Context, tx *sql.Tx, dino *domain.CommittedDino, limit int) (*domain.CommittedDino, error) {
	if limit != Unlimited {
		var count int
		if err := tx.QueryRowContext(ctx, r.d.q(`SELECT COUNT(*) FROM dino_storage WHERE steam_id = $1`), dino.SteamID).Scan(&count); err != nil {
			return nil, fmt.Errorf("count dinos: %w", err)
		}
		if count >= limit {
			return nil, domain.ErrSlotsFull
		}
	}

	out := *dino
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.CreatedAt = r.d.stamp()

	const query = `
INSERT INTO dino_storage (id, steam_id, dino_class, growth, hunger, thirst, health, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, r.d.q(query),
		out.ID, out.SteamID, out.Species, out.Growth, out.Hunger, out.Thirst, out.Health, out.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert dino: %w", err)
	}
	return &out, nil
}

func (r *DinoRepository) CountByOwner(ctx context.Context, steamID string) (int, error) {
	var n int
	if err := r.d.db.QueryRowContext(ctx, r.d.q(`SELECT COUNT(*) FROM dino_storage WHERE steam_id = $1`), steamID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dinos: %w", err)
	}
	return n, nil
}

// ListByOwner returns the owner's dinosaurs, oldest first.
func (r *DinoRepository) ListByOwner(ctx context.Context, steamID string) ([]*domain.CommittedDino, error) {
	query := `SELECT ` + dinoColumns + ` FROM dino_storage WHERE steam_id = $1 ORDER BY created_at, id`
	rows, err := r.d.db.QueryContext(ctx, r.d.q(query), steamID)
	if err != nil {
		return nil, fmt.Errorf("select dinos: %w", err)
	}
	defer rows.Close()

	var out []*domain.CommittedDino
	for rows.Next() {
		d, err := scanDino(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dinos: %w", err)
	}
	return out, nil
}

// Get returns ErrNotFound for an unknown id.
func (r *DinoRepository) Get(ctx context.Context, id string) (*domain.CommittedDino, error) {
	query := `SELECT ` + dinoColumns + ` FROM dino_storage WHERE id = $1`
	d, err := scanDino(r.d.db.QueryRowContext(ctx, r.d.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// DeleteOwned removes the dino only if steamID owns it.
func (r *DinoRepository) DeleteOwned(ctx context.Context, id, steamID string) (bool, error) {
	res, err := r.d.db.ExecContext(ctx, r.d.q(`DELETE FROM dino_storage WHERE id = $1 AND steam_id = $2`), id, steamID)
	if err != nil {
		return false, fmt.Errorf("delete dino: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDino(s rowScanner) (*domain.CommittedDino, error) {
	d := &domain.CommittedDino{}
	err := s.Scan(&d.ID, &d.SteamID, &d.Species, &d.Growth, &d.Hunger, &d.Thirst, &d.Health, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan dino: %w", err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}
