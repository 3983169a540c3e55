package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no row matched.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned by ClaimAndRemove when more than one staged save
	// existed for a player. All of them have been deleted.
	ErrConflict = errors.New("store: multiple staged rows")
	// ErrSteamTaken is returned when a Steam id is linked to another chat account.
	ErrSteamTaken = errors.New("store: steam id linked to another account")
)

// Unlimited disables the slot check in DinoRepository.Add.
const Unlimited = -1

type Option func(*DB)

// WithClock overrides the clock used for created_at stamps and sweep cutoffs.
func WithClock(now func() time.Time) Option {
	return func(d *DB) {
		if now != nil {
			d.now = now
		}
	}
}

// DB owns the connection pool and hands out repositories.
type DB struct {
	db      *sql.DB
	dialect dialect
	locks   *keyLock
	now     func() time.Time
}

// Open connects to postgres or sqlite and pings the server.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	dl, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dl.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dl.driverName, err)
	}
	if dl.rowLocks {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		// sqlite has a single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dl.driverName, err)
	}

	d := &DB{db: db, dialect: dl, locks: newKeyLock(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// RowLocks reports whether the backend serializes claims with row locks, which
// is what makes running more than one bot instance safe.
func (d *DB) RowLocks() bool { return d.dialect.rowLocks }

func (d *DB) Pending() *PendingRepository { return &PendingRepository{d: d} }

func (d *DB) Dinos() *DinoRepository { return &DinoRepository{d: d} }

func (d *DB) Players() *PlayerRepository { return &PlayerRepository{d: d} }

func (d *DB) Subscriptions() *SubscriptionRepository { return &SubscriptionRepository{d: d} }

func (d *DB) stamp() time.Time { return d.now().UTC() }

func (d *DB) q(query string) string { return d.dialect.rebind(query) }

// lockKey takes the in-process lock for key when the backend has no row locks.
func (d *DB) lockKey(key string) func() {
	if d.dialect.rowLocks {
		return func() {}
	}
	return d.locks.Lock(key)
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
