package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestPostgresClaimQuery(t *testing.T) {
	d, err := dialectFor("postgresql")
	if err != nil { t.Fatalf("dialectFor: %v", err) }
	if !d.rowLocks { t.Fatalf("postgres must use row locks") }

	query := `SELECT ` + pendingColumns + ` FROM pending_dino_storage WHERE steam_id = $1 ORDER BY id` + d.forUpdate()
	got := d.rebind(query)
	if !strings.HasSuffix(got, "WHERE steam_id = $1 ORDER BY id FOR UPDATE") { t.Fatalf("claim query = %q", got) }
	if strings.Contains(got, "?") { t.Fatalf("postgres query rebound: %q", got) }

	db := &DB{dialect: d, locks: newKeyLock()}
	// postgres relies on row locks, so the keyed lock is a no-op
	unlock := db.lockKey("pending:x")
	unlock2 := db.lockKey("pending:x")
	unlock()
	unlock2()
}

func TestSQLiteClaimQuery(t *testing.T) {
	d, err := dialectFor("sqlite3")
	if err != nil { t.Fatalf("dialectFor: %v", err) }
	if d.rowLocks || d.forUpdate() != "" { t.Fatalf("sqlite has no FOR UPDATE") }
	if got := d.rebind(`DELETE FROM pending_dino_storage WHERE steam_id = $1 AND id = $2`); got != `DELETE FROM pending_dino_storage WHERE steam_id = ?1 AND id = ?2` {
		t.Fatalf("rebind = %q", got)
	}
}

// TEST_DATABASE_URL points at a scratch postgres database.
func newPostgresDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" { t.Skip("TEST_DATABASE_URL not set") }
	db, err := Open(context.Background(), "postgres", dsn)
	if err != nil { t.Fatalf("Open: %v", err) }
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil { t.Fatalf("Migrate: %v", err) }
	return db
}

func TestPostgresConcurrentClaimsYieldOneWinner(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	pending := db.Pending()
	steamID := "pg-" + uuid.NewString()
	t.Cleanup(func() { _, _ = pending.DeleteByPlayer(context.Background(), steamID) })

	if _, err := pending.Stage(ctx, stagedSave(steamID)); err != nil { t.Fatalf("Stage: %v", err) }

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pending.ClaimAndRemove(ctx, steamID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotFound):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 { t.Fatalf("wins = %d, want 1", wins) }
}

func TestPostgresConflictDiscardsAll(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	pending := db.Pending()
	steamID := "pg-" + uuid.NewString()
	t.Cleanup(func() { _, _ = pending.DeleteByPlayer(context.Background(), steamID) })

	for i := 0; i < 2; i++ {
		if _, err := pending.Stage(ctx, stagedSave(steamID)); err != nil { t.Fatalf("Stage#%d: %v", i, err) }
	}
	_, err := pending.ClaimAndRemove(ctx, steamID)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || len(conflict.Discarded) != 2 { t.Fatalf("claim err = %v", err) }
	left, err := pending.PeekAll(ctx, steamID)
	if err != nil || len(left) != 0 { t.Fatalf("left = %d, %v", len(left), err) }
}
