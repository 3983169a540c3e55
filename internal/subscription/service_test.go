package subscription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/isle-dino-bot/internal/catalog"
	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/msgcat"
	"github.com/park285/isle-dino-bot/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type inbox struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (b *inbox) DirectMessage(_ context.Context, discordID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sent == nil {
		b.sent = map[string][]string{}
	}
	b.sent[discordID] = append(b.sent[discordID], text)
	return nil
}

func (b *inbox) For(discordID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent[discordID]...)
}

func newService(t *testing.T) (*Service, *store.DB, *clock, *inbox) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	dsn := filepath.Join(t.TempDir(), "bot.db") + "?_pragma=busy_timeout(5000)"
	db, err := store.Open(context.Background(), "sqlite", dsn, store.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	tiers, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	texts, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	box := &inbox{}
	return NewService(db.Subscriptions(), tiers, box, texts, 0), db, clk, box
}

func TestBuy(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Buy(ctx, "d1", "bronze"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Buy without account err = %v", err)
	}
	if _, err := db.Players().Credit(ctx, "d1", 1000); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, _, err := svc.Buy(ctx, "d1", "platinum"); !errors.Is(err, domain.ErrInvalidArgs) {
		t.Fatalf("Buy unknown tier err = %v", err)
	}

	sub, bal, err := svc.Buy(ctx, "d1", "Silver")
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if bal != 500 || sub.Tier != "silver" || sub.DinoSlots != 2 || sub.AutoRenewal {
		t.Fatalf("Buy = %+v bal=%d", sub, bal)
	}

	if _, _, err := svc.Buy(ctx, "d1", "bronze"); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Buy err = %v", err)
	}
	if p, _ := db.Players().Get(ctx, "d1"); p.Balance != 500 {
		t.Fatalf("balance after refused Buy = %d", p.Balance)
	}
}

func TestSetAutoRenewal(t *testing.T) {
	svc, db, _, _ := newService(t)
	ctx := context.Background()

	if err := svc.SetAutoRenewal(ctx, "d1", true); !errors.Is(err, domain.ErrDinoNotFound) {
		t.Fatalf("SetAutoRenewal without subscription err = %v", err)
	}
	if _, err := db.Players().Credit(ctx, "d1", 300); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, _, err := svc.Buy(ctx, "d1", "bronze"); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if err := svc.SetAutoRenewal(ctx, "d1", true); err != nil {
		t.Fatalf("SetAutoRenewal: %v", err)
	}
	cur, err := svc.Current(ctx, "d1")
	if err != nil || cur == nil || !cur.AutoRenewal {
		t.Fatalf("Current = %+v, %v", cur, err)
	}
}

func TestCheckOnceNotifiesOnce(t *testing.T) {
	svc, db, clk, box := newService(t)
	ctx := context.Background()
	if _, err := db.Players().Credit(ctx, "d1", 300); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, _, err := svc.Buy(ctx, "d1", "bronze"); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	svc.CheckOnce(ctx)
	if got := box.For("d1"); len(got) != 0 {
		t.Fatalf("early messages = %v", got)
	}

	clk.Advance(29*24*time.Hour + 2*time.Hour)
	svc.CheckOnce(ctx)
	svc.CheckOnce(ctx)
	got := box.For("d1")
	if len(got) != 1 || !strings.Contains(got[0], "bronze") {
		t.Fatalf("expiry notices = %v", got)
	}
}

func TestCheckOnceRenewsWhenFunded(t *testing.T) {
	svc, db, clk, box := newService(t)
	ctx := context.Background()
	if _, err := db.Players().Credit(ctx, "d1", 1600); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	sub, _, err := svc.Buy(ctx, "d1", "gold")
	if err != nil || !sub.AutoRenewal {
		t.Fatalf("Buy = %+v, %v", sub, err)
	}

	clk.Advance(31 * 24 * time.Hour)
	svc.CheckOnce(ctx)

	cur, err := svc.Current(ctx, "d1")
	if err != nil || cur == nil || cur.ID != sub.ID {
		t.Fatalf("Current after renew = %+v, %v", cur, err)
	}
	if want := clk.Now().Add(30 * 24 * time.Hour); !cur.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", cur.ExpiresAt, want)
	}
	if p, _ := db.Players().Get(ctx, "d1"); p.Balance != 0 {
		t.Fatalf("balance = %d, want 0", p.Balance)
	}
	if got := box.For("d1"); len(got) != 1 {
		t.Fatalf("messages = %v", got)
	}
}

func TestCheckOnceExpiresWhenUnfunded(t *testing.T) {
	svc, db, clk, box := newService(t)
	ctx := context.Background()
	if _, err := db.Players().Credit(ctx, "d1", 800); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, _, err := svc.Buy(ctx, "d1", "gold"); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	clk.Advance(31 * 24 * time.Hour)
	svc.CheckOnce(ctx)

	if cur, _ := svc.Current(ctx, "d1"); cur != nil {
		t.Fatalf("subscription still active: %+v", cur)
	}
	if left, _ := db.Subscriptions().Expired(ctx); len(left) != 0 {
		t.Fatalf("expired rows still active: %v", left)
	}
	if got := box.For("d1"); len(got) != 1 {
		t.Fatalf("messages = %v", got)
	}
}

type roleLog struct {
	mu     sync.Mutex
	events []string
}

func (r *roleLog) GrantRole(_ context.Context, discordID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "grant "+discordID+" "+roleID)
	return nil
}

func (r *roleLog) RevokeRole(_ context.Context, discordID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "revoke "+discordID+" "+roleID)
	return nil
}

func TestTierRoleFollowsSubscription(t *testing.T) {
	_, db, clk, box := newService(t)
	ctx := context.Background()

	dir := t.TempDir()
	tiersYAML := "tiers:\n  - {name: gold, price: 800, dino_slots: 4, duration_days: 30, auto_renew_default: true, discord_role_id: \"555\"}\n  - {name: bronze, price: 300, dino_slots: 1, duration_days: 30}\n"
	if err := os.WriteFile(filepath.Join(dir, "subscriptions.yaml"), []byte(tiersYAML), 0o644); err != nil {
		t.Fatalf("write tiers: %v", err)
	}
	tiers, err := catalog.Load(dir)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	texts, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	roles := &roleLog{}
	svc := NewService(db.Subscriptions(), tiers, box, texts, 0).WithRoles(roles)

	if _, err := db.Players().Credit(ctx, "d1", 1100); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, _, err := svc.Buy(ctx, "d1", "gold"); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	clk.Advance(31 * 24 * time.Hour)
	svc.CheckOnce(ctx)

	if _, _, err := svc.Buy(ctx, "d1", "bronze"); err != nil {
		t.Fatalf("Buy bronze: %v", err)
	}

	roles.mu.Lock()
	defer roles.mu.Unlock()
	if strings.Join(roles.events, "|") != "grant d1 555|revoke d1 555" {
		t.Fatalf("role events = %v", roles.events)
	}
}
