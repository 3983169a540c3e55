package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/isle-dino-bot/internal/domain"
)

func TestLinkAndLookup(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	players := db.Players()

	p, err := players.Link(ctx, "d1", "s1")
	if err != nil { t.Fatalf("Link: %v", err) }
	if !p.Linked() || p.SteamID != "s1" { t.Fatalf("Link = %+v", p) }

	if _, err := players.Link(ctx, "d2", "s1"); !errors.Is(err, ErrSteamTaken) { t.Fatalf("Link taken err = %v", err) }

	bySteam, err := players.GetBySteam(ctx, "s1")
	if err != nil || bySteam == nil || bySteam.DiscordID != "d1" { t.Fatalf("GetBySteam = %+v, %v", bySteam, err) }

	missing, err := players.Get(ctx, "nobody")
	if err != nil || missing != nil { t.Fatalf("Get missing = %+v, %v", missing, err) }

	// relinking the same pair is a no-op
	if _, err := players.Link(ctx, "d1", "s1"); err != nil { t.Fatalf("relink: %v", err) }

	ok, err := players.Unlink(ctx, "d1")
	if err != nil || !ok { t.Fatalf("Unlink = %v, %v", ok, err) }
	p, _ = players.Get(ctx, "d1")
	if p.Linked() { t.Fatalf("still linked after Unlink: %+v", p) }
}

func TestCreditAndDebit(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	players := db.Players()

	bal, err := players.Credit(ctx, "d1", 30)
	if err != nil || bal != 30 { t.Fatalf("Credit = %d, %v", bal, err) }
	bal, err = players.Credit(ctx, "d1", 20)
	if err != nil || bal != 50 { t.Fatalf("second Credit = %d, %v", bal, err) }

	if _, err := players.Debit(ctx, "d1", 80); !errors.Is(err, domain.ErrInsufficientFunds) { t.Fatalf("Debit err = %v", err) }
	bal, err = players.Debit(ctx, "d1", 50)
	if err != nil || bal != 0 { t.Fatalf("Debit = %d, %v", bal, err) }

	if _, err := players.Debit(ctx, "ghost", 1); !errors.Is(err, ErrNotFound) { t.Fatalf("Debit ghost err = %v", err) }
	if _, err := players.Credit(ctx, "d1", 0); !errors.Is(err, domain.ErrInvalidArgs) { t.Fatalf("Credit zero err = %v", err) }
}

func TestSubscriptionLifecycle(t *testing.T) {
	db, clock := newTestDB(t)
	ctx := context.Background()
	subs := db.Subscriptions()
	if _, err := db.Players().Credit(ctx, "d1", 500); err != nil { t.Fatalf("Credit: %v", err) }

	s, bal, err := subs.Purchase(ctx, &domain.Subscription{DiscordID: "d1", Tier: "gold", DinoSlots: 3}, 200, 30*24*time.Hour)
	if err != nil { t.Fatalf("Purchase: %v", err) }
	if bal != 300 || s.ID == 0 || !s.Active { t.Fatalf("Purchase = %+v bal=%d", s, bal) }

	active, err := subs.Active(ctx, "d1")
	if err != nil || active == nil || active.DinoSlots != 3 { t.Fatalf("Active = %+v, %v", active, err) }

	clock.Advance(29*24*time.Hour + time.Hour)
	expiring, err := subs.ExpiringWithin(ctx, 24*time.Hour)
	if err != nil || len(expiring) != 1 { t.Fatalf("ExpiringWithin = %v, %v", expiring, err) }
	if err := subs.MarkNotified(ctx, s.ID); err != nil { t.Fatalf("MarkNotified: %v", err) }
	if again, _ := subs.ExpiringWithin(ctx, 24*time.Hour); len(again) != 0 { t.Fatalf("notified subscription listed again") }

	clock.Advance(2 * 24 * time.Hour)
	expired, err := subs.Expired(ctx)
	if err != nil || len(expired) != 1 { t.Fatalf("Expired = %v, %v", expired, err) }
	if a, _ := subs.Active(ctx, "d1"); a != nil { t.Fatalf("expired subscription still active: %+v", a) }

	until, bal, err := subs.RenewPaid(ctx, expired[0], 200, 30*24*time.Hour)
	if err != nil { t.Fatalf("RenewPaid: %v", err) }
	if bal != 100 || !until.Equal(clock.Now().Add(30*24*time.Hour)) { t.Fatalf("RenewPaid = %v bal=%d", until, bal) }

	if _, _, err := subs.RenewPaid(ctx, expired[0], 200, 30*24*time.Hour); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("RenewPaid err = %v, want ErrInsufficientFunds", err)
	}
	if err := subs.Expire(ctx, s.ID); err != nil { t.Fatalf("Expire: %v", err) }
	if a, _ := subs.Active(ctx, "d1"); a != nil { t.Fatalf("Expire left subscription active") }
}
