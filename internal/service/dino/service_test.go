package dino

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/park285/isle-dino-bot/internal/catalog"
	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/gamestate"
	"github.com/park285/isle-dino-bot/internal/linkcache"
	"github.com/park285/isle-dino-bot/internal/slots"
	"github.com/park285/isle-dino-bot/internal/store"
)

const (
	steamA   = "76561199671085032"
	discordA = "410000000000000001"
	steamB   = "76561199671085033"
	discordB = "410000000000000002"
)

type fakeGame struct {
	mu      sync.Mutex
	snaps   map[string]*domain.Snapshot
	pushed  map[string]domain.Stats
	pushErr error
	slain   []string
	nutr    [3]float64
}

func (g *fakeGame) QueryPlayer(_ context.Context, steamID string) (*domain.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.snaps[steamID]
	if !ok {
		return nil, gamestate.ErrPlayerNotFound
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGame) PushStats(_ context.Context, steamID string, st domain.Stats) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pushErr != nil {
		return g.pushErr
	}
	g.pushed[steamID] = st
	return nil
}

func (g *fakeGame) Slay(_ context.Context, steamID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.snaps[steamID]; !ok {
		return domain.ErrNotOnline
	}
	g.slain = append(g.slain, steamID)
	return nil
}

func (g *fakeGame) SetNutrients(_ context.Context, _ string, prot, carb, lipid float64) error {
	g.mu.Lock()
	g.nutr = [3]float64{prot, carb, lipid}
	g.mu.Unlock()
	return nil
}

type env struct {
	svc  *Service
	db   *store.DB
	game *fakeGame
}

func newEnv(t *testing.T, baseSlots int) *env {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "bot.db") + "?_pragma=busy_timeout(5000)"
	db, err := store.Open(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	shop, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	for id, steam := range map[string]string{discordA: steamA, discordB: steamB} {
		if _, err := db.Players().Link(ctx, id, steam); err != nil {
			t.Fatalf("Link: %v", err)
		}
	}

	game := &fakeGame{snaps: map[string]*domain.Snapshot{}, pushed: map[string]domain.Stats{}}
	svc := NewService(Deps{
		Links:   linkcache.New(nil, db.Players(), 0),
		Players: db.Players(),
		Dinos:   db.Dinos(),
		Slots:   slots.NewPolicy(baseSlots, db.Subscriptions(), db.Dinos()),
		Subs:    db.Subscriptions(),
		Game:    game,
		Shop:    shop,
	})
	return &env{svc: svc, db: db, game: game}
}

func (e *env) bank(t *testing.T, steamID, species string, growth int) *domain.CommittedDino {
	t.Helper()
	d, err := e.db.Dinos().Add(context.Background(), &domain.CommittedDino{
		SteamID: steamID,
		Species: species,
		Stats:   domain.Stats{Growth: growth, Hunger: 60, Thirst: 70, Health: 80},
	}, store.Unlimited)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return d
}

func (e *env) playing(steamID, species string) {
	e.game.mu.Lock()
	e.game.snaps[steamID] = &domain.Snapshot{PlayerID: steamID, Species: species}
	e.game.mu.Unlock()
}

func TestBuy(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	if _, _, err := e.svc.Buy(ctx, discordA, "Карнотавр"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Buy broke err = %v", err)
	}
	if _, err := e.svc.Give(ctx, discordA, 500); err != nil {
		t.Fatalf("Give: %v", err)
	}
	if _, _, err := e.svc.Buy(ctx, discordA, "Velociraptor"); !errors.Is(err, domain.ErrInvalidArgs) {
		t.Fatalf("Buy unknown err = %v", err)
	}

	d, bal, err := e.svc.Buy(ctx, discordA, "BP_Carnotaurus_C")
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if bal != 300 || d.Species != "BP_Carnotaurus_C" || d.Growth != domain.MaxStoredGrowth {
		t.Fatalf("Buy = %+v bal=%d", d, bal)
	}

	if _, _, err := e.svc.Buy(ctx, discordA, "Карнотавр"); !errors.Is(err, domain.ErrSlotsFull) {
		t.Fatalf("Buy over limit err = %v", err)
	}
	if b, _ := e.svc.Balance(ctx, discordA); b != 300 {
		t.Fatalf("balance after refused Buy = %d, want 300", b)
	}
}

func TestProfileAndList(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	if _, err := e.svc.Profile(ctx, "nobody"); !errors.Is(err, domain.ErrNotLinked) {
		t.Fatalf("Profile unlinked err = %v", err)
	}
	e.bank(t, steamA, "BP_Trex_C", 40)
	e.bank(t, steamA, "BP_Stegosaurus_C", 70)

	p, err := e.svc.Profile(ctx, discordA)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.SteamID != steamA || p.Used != 2 || p.Limit != 3 || p.Subscription != nil {
		t.Fatalf("Profile = %+v", p)
	}
	list, limit, err := e.svc.List(ctx, discordA)
	if err != nil || len(list) != 2 || limit != 3 {
		t.Fatalf("List = %d items limit=%d err=%v", len(list), limit, err)
	}
}

func TestRelease(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()
	d := e.bank(t, steamA, "BP_Trex_C", 40)

	if err := e.svc.Release(ctx, discordB, d.ID); !errors.Is(err, domain.ErrDinoNotFound) {
		t.Fatalf("Release by other err = %v", err)
	}
	if err := e.svc.Release(ctx, discordA, d.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := e.svc.Release(ctx, discordA, d.ID); !errors.Is(err, domain.ErrDinoNotFound) {
		t.Fatalf("second Release err = %v", err)
	}
}

func TestRestore(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()
	d := e.bank(t, steamA, "BP_Carnotaurus_C", 55)

	if _, err := e.svc.Restore(ctx, discordA, d.ID); !errors.Is(err, domain.ErrNotOnline) {
		t.Fatalf("Restore offline err = %v", err)
	}
	e.playing(steamA, "BP_Trex_C")
	if _, err := e.svc.Restore(ctx, discordA, d.ID); !errors.Is(err, domain.ErrSpeciesMismatch) {
		t.Fatalf("Restore mismatch err = %v", err)
	}
	e.playing(steamB, "BP_Carnotaurus_C")
	if _, err := e.svc.Restore(ctx, discordB, d.ID); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("Restore by other err = %v", err)
	}

	e.playing(steamA, "BP_Carnotaurus_C")
	got, err := e.svc.Restore(ctx, discordA, d.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if e.game.pushed[steamA] != got.Stats || got.Growth != 55 {
		t.Fatalf("pushed %+v, restored %+v", e.game.pushed[steamA], got.Stats)
	}
	if _, err := e.db.Dinos().Get(ctx, d.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("restored record still present: %v", err)
	}
	if _, err := e.svc.Restore(ctx, discordA, d.ID); !errors.Is(err, domain.ErrDinoNotFound) {
		t.Fatalf("second Restore err = %v", err)
	}
}

func TestRestoreKeepsRecordWhenPushFails(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()
	d := e.bank(t, steamA, "BP_Carnotaurus_C", 55)
	e.playing(steamA, "Carnotaurus")
	e.game.pushErr = domain.ErrNotOnline

	if _, err := e.svc.Restore(ctx, discordA, d.ID); !errors.Is(err, domain.ErrNotOnline) {
		t.Fatalf("Restore err = %v", err)
	}
	if _, err := e.db.Dinos().Get(ctx, d.ID); err != nil {
		t.Fatalf("record lost after failed push: %v", err)
	}
}

type failingDelete struct {
	*store.DinoRepository
}

func (failingDelete) DeleteOwned(context.Context, string, string) (bool, error) {
	return false, errors.New("database is locked")
}

func TestRestoreReportsFailedDelete(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()
	d := e.bank(t, steamA, "BP_Carnotaurus_C", 55)
	e.playing(steamA, "BP_Carnotaurus_C")
	e.svc.dinos = failingDelete{e.db.Dinos()}

	_, err := e.svc.Restore(ctx, discordA, d.ID)
	if err == nil || domain.KindOf(err) != domain.KindTechnical {
		t.Fatalf("Restore err = %v, want technical", err)
	}
	if e.game.pushed[steamA] != d.Stats {
		t.Fatalf("stats not pushed: %+v", e.game.pushed[steamA])
	}
	if _, err := e.db.Dinos().Get(ctx, d.ID); err != nil {
		t.Fatalf("record should remain for manual cleanup: %v", err)
	}
}

func TestSlayAndNutrients(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	if err := e.svc.Slay(ctx, discordA); !errors.Is(err, domain.ErrNotOnline) {
		t.Fatalf("Slay offline err = %v", err)
	}
	e.playing(steamA, "BP_Trex_C")
	if err := e.svc.Slay(ctx, discordA); err != nil {
		t.Fatalf("Slay: %v", err)
	}
	if err := e.svc.SetNutrients(ctx, discordA, 50, 101, 0); !errors.Is(err, domain.ErrInvalidArgs) {
		t.Fatalf("SetNutrients out of range err = %v", err)
	}
	if err := e.svc.SetNutrients(ctx, discordA, 50, 100, 0); err != nil {
		t.Fatalf("SetNutrients: %v", err)
	}
	if e.game.nutr != [3]float64{0.5, 1, 0} {
		t.Fatalf("nutrients = %v", e.game.nutr)
	}
}

func TestLinkAndUnlink(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	if _, err := e.svc.Link(ctx, "new", "123"); !errors.Is(err, ErrInvalidSteamID) {
		t.Fatalf("Link bad id err = %v", err)
	}
	if _, err := e.svc.Link(ctx, "new", steamA); !errors.Is(err, store.ErrSteamTaken) {
		t.Fatalf("Link taken err = %v", err)
	}
	if err := e.svc.Unlink(ctx, discordA); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := e.svc.Unlink(ctx, discordA); !errors.Is(err, domain.ErrNotLinked) {
		t.Fatalf("second Unlink err = %v", err)
	}
	p, err := e.svc.Link(ctx, "new", steamA)
	if err != nil || p.SteamID != steamA {
		t.Fatalf("Link = %+v, %v", p, err)
	}
}

func TestWhois(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	p, err := e.svc.Whois(ctx, " "+steamB+" ")
	if err != nil || p.DiscordID != discordB {
		t.Fatalf("Whois = %+v, %v", p, err)
	}
	if _, err := e.svc.Whois(ctx, "76561190000000999"); err != ErrPlayerNotFound {
		t.Fatalf("Whois unknown err = %v", err)
	}
	if _, err := e.svc.Whois(ctx, "abc"); !errors.Is(err, ErrInvalidSteamID) {
		t.Fatalf("Whois bad id err = %v", err)
	}
}

func TestGiveAndTake(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	if _, err := e.svc.Take(ctx, "ghost", 10); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("Take ghost err = %v", err)
	}
	if _, err := e.svc.Give(ctx, discordA, -5); !errors.Is(err, domain.ErrInvalidArgs) {
		t.Fatalf("Give negative err = %v", err)
	}
	if bal, err := e.svc.Give(ctx, discordA, 100); err != nil || bal != 100 {
		t.Fatalf("Give = %d, %v", bal, err)
	}
	if _, err := e.svc.Take(ctx, discordA, 150); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Take too much err = %v", err)
	}
	if bal, err := e.svc.Take(ctx, discordA, 100); err != nil || bal != 0 {
		t.Fatalf("Take = %d, %v", bal, err)
	}
}

func TestAdminRestore(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()
	st := domain.Stats{Growth: 75, Hunger: 100, Thirst: 100, Health: 100}

	if err := e.svc.AdminRestore(ctx, steamA, domain.Stats{Growth: 120}); !errors.Is(err, domain.ErrInvalidArgs) {
		t.Fatalf("AdminRestore out of range err = %v", err)
	}
	if err := e.svc.AdminRestore(ctx, steamA, st); err != nil {
		t.Fatalf("AdminRestore: %v", err)
	}
	if e.game.pushed[steamA] != st {
		t.Fatalf("pushed = %+v", e.game.pushed[steamA])
	}
}
