// Package dino implements the player-facing dinosaur and currency operations
// that sit next to the save protocol: profile, shop, release, restore, slay,
// nutrients, linking and the admin currency and recovery commands.
package dino

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/catalog"
	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/gamestate"
	"github.com/park285/isle-dino-bot/internal/obslog"
	"github.com/park285/isle-dino-bot/internal/store"
)

var (
	ErrSteamTaken      = &domain.Error{Kind: domain.KindInvalidArgs, Msg: "steam id linked to another account", Err: store.ErrSteamTaken}
	ErrInvalidSteamID  = &domain.Error{Kind: domain.KindInvalidArgs, Msg: "steam id must be 17 digits"}
	ErrRestoreInFlight = &domain.Error{Kind: domain.KindInvalidArgs, Msg: "restore already in progress"}
	ErrPlayerNotFound  = &domain.Error{Kind: domain.KindNotFound, Msg: "player not found"}
)

var steamIDPattern = regexp.MustCompile(`^\d{17}$`)

// Shop stock is stored fully grown.
var boughtStats = domain.Stats{Growth: domain.MaxStoredGrowth, Hunger: 100, Thirst: 100, Health: 100}

type Links interface {
	SteamID(ctx context.Context, discordID string) (string, error)
	Link(ctx context.Context, discordID, steamID string) (*domain.Player, error)
	Unlink(ctx context.Context, discordID string) (bool, error)
}

type Players interface {
	Get(ctx context.Context, discordID string) (*domain.Player, error)
	GetBySteam(ctx context.Context, steamID string) (*domain.Player, error)
	Credit(ctx context.Context, discordID string, amount int64) (int64, error)
	Debit(ctx context.Context, discordID string, amount int64) (int64, error)
}

type Dinos interface {
	Purchase(ctx context.Context, discordID string, dino *domain.CommittedDino, limit int, price int64) (*domain.CommittedDino, int64, error)
	CountByOwner(ctx context.Context, steamID string) (int, error)
	ListByOwner(ctx context.Context, steamID string) ([]*domain.CommittedDino, error)
	Get(ctx context.Context, id string) (*domain.CommittedDino, error)
	DeleteOwned(ctx context.Context, id, steamID string) (bool, error)
}

type Slots interface {
	Limit(ctx context.Context, discordID string) (int, error)
	Check(ctx context.Context, discordID, steamID string) (int, error)
}

type Subscriptions interface {
	Active(ctx context.Context, discordID string) (*domain.Subscription, error)
}

type Game interface {
	QueryPlayer(ctx context.Context, steamID string) (*domain.Snapshot, error)
	PushStats(ctx context.Context, steamID string, st domain.Stats) error
	Slay(ctx context.Context, steamID string) error
	SetNutrients(ctx context.Context, steamID string, prot, carb, lipid float64) error
}

type Shop interface {
	Dino(key string) (catalog.Dino, bool)
}

type Deps struct {
	Links   Links
	Players Players
	Dinos   Dinos
	Slots   Slots
	Subs    Subscriptions
	Game    Game
	Shop    Shop
}

type Service struct {
	links   Links
	players Players
	dinos   Dinos
	slots   Slots
	subs    Subscriptions
	game    Game
	shop    Shop

	mu        sync.Mutex
	restoring map[string]struct{}
}

func NewService(d Deps) *Service {
	return &Service{
		links:     d.Links,
		players:   d.Players,
		dinos:     d.Dinos,
		slots:     d.Slots,
		subs:      d.Subs,
		game:      d.Game,
		shop:      d.Shop,
		restoring: make(map[string]struct{}),
	}
}

// Profile is what a player sees about their own account.
type Profile struct {
	DiscordID    string
	SteamID      string
	Balance      int64
	Used         int
	Limit        int
	Subscription *domain.Subscription
}

func (s *Service) Profile(ctx context.Context, discordID string) (*Profile, error) {
	p, err := s.players.Get(ctx, discordID)
	if err != nil {
		return nil, domain.Technical("load player", err)
	}
	if !p.Linked() {
		return nil, domain.ErrNotLinked
	}
	out := &Profile{DiscordID: discordID, SteamID: p.SteamID, Balance: p.Balance}
	if out.Used, err = s.dinos.CountByOwner(ctx, p.SteamID); err != nil {
		return nil, domain.Technical("count dinos", err)
	}
	if out.Limit, err = s.slots.Limit(ctx, discordID); err != nil {
		return nil, err
	}
	if out.Subscription, err = s.subs.Active(ctx, discordID); err != nil {
		return nil, domain.Technical("load subscription", err)
	}
	return out, nil
}

// Balance returns zero for players that were never credited.
func (s *Service) Balance(ctx context.Context, discordID string) (int64, error) {
	p, err := s.players.Get(ctx, discordID)
	if err != nil {
		return 0, domain.Technical("load player", err)
	}
	if p == nil {
		return 0, nil
	}
	return p.Balance, nil
}

// List returns the caller's banked dinosaurs and their slot limit.
func (s *Service) List(ctx context.Context, discordID string) ([]*domain.CommittedDino, int, error) {
	steamID, err := s.steamID(ctx, discordID)
	if err != nil {
		return nil, 0, err
	}
	list, err := s.dinos.ListByOwner(ctx, steamID)
	if err != nil {
		return nil, 0, domain.Technical("list dinos", err)
	}
	limit, err := s.slots.Limit(ctx, discordID)
	if err != nil {
		return nil, 0, err
	}
	return list, limit, nil
}

// Buy pays for a catalog species and banks it. A full account is refused
// before any currency moves.
func (s *Service) Buy(ctx context.Context, discordID, species string) (*domain.CommittedDino, int64, error) {
	item, ok := s.shop.Dino(species)
	if !ok {
		return nil, 0, &domain.Error{Kind: domain.KindInvalidArgs, Msg: "unknown species " + species}
	}
	steamID, err := s.steamID(ctx, discordID)
	if err != nil {
		return nil, 0, err
	}
	limit, err := s.slots.Check(ctx, discordID, steamID)
	if err != nil {
		return nil, 0, err
	}
	dino, balance, err := s.dinos.Purchase(ctx, discordID, &domain.CommittedDino{
		SteamID: steamID,
		Species: item.Class,
		Stats:   boughtStats,
	}, limit, item.Price)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSlotsFull), errors.Is(err, domain.ErrInsufficientFunds):
		return nil, balance, err
	case errors.Is(err, store.ErrNotFound):
		return nil, 0, domain.ErrInsufficientFunds
	default:
		return nil, 0, domain.Technical("purchase dino", err)
	}
	obslog.L().Info("dino_purchased",
		zap.String("discord_id", discordID),
		zap.String("steam_id", steamID),
		zap.String("species", item.Class),
		zap.Int64("price", item.Price),
		zap.String("dino_id", dino.ID),
	)
	return dino, balance, nil
}

// Release deletes one of the caller's dinosaurs.
func (s *Service) Release(ctx context.Context, discordID, dinoID string) error {
	steamID, err := s.steamID(ctx, discordID)
	if err != nil {
		return err
	}
	ok, err := s.dinos.DeleteOwned(ctx, dinoID, steamID)
	if err != nil {
		return domain.Technical("delete dino", err)
	}
	if !ok {
		return domain.ErrDinoNotFound
	}
	obslog.L().Info("dino_released", zap.String("steam_id", steamID), zap.String("dino_id", dinoID))
	return nil
}

// Restore applies a banked dinosaur's stats to the one the player is
// currently playing and consumes the record. The live species must match and
// the record is deleted only after the game accepted the stats.
func (s *Service) Restore(ctx context.Context, discordID, dinoID string) (*domain.CommittedDino, error) {
	steamID, err := s.steamID(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if !s.beginRestore(dinoID) {
		return nil, ErrRestoreInFlight
	}
	defer s.endRestore(dinoID)

	dino, err := s.dinos.Get(ctx, dinoID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrDinoNotFound
	}
	if err != nil {
		return nil, domain.Technical("load dino", err)
	}
	if dino.SteamID != steamID {
		return nil, domain.ErrNotOwner
	}

	snap, err := s.game.QueryPlayer(ctx, steamID)
	if errors.Is(err, gamestate.ErrPlayerNotFound) {
		return nil, domain.ErrNotOnline
	}
	if err != nil {
		return nil, err
	}
	if !domain.SameSpecies(snap.Species, dino.Species) {
		return nil, &domain.Error{
			Kind: domain.KindSpeciesMismatch,
			Msg:  fmt.Sprintf("stored %s, playing %s", domain.SpeciesLabel(dino.Species), domain.SpeciesLabel(snap.Species)),
		}
	}
	if snap.PlayerID != dino.SteamID {
		return nil, domain.ErrNotOwner
	}

	if err := s.game.PushStats(ctx, steamID, dino.Stats); err != nil {
		return nil, err
	}
	ok, err := s.dinos.DeleteOwned(ctx, dino.ID, steamID)
	if err != nil {
		// stats are already applied; the record needs manual cleanup
		obslog.L().Error("dino_restore_delete_failed",
			zap.String("steam_id", steamID),
			zap.String("dino_id", dino.ID),
			zap.String("species", dino.Species),
			zap.Int("growth", dino.Growth),
			zap.Error(err),
		)
		return nil, domain.Technical("delete restored dino", err)
	}
	if !ok {
		obslog.L().Warn("dino_restore_record_gone",
			zap.String("steam_id", steamID),
			zap.String("dino_id", dino.ID),
		)
	}
	obslog.L().Info("dino_restored",
		zap.String("steam_id", steamID),
		zap.String("dino_id", dino.ID),
		zap.String("species", dino.Species),
		zap.Int("growth", dino.Growth),
	)
	return dino, nil
}

func (s *Service) beginRestore(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.restoring[id]; busy {
		return false
	}
	s.restoring[id] = struct{}{}
	return true
}

func (s *Service) endRestore(id string) {
	s.mu.Lock()
	delete(s.restoring, id)
	s.mu.Unlock()
}

// Slay kills the caller's current dinosaur.
func (s *Service) Slay(ctx context.Context, discordID string) error {
	steamID, err := s.steamID(ctx, discordID)
	if err != nil {
		return err
	}
	return s.game.Slay(ctx, steamID)
}

// SetNutrients takes protein, carbohydrate and lipid levels in percent.
func (s *Service) SetNutrients(ctx context.Context, discordID string, prot, carb, lipid int) error {
	for _, v := range []int{prot, carb, lipid} {
		if v < 0 || v > 100 {
			return &domain.Error{Kind: domain.KindInvalidArgs, Msg: "nutrients must be 0-100"}
		}
	}
	steamID, err := s.steamID(ctx, discordID)
	if err != nil {
		return err
	}
	return s.game.SetNutrients(ctx, steamID, float64(prot)/100, float64(carb)/100, float64(lipid)/100)
}

func (s *Service) Link(ctx context.Context, discordID, steamID string) (*domain.Player, error) {
	steamID = strings.TrimSpace(steamID)
	if !steamIDPattern.MatchString(steamID) {
		return nil, ErrInvalidSteamID
	}
	p, err := s.links.Link(ctx, discordID, steamID)
	if errors.Is(err, store.ErrSteamTaken) {
		return nil, ErrSteamTaken
	}
	if err != nil {
		return nil, domain.Technical("link player", err)
	}
	obslog.L().Info("player_linked", zap.String("discord_id", discordID), zap.String("steam_id", steamID))
	return p, nil
}

// Whois finds the chat account linked to steamID.
func (s *Service) Whois(ctx context.Context, steamID string) (*domain.Player, error) {
	steamID = strings.TrimSpace(steamID)
	if !steamIDPattern.MatchString(steamID) {
		return nil, ErrInvalidSteamID
	}
	p, err := s.players.GetBySteam(ctx, steamID)
	if err != nil {
		return nil, domain.Technical("lookup steam id", err)
	}
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

func (s *Service) Unlink(ctx context.Context, discordID string) error {
	ok, err := s.links.Unlink(ctx, discordID)
	if err != nil {
		return domain.Technical("unlink player", err)
	}
	if !ok {
		return domain.ErrNotLinked
	}
	obslog.L().Info("player_unlinked", zap.String("discord_id", discordID))
	return nil
}

// Give credits amount to discordID, creating the account if needed.
func (s *Service) Give(ctx context.Context, discordID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgs
	}
	bal, err := s.players.Credit(ctx, discordID, amount)
	if err != nil {
		return 0, domain.Technical("credit", err)
	}
	obslog.L().Info("currency_given", zap.String("discord_id", discordID), zap.Int64("amount", amount), zap.Int64("balance", bal))
	return bal, nil
}

// Take debits amount. It never drives the balance below zero.
func (s *Service) Take(ctx context.Context, discordID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgs
	}
	bal, err := s.players.Debit(ctx, discordID, amount)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return 0, ErrPlayerNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return bal, err
	default:
		return 0, domain.Technical("debit", err)
	}
	obslog.L().Info("currency_taken", zap.String("discord_id", discordID), zap.Int64("amount", amount), zap.Int64("balance", bal))
	return bal, nil
}

// AdminRestore pushes stats straight to a player's current dinosaur. Nothing
// is read from or written to storage.
func (s *Service) AdminRestore(ctx context.Context, steamID string, st domain.Stats) error {
	if !steamIDPattern.MatchString(strings.TrimSpace(steamID)) {
		return ErrInvalidSteamID
	}
	for _, v := range []int{st.Growth, st.Hunger, st.Thirst, st.Health} {
		if v < 0 || v > 100 {
			return &domain.Error{Kind: domain.KindInvalidArgs, Msg: "stats must be 0-100"}
		}
	}
	if err := s.game.PushStats(ctx, strings.TrimSpace(steamID), st); err != nil {
		return err
	}
	obslog.L().Info("admin_restore",
		zap.String("steam_id", steamID),
		zap.Int("growth", st.Growth),
		zap.Int("hunger", st.Hunger),
		zap.Int("thirst", st.Thirst),
		zap.Int("health", st.Health),
	)
	return nil
}

func (s *Service) steamID(ctx context.Context, discordID string) (string, error) {
	id, err := s.links.SteamID(ctx, discordID)
	if err != nil {
		return "", domain.Technical("resolve link", err)
	}
	if id == "" {
		return "", domain.ErrNotLinked
	}
	return id, nil
}
