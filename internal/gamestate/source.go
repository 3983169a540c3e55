// Package gamestate reads live player state over RCON and applies changes
// through the clicker sidecar.
package gamestate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/clicker"
	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/obslog"
	"github.com/park285/isle-dino-bot/internal/rcon"
)

// ErrPlayerNotFound means the player is not in the server's player list.
var ErrPlayerNotFound = errors.New("gamestate: player not on server")

type PlayerLister interface {
	PlayerList(ctx context.Context) (string, error)
}

type Actuator interface {
	RestoreDino(ctx context.Context, steamID string, st domain.Stats) (*clicker.Result, error)
	SlayDino(ctx context.Context, steamID string) (*clicker.Result, error)
	SetNutrients(ctx context.Context, steamID string, prot, carb, lipid float64) (*clicker.Result, error)
}

type Source struct {
	players PlayerLister
	act     Actuator
}

func New(players PlayerLister, act Actuator) *Source {
	return &Source{players: players, act: act}
}

// Players returns every player currently on the server.
func (s *Source) Players(ctx context.Context) ([]domain.Snapshot, error) {
	raw, err := s.players.PlayerList(ctx)
	if err != nil {
		return nil, domain.Technical("rcon player list", err)
	}
	return rcon.ParsePlayers(raw), nil
}

// QueryPlayer returns the live snapshot for steamID or ErrPlayerNotFound.
func (s *Source) QueryPlayer(ctx context.Context, steamID string) (*domain.Snapshot, error) {
	list, err := s.Players(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := rcon.FindPlayer(list, steamID)
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return &p, nil
}

// PushStats applies stats to the player's current dinosaur.
func (s *Source) PushStats(ctx context.Context, steamID string, st domain.Stats) error {
	res, err := s.act.RestoreDino(ctx, steamID, st)
	return s.outcome("restore", steamID, res, err)
}

func (s *Source) Slay(ctx context.Context, steamID string) error {
	res, err := s.act.SlayDino(ctx, steamID)
	return s.outcome("slay", steamID, res, err)
}

func (s *Source) SetNutrients(ctx context.Context, steamID string, prot, carb, lipid float64) error {
	res, err := s.act.SetNutrients(ctx, steamID, prot, carb, lipid)
	return s.outcome("set_nutrients", steamID, res, err)
}

// outcome maps success=false to ErrNotOnline.
func (s *Source) outcome(op, steamID string, res *clicker.Result, err error) error {
	if err != nil {
		return domain.Technical("clicker "+op, err)
	}
	if res == nil || !res.Success {
		msg := ""
		if res != nil {
			msg = res.Message
		}
		obslog.L().Info("clicker_rejected", zap.String("op", op), zap.String("steam_id", steamID), zap.String("message", msg))
		return domain.ErrNotOnline
	}
	return nil
}
