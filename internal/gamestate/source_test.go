package gamestate

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/isle-dino-bot/internal/clicker"
	"github.com/park285/isle-dino-bot/internal/domain"
)

type fakeLister struct {
	raw string
	err error
}

func (f fakeLister) PlayerList(context.Context) (string, error) { return f.raw, f.err }

type fakeActuator struct {
	res    *clicker.Result
	err    error
	pushed domain.Stats
}

func (f *fakeActuator) RestoreDino(_ context.Context, _ string, st domain.Stats) (*clicker.Result, error) {
	f.pushed = st
	return f.res, f.err
}
func (f *fakeActuator) SlayDino(context.Context, string) (*clicker.Result, error) { return f.res, f.err }
func (f *fakeActuator) SetNutrients(context.Context, string, float64, float64, float64) (*clicker.Result, error) {
	return f.res, f.err
}

const list = `Name: DayBot, PlayerID: 76561199671085032, Location: X=1 Y=2 Z=3, Class: BP_Carnotaurus_C, Growth: 0.5, Health: 1, Stamina: 1, Hunger: 0.8, Thirst: 0.9`

func TestQueryPlayer(t *testing.T) {
	s := New(fakeLister{raw: list}, &fakeActuator{})
	snap, err := s.QueryPlayer(context.Background(), "76561199671085032")
	if err != nil { t.Fatalf("QueryPlayer: %v", err) }
	if snap.Species != "BP_Carnotaurus_C" || snap.Growth != 0.5 { t.Fatalf("snap = %+v", snap) }

	if _, err := s.QueryPlayer(context.Background(), "1"); !errors.Is(err, ErrPlayerNotFound) { t.Fatalf("err = %v", err) }
}

func TestQueryPlayerTransportFailureIsTechnical(t *testing.T) {
	s := New(fakeLister{err: errors.New("connection refused")}, &fakeActuator{})
	_, err := s.QueryPlayer(context.Background(), "1")
	if domain.KindOf(err) != domain.KindTechnical || errors.Is(err, ErrPlayerNotFound) { t.Fatalf("err = %v", err) }
}

func TestPushStatsOutcomes(t *testing.T) {
	act := &fakeActuator{res: &clicker.Result{Success: true}}
	s := New(fakeLister{}, act)
	st := domain.Stats{Growth: 99, Hunger: 100, Thirst: 100, Health: 100}
	if err := s.PushStats(context.Background(), "7656", st); err != nil { t.Fatalf("PushStats: %v", err) }
	if act.pushed != st { t.Fatalf("pushed %+v", act.pushed) }

	act.res = &clicker.Result{Success: false, Message: "not spawned"}
	if err := s.Slay(context.Background(), "7656"); !errors.Is(err, domain.ErrNotOnline) { t.Fatalf("Slay err = %v", err) }

	act.res, act.err = nil, errors.New("timeout")
	err := s.SetNutrients(context.Background(), "7656", 1, 1, 1)
	if domain.KindOf(err) != domain.KindTechnical { t.Fatalf("SetNutrients err = %v", err) }
}
