// Package savesync stages dinosaur saves requested from chat and commits them
// when the matching departure line shows up in the server log.
//
// The pending table is the only coordination point. A save is staged by
// BeginSave, claimed exactly once by Reconcile and otherwise removed by
// Abandon or the sweeper.
package savesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/gamestate"
	"github.com/park285/isle-dino-bot/internal/metrics"
	"github.com/park285/isle-dino-bot/internal/obslog"
	"github.com/park285/isle-dino-bot/internal/store"
)

const DefaultStaleAfter = 2 * time.Minute

type Links interface {
	SteamID(ctx context.Context, discordID string) (string, error)
}

type Slots interface {
	Limit(ctx context.Context, discordID string) (int, error)
	Check(ctx context.Context, discordID, steamID string) (int, error)
}

type GameState interface {
	QueryPlayer(ctx context.Context, steamID string) (*domain.Snapshot, error)
}

type PendingStore interface {
	Stage(ctx context.Context, p *domain.PendingSave) (*domain.PendingSave, error)
	ClaimAndRemove(ctx context.Context, steamID string) (*domain.PendingSave, error)
	SweepOlderThan(ctx context.Context, age time.Duration) ([]*domain.PendingSave, error)
	DeleteByPlayer(ctx context.Context, steamID string) (int64, error)
}

type DinoStore interface {
	Add(ctx context.Context, dino *domain.CommittedDino, limit int) (*domain.CommittedDino, error)
}

// Notifier delivers results. Both calls are best-effort.
type Notifier interface {
	Notify(ctx context.Context, callback, text string) error
	DirectMessage(ctx context.Context, discordID, text string) error
}

type Renderer interface {
	Render(key string, data any) (string, error)
}

type Deps struct {
	Links   Links
	Slots   Slots
	Game    GameState
	Pending PendingStore
	Dinos   DinoStore
	Notify  Notifier
	Texts   Renderer
}

type Reconciler struct {
	links      Links
	slots      Slots
	game       GameState
	pending    PendingStore
	dinos      DinoStore
	notify     Notifier
	texts      Renderer
	staleAfter time.Duration
}

func New(d Deps, staleAfter time.Duration) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reconciler{
		links:      d.Links,
		slots:      d.Slots,
		game:       d.Game,
		pending:    d.Pending,
		dinos:      d.Dinos,
		notify:     d.Notify,
		texts:      d.Texts,
		staleAfter: staleAfter,
	}
}

// BeginSave validates the request and stages the live snapshot. The slot check
// runs before the game server is contacted.
func (r *Reconciler) BeginSave(ctx context.Context, discordID, callback string) (*domain.PendingSave, error) {
	p, err := r.beginSave(ctx, discordID, callback)
	if err != nil {
		metrics.SavesRejectedTotal.WithLabelValues(domain.KindOf(err).String()).Inc()
		obslog.L().Info("save_rejected",
			zap.String("discord_id", discordID),
			zap.String("kind", domain.KindOf(err).String()),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.SavesStagedTotal.Inc()
	obslog.L().Info("save_staged",
		zap.String("discord_id", discordID),
		zap.String("steam_id", p.SteamID),
		zap.String("species", p.Species),
		zap.Int("growth", p.Growth),
	)
	return p, nil
}

func (r *Reconciler) beginSave(ctx context.Context, discordID, callback string) (*domain.PendingSave, error) {
	steamID, err := r.links.SteamID(ctx, discordID)
	if err != nil {
		return nil, domain.Technical("resolve link", err)
	}
	if steamID == "" {
		return nil, domain.ErrNotLinked
	}

	if _, err := r.slots.Check(ctx, discordID, steamID); err != nil {
		return nil, err
	}

	snap, err := r.game.QueryPlayer(ctx, steamID)
	if errors.Is(err, gamestate.ErrPlayerNotFound) {
		return nil, domain.ErrNotOnline
	}
	if err != nil {
		return nil, domain.Technical("query player", err)
	}
	if snap.Species == "" {
		return nil, domain.ErrNotOnline
	}

	if _, err := r.SweepStale(ctx); err != nil {
		return nil, err
	}

	staged, err := r.pending.Stage(ctx, &domain.PendingSave{
		SteamID:   steamID,
		DiscordID: discordID,
		Callback:  callback,
		Species:   snap.Species,
		Stats:     snap.StoredStats(),
	})
	if err != nil {
		return nil, domain.Technical("stage pending", err)
	}
	return staged, nil
}

// SweepStale deletes staged saves older than the stale age and tells each
// requester that the save timed out. It returns the number of deleted rows.
func (r *Reconciler) SweepStale(ctx context.Context) (int, error) {
	swept, err := r.pending.SweepOlderThan(ctx, r.staleAfter)
	if err != nil {
		return 0, domain.Technical("sweep pending", err)
	}
	if len(swept) == 0 {
		return 0, nil
	}
	metrics.PendingSweptTotal.Add(float64(len(swept)))
	text := r.render("save.timeout", nil)
	for _, p := range swept {
		obslog.L().Info("save_expired",
			zap.String("steam_id", p.SteamID),
			zap.String("discord_id", p.DiscordID),
			zap.Duration("pending_for", time.Since(p.CreatedAt)),
		)
		r.notifyCallback(ctx, p, text)
	}
	return len(swept), nil
}

// Abandon removes any save still staged for steamID. It reports whether a row
// was removed; false means the save was already consumed or swept.
func (r *Reconciler) Abandon(ctx context.Context, steamID string) (bool, error) {
	n, err := r.pending.DeleteByPlayer(ctx, steamID)
	if err != nil {
		return false, domain.Technical("abandon pending", err)
	}
	if n > 0 {
		metrics.PendingSweptTotal.Add(float64(n))
		obslog.L().Info("save_abandoned", zap.String("steam_id", steamID), zap.Int64("rows", n))
	}
	return n > 0, nil
}

// Reconcile consumes the staged save for the departing player, if any, and
// commits it. It is safe to call concurrently and repeatedly for the same
// player; only one call can claim the row.
//
// Once the claim succeeds the row is gone. Later failures are not rolled
// back; they are logged with the full staged payload for manual recovery.
func (r *Reconciler) Reconcile(ctx context.Context, ev domain.Departure) error {
	p, err := r.pending.ClaimAndRemove(ctx, ev.SteamID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		obslog.L().Debug("departure_without_pending", zap.String("steam_id", ev.SteamID))
		return nil
	case errors.Is(err, store.ErrConflict):
		metrics.SaveConflictsTotal.Inc()
		obslog.L().Warn("save_conflict",
			zap.String("steam_id", ev.SteamID),
			zap.String("observed_species", ev.Species),
			zap.Error(err),
		)
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			r.reportConflict(ctx, conflict.Discarded)
		}
		return &domain.Error{Kind: domain.KindMultipleStaged, Msg: "multiple staged saves", Err: err}
	case err != nil:
		return domain.Technical("claim pending", err)
	}

	start := time.Now()
	dino, err := r.commit(ctx, p, ev)
	if err != nil {
		r.reportFailure(ctx, p, ev, err)
		return err
	}
	metrics.CommitLatency.Observe(time.Since(start).Seconds())
	metrics.SavesCommittedTotal.Inc()
	obslog.L().Info("save_committed",
		zap.String("steam_id", p.SteamID),
		zap.String("discord_id", p.DiscordID),
		zap.String("dino_id", dino.ID),
		zap.String("species", dino.Species),
		zap.Int("growth", dino.Growth),
		zap.Duration("pending_for", time.Since(p.CreatedAt)),
	)
	r.reportSuccess(ctx, p, dino)
	return nil
}

func (r *Reconciler) commit(ctx context.Context, p *domain.PendingSave, ev domain.Departure) (*domain.CommittedDino, error) {
	if !domain.SameSpecies(p.Species, ev.Species) {
		return nil, &domain.Error{
			Kind: domain.KindSpeciesMismatch,
			Msg:  fmt.Sprintf("staged %s, observed %s", p.Species, ev.Species),
		}
	}

	stats := p.Stats
	if stats.Growth > domain.MaxStoredGrowth {
		stats.Growth = domain.MaxStoredGrowth
	}

	limit, err := r.slots.Limit(ctx, p.DiscordID)
	if err != nil {
		return nil, err
	}
	dino, err := r.dinos.Add(ctx, &domain.CommittedDino{
		SteamID: p.SteamID,
		Species: p.Species,
		Stats:   stats,
	}, limit)
	switch {
	case err == nil:
		return dino, nil
	case errors.Is(err, domain.ErrSlotsFull):
		return nil, err
	case errors.Is(err, store.ErrNotFound):
		return nil, domain.ErrNotLinked
	default:
		return nil, domain.Technical("insert dino", err)
	}
}

func (r *Reconciler) reportSuccess(ctx context.Context, p *domain.PendingSave, dino *domain.CommittedDino) {
	text := r.render("save.committed", map[string]any{
		"Species": domain.SpeciesLabel(dino.Species),
		"Growth":  dino.Growth,
		"Hunger":  dino.Hunger,
		"Thirst":  dino.Thirst,
		"Health":  dino.Health,
	})
	r.deliver(ctx, p, text)
}

func (r *Reconciler) reportFailure(ctx context.Context, p *domain.PendingSave, ev domain.Departure, err error) {
	kind := domain.KindOf(err)
	metrics.SavesRejectedTotal.WithLabelValues(kind.String()).Inc()
	obslog.L().Error("save_commit_failed",
		zap.String("kind", kind.String()),
		zap.String("steam_id", p.SteamID),
		zap.String("discord_id", p.DiscordID),
		zap.String("species", p.Species),
		zap.String("observed_species", ev.Species),
		zap.Float64("observed_growth", ev.Growth),
		zap.Int("growth", p.Growth),
		zap.Int("hunger", p.Hunger),
		zap.Int("thirst", p.Thirst),
		zap.Int("health", p.Health),
		zap.String("callback", p.Callback),
		zap.Error(err),
	)
	text := r.render("save.failed."+kind.String(), map[string]any{
		"Species":  domain.SpeciesLabel(p.Species),
		"Observed": domain.SpeciesLabel(ev.Species),
	})
	r.deliver(ctx, p, text)
}

// reportConflict closes every discarded prompt. Each requester gets one DM.
func (r *Reconciler) reportConflict(ctx context.Context, discarded []*domain.PendingSave) {
	text := r.render("save.failed."+domain.KindMultipleStaged.String(), nil)
	dmSent := make(map[string]bool, len(discarded))
	for _, p := range discarded {
		metrics.SavesRejectedTotal.WithLabelValues(domain.KindMultipleStaged.String()).Inc()
		r.notifyCallback(ctx, p, text)
		if !dmSent[p.DiscordID] {
			dmSent[p.DiscordID] = true
			r.directMessage(ctx, p, text)
		}
	}
}

func (r *Reconciler) deliver(ctx context.Context, p *domain.PendingSave, text string) {
	r.notifyCallback(ctx, p, text)
	r.directMessage(ctx, p, text)
}

func (r *Reconciler) notifyCallback(ctx context.Context, p *domain.PendingSave, text string) {
	if r.notify == nil || text == "" || p.Callback == "" {
		return
	}
	if err := r.notify.Notify(ctx, p.Callback, text); err != nil {
		obslog.L().Warn("save_notify_failed", zap.String("steam_id", p.SteamID), zap.Error(err))
	}
}

func (r *Reconciler) directMessage(ctx context.Context, p *domain.PendingSave, text string) {
	if r.notify == nil || text == "" || p.DiscordID == "" {
		return
	}
	if err := r.notify.DirectMessage(ctx, p.DiscordID, text); err != nil {
		obslog.L().Warn("save_dm_failed", zap.String("discord_id", p.DiscordID), zap.Error(err))
	}
}

func (r *Reconciler) render(key string, data map[string]any) string {
	if r.texts == nil {
		return ""
	}
	text, err := r.texts.Render(key, data)
	if err != nil {
		obslog.L().Warn("message_render_failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return text
}
