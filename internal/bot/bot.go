// Package bot turns Discord interactions into service calls and renders the
// results from the message catalog.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/catalog"
	"github.com/park285/isle-dino-bot/internal/discord"
	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/obslog"
	dinosvc "github.com/park285/isle-dino-bot/internal/service/dino"
	"github.com/park285/isle-dino-bot/internal/subscription"
)

const (
	DefaultUITimeout = 2 * time.Minute

	maxMessageLen = 2000
)

type Responder interface {
	Respond(ctx context.Context, in *discord.Interaction, resp discord.InteractionResponse) error
	EditOriginal(ctx context.Context, token, content string) error
	OriginalURL(token string) string
}

type Saves interface {
	BeginSave(ctx context.Context, discordID, callback string) (*domain.PendingSave, error)
	Abandon(ctx context.Context, steamID string) (bool, error)
}

type Dinos interface {
	Profile(ctx context.Context, discordID string) (*dinosvc.Profile, error)
	Balance(ctx context.Context, discordID string) (int64, error)
	List(ctx context.Context, discordID string) ([]*domain.CommittedDino, int, error)
	Buy(ctx context.Context, discordID, species string) (*domain.CommittedDino, int64, error)
	Release(ctx context.Context, discordID, dinoID string) error
	Restore(ctx context.Context, discordID, dinoID string) (*domain.CommittedDino, error)
	Slay(ctx context.Context, discordID string) error
	SetNutrients(ctx context.Context, discordID string, prot, carb, lipid int) error
	Link(ctx context.Context, discordID, steamID string) (*domain.Player, error)
	Unlink(ctx context.Context, discordID string) error
	Whois(ctx context.Context, steamID string) (*domain.Player, error)
	Give(ctx context.Context, discordID string, amount int64) (int64, error)
	Take(ctx context.Context, discordID string, amount int64) (int64, error)
	AdminRestore(ctx context.Context, steamID string, st domain.Stats) error
}

type Subscriptions interface {
	Buy(ctx context.Context, discordID, tierName string) (*domain.Subscription, int64, error)
	Current(ctx context.Context, discordID string) (*domain.Subscription, error)
	SetAutoRenewal(ctx context.Context, discordID string, on bool) error
}

type Catalog interface {
	Dinos() []catalog.Dino
	Tiers() []catalog.Tier
	DisplayName(class string) string
}

type Texts interface {
	Text(key string, data any) string
}

type Deps struct {
	REST  Responder
	Saves Saves
	Dinos Dinos
	Subs  Subscriptions
	Shop  Catalog
	Texts Texts
}

type Bot struct {
	rest   Responder
	saves  Saves
	dinos  Dinos
	subs   Subscriptions
	shop   Catalog
	texts  Texts
	admins map[string]struct{}

	uiTimeout time.Duration

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New builds the router. uiTimeout is how long a staged save waits for the
// player to leave before the prompt is withdrawn.
func New(d Deps, adminIDs []string, uiTimeout time.Duration) *Bot {
	if uiTimeout <= 0 {
		uiTimeout = DefaultUITimeout
	}
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}
	return &Bot{
		rest:      d.REST,
		saves:     d.Saves,
		dinos:     d.Dinos,
		subs:      d.Subs,
		shop:      d.Shop,
		texts:     d.Texts,
		admins:    admins,
		uiTimeout: uiTimeout,
		stop:      make(chan struct{}),
	}
}

// Close stops pending save timers. Staged rows they would have removed are
// left to the sweeper.
func (b *Bot) Close() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.stop)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// goTimer runs fn on a tracked goroutine unless Close has been called.
func (b *Bot) goTimer(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
	return true
}

// Handle is the gateway handler.
func (b *Bot) Handle(ctx context.Context, in *discord.Interaction) {
	if in == nil || in.Type != discord.InteractionApplicationCmd {
		return
	}
	user := in.UserID()
	obslog.L().Debug("interaction_received", zap.String("command", in.Data.Name), zap.String("discord_id", user))

	switch in.Data.Name {
	case "save":
		b.handleSave(ctx, in)
	case "dinos":
		b.handleList(ctx, in)
	case "profile":
		b.handleProfile(ctx, in)
	case "balance":
		b.handleBalance(ctx, in)
	case "shop":
		b.reply(ctx, in, b.shopText())
	case "buy":
		b.handleBuy(ctx, in)
	case "release":
		b.handleRelease(ctx, in)
	case "restore":
		b.handleRestore(ctx, in)
	case "slay":
		b.handleSlay(ctx, in)
	case "nutrients":
		b.handleNutrients(ctx, in)
	case "subscription":
		b.handleSubscription(ctx, in)
	case "admin":
		if !b.isAdmin(user) {
			obslog.L().Warn("admin_command_denied", zap.String("discord_id", user))
			b.reply(ctx, in, b.texts.Text("errors.forbidden", nil))
			return
		}
		b.handleAdmin(ctx, in)
	default:
		b.reply(ctx, in, b.texts.Text("errors.unknown_command", nil))
	}
}

func (b *Bot) isAdmin(id string) bool {
	_, ok := b.admins[id]
	return ok
}

// reply answers immediately with an ephemeral message.
func (b *Bot) reply(ctx context.Context, in *discord.Interaction, text string) {
	err := b.rest.Respond(ctx, in, discord.InteractionResponse{
		Type: discord.ResponseChannelMessage,
		Data: &discord.InteractionResponseData{Content: clip(text), Flags: discord.FlagEphemeral},
	})
	if err != nil {
		obslog.L().Warn("interaction_reply_failed", zap.String("command", in.Data.Name), zap.Error(err))
	}
}

// deferred acknowledges now and fills the message in with the result of fn.
// It is used for commands that talk to the game server.
func (b *Bot) deferred(ctx context.Context, in *discord.Interaction, fn func() string) {
	err := b.rest.Respond(ctx, in, discord.InteractionResponse{
		Type: discord.ResponseDeferredChannelMessage,
		Data: &discord.InteractionResponseData{Flags: discord.FlagEphemeral},
	})
	if err != nil {
		obslog.L().Warn("interaction_defer_failed", zap.String("command", in.Data.Name), zap.Error(err))
		return
	}
	b.edit(ctx, in.Token, fn())
}

func (b *Bot) edit(ctx context.Context, token, text string) {
	if err := b.rest.EditOriginal(ctx, token, clip(text)); err != nil {
		obslog.L().Warn("interaction_edit_failed", zap.Error(err))
	}
}

// errorText renders a failure for the caller. Technical failures are logged.
func (b *Bot) errorText(op string, err error) string {
	switch {
	case sameErr(err, dinosvc.ErrSteamTaken):
		return b.texts.Text("link.taken", nil)
	case sameErr(err, dinosvc.ErrPlayerNotFound):
		return b.texts.Text("errors.player_not_found", nil)
	case sameErr(err, dinosvc.ErrRestoreInFlight):
		return b.texts.Text("errors.restore_in_flight", nil)
	}
	kind := domain.KindOf(err)
	if kind == domain.KindTechnical {
		obslog.L().Error("command_failed", zap.String("op", op), zap.Error(err))
	}
	return b.texts.Text("errors."+kind.String(), nil)
}

func sameErr(err error, target *domain.Error) bool {
	var e *domain.Error
	return errors.As(err, &e) && e == target
}

func (b *Bot) expiry(s *domain.Subscription) string {
	return s.ExpiresAt.UTC().Format(subscription.ExpiryLayout)
}

func clip(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen - 1
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
