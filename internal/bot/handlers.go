package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/discord"
	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/obslog"
	"github.com/park285/isle-dino-bot/internal/subscription"
)

// handleSave stages the player's current dinosaur and withdraws the prompt
// if the departure does not arrive within the UI timeout.
func (b *Bot) handleSave(ctx context.Context, in *discord.Interaction) {
	b.deferred(ctx, in, func() string {
		p, err := b.saves.BeginSave(ctx, in.UserID(), b.rest.OriginalURL(in.Token))
		if err != nil {
			return b.errorText("save", err)
		}
		if !b.goTimer(func() { b.expireSave(p.SteamID, in.Token) }) {
			obslog.L().Debug("save_timer_skipped", zap.String("steam_id", p.SteamID))
		}
		return b.texts.Text("save.staged", map[string]any{
			"Species": b.shop.DisplayName(p.Species),
			"Growth":  p.Growth,
			"Minutes": max(int(b.uiTimeout/time.Minute), 1),
		})
	})
}

func (b *Bot) expireSave(steamID, token string) {
	t := time.NewTimer(b.uiTimeout)
	defer t.Stop()
	select {
	case <-b.stop:
		return
	case <-t.C:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	removed, err := b.saves.Abandon(ctx, steamID)
	if err != nil {
		obslog.L().Warn("save_abandon_failed", zap.String("steam_id", steamID), zap.Error(err))
		return
	}
	// false: the commit, conflict or sweep that removed the row already replied
	if removed {
		b.edit(ctx, token, b.texts.Text("save.timeout", nil))
	}
}

func (b *Bot) handleList(ctx context.Context, in *discord.Interaction) {
	list, limit, err := b.dinos.List(ctx, in.UserID())
	if err != nil {
		b.reply(ctx, in, b.errorText("list", err))
		return
	}
	if len(list) == 0 {
		b.reply(ctx, in, b.texts.Text("dino.empty", nil))
		return
	}
	lines := []string{b.texts.Text("dino.list_header", map[string]any{"Used": len(list), "Limit": limit})}
	for _, d := range list {
		lines = append(lines, b.texts.Text("dino.list_item", map[string]any{
			"ID":      d.ID,
			"Species": b.shop.DisplayName(d.Species),
			"Growth":  d.Growth,
			"Hunger":  d.Hunger,
			"Thirst":  d.Thirst,
			"Health":  d.Health,
		}))
	}
	b.reply(ctx, in, strings.Join(lines, "\n"))
}

func (b *Bot) handleProfile(ctx context.Context, in *discord.Interaction) {
	p, err := b.dinos.Profile(ctx, in.UserID())
	if err != nil {
		b.reply(ctx, in, b.errorText("profile", err))
		return
	}
	data := map[string]any{
		"SteamID": p.SteamID,
		"Balance": p.Balance,
		"Used":    p.Used,
		"Limit":   p.Limit,
		"Tier":    "",
		"Expires": "",
	}
	if p.Subscription != nil {
		data["Tier"] = p.Subscription.Tier
		data["Expires"] = b.expiry(p.Subscription)
	}
	b.reply(ctx, in, b.texts.Text("profile.summary", data))
}

func (b *Bot) handleBalance(ctx context.Context, in *discord.Interaction) {
	bal, err := b.dinos.Balance(ctx, in.UserID())
	if err != nil {
		b.reply(ctx, in, b.errorText("balance", err))
		return
	}
	b.reply(ctx, in, b.texts.Text("currency.balance", map[string]any{"Balance": bal}))
}

func (b *Bot) shopText() string {
	lines := []string{b.texts.Text("shop.header", nil)}
	for _, d := range b.shop.Dinos() {
		lines = append(lines, b.texts.Text("shop.item", map[string]any{
			"Name":     d.Name,
			"Category": b.texts.Text("shop.category."+d.Category, nil),
			"Price":    d.Price,
		}))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) handleBuy(ctx context.Context, in *discord.Interaction) {
	args := optionMap(in.Data.Options)
	species := args["species"].String()
	d, bal, err := b.dinos.Buy(ctx, in.UserID(), species)
	if err != nil {
		if domain.KindOf(err) == domain.KindInvalidArgs {
			b.reply(ctx, in, b.texts.Text("shop.unknown", nil))
			return
		}
		b.reply(ctx, in, b.errorText("buy", err))
		return
	}
	price := int64(0)
	for _, item := range b.shop.Dinos() {
		if item.Class == d.Species {
			price = item.Price
		}
	}
	b.reply(ctx, in, b.texts.Text("dino.bought", map[string]any{
		"Species": b.shop.DisplayName(d.Species),
		"Price":   price,
		"Balance": bal,
	}))
}

func (b *Bot) handleRelease(ctx context.Context, in *discord.Interaction) {
	id := strings.TrimSpace(optionMap(in.Data.Options)["id"].String())
	if err := b.dinos.Release(ctx, in.UserID(), id); err != nil {
		b.reply(ctx, in, b.errorText("release", err))
		return
	}
	b.reply(ctx, in, b.texts.Text("dino.released", map[string]any{"ID": id}))
}

func (b *Bot) handleRestore(ctx context.Context, in *discord.Interaction) {
	id := strings.TrimSpace(optionMap(in.Data.Options)["id"].String())
	b.deferred(ctx, in, func() string {
		d, err := b.dinos.Restore(ctx, in.UserID(), id)
		if err != nil {
			return b.errorText("restore", err)
		}
		return b.texts.Text("dino.restored", map[string]any{"Species": b.shop.DisplayName(d.Species)})
	})
}

func (b *Bot) handleSlay(ctx context.Context, in *discord.Interaction) {
	b.deferred(ctx, in, func() string {
		if err := b.dinos.Slay(ctx, in.UserID()); err != nil {
			return b.errorText("slay", err)
		}
		return b.texts.Text("dino.slain", nil)
	})
}

func (b *Bot) handleNutrients(ctx context.Context, in *discord.Interaction) {
	args := optionMap(in.Data.Options)
	prot, ok1 := args["protein"].Int()
	carb, ok2 := args["carbs"].Int()
	lipid, ok3 := args["lipids"].Int()
	if !ok1 || !ok2 || !ok3 {
		b.reply(ctx, in, b.texts.Text("errors.invalid_args", nil))
		return
	}
	b.deferred(ctx, in, func() string {
		if err := b.dinos.SetNutrients(ctx, in.UserID(), int(prot), int(carb), int(lipid)); err != nil {
			return b.errorText("nutrients", err)
		}
		return b.texts.Text("dino.nutrients", nil)
	})
}

func (b *Bot) handleSubscription(ctx context.Context, in *discord.Interaction) {
	sub, args := subcommand(in.Data.Options)
	user := in.UserID()
	switch sub {
	case "tiers":
		lines := []string{b.texts.Text("subscription.tiers_header", nil)}
		for _, t := range b.shop.Tiers() {
			lines = append(lines, b.texts.Text("subscription.tier_item", map[string]any{
				"Name": t.Name, "Price": t.Price, "Slots": t.DinoSlots, "Days": t.DurationDays,
			}))
		}
		b.reply(ctx, in, strings.Join(lines, "\n"))
	case "buy":
		s, bal, err := b.subs.Buy(ctx, user, args["tier"].String())
		switch {
		case errors.Is(err, subscription.ErrAlreadyActive) && s != nil:
			b.reply(ctx, in, b.texts.Text("subscription.already_active", map[string]any{"Tier": s.Tier}))
		case domain.KindOf(err) == domain.KindInvalidArgs:
			b.reply(ctx, in, b.texts.Text("subscription.unknown", nil))
		case err != nil:
			b.reply(ctx, in, b.errorText("subscription_buy", err))
		default:
			b.reply(ctx, in, b.texts.Text("subscription.bought", map[string]any{
				"Tier": s.Tier, "Expires": b.expiry(s), "Balance": bal,
			}))
		}
	case "status":
		s, err := b.subs.Current(ctx, user)
		switch {
		case err != nil:
			b.reply(ctx, in, b.errorText("subscription_status", err))
		case s == nil:
			b.reply(ctx, in, b.texts.Text("subscription.none", nil))
		default:
			b.reply(ctx, in, b.texts.Text("subscription.status", map[string]any{
				"Tier": s.Tier, "Expires": b.expiry(s), "Slots": s.DinoSlots, "AutoRenewal": s.AutoRenewal,
			}))
		}
	case "autorenew":
		on := args["enabled"].Bool()
		err := b.subs.SetAutoRenewal(ctx, user, on)
		switch {
		case domain.KindOf(err) == domain.KindNotFound:
			b.reply(ctx, in, b.texts.Text("subscription.none", nil))
		case err != nil:
			b.reply(ctx, in, b.errorText("subscription_autorenew", err))
		default:
			b.reply(ctx, in, b.texts.Text("subscription.auto_renewal", map[string]any{"On": on}))
		}
	default:
		b.reply(ctx, in, b.texts.Text("errors.unknown_command", nil))
	}
}

func (b *Bot) handleAdmin(ctx context.Context, in *discord.Interaction) {
	sub, args := subcommand(in.Data.Options)
	admin := in.UserID()
	target := strings.TrimSpace(args["user"].String())
	obslog.L().Info("admin_command", zap.String("admin", admin), zap.String("sub", sub), zap.String("target", target))

	switch sub {
	case "link":
		p, err := b.dinos.Link(ctx, target, args["steam_id"].String())
		if err != nil {
			b.reply(ctx, in, b.errorText("link", err))
			return
		}
		b.reply(ctx, in, b.texts.Text("link.done", map[string]any{"SteamID": p.SteamID, "DiscordID": target}))
	case "unlink":
		if err := b.dinos.Unlink(ctx, target); err != nil {
			b.reply(ctx, in, b.errorText("unlink", err))
			return
		}
		b.reply(ctx, in, b.texts.Text("link.removed", map[string]any{"DiscordID": target}))
	case "whois":
		p, err := b.dinos.Whois(ctx, args["steam_id"].String())
		if err != nil {
			b.reply(ctx, in, b.errorText("whois", err))
			return
		}
		b.reply(ctx, in, b.texts.Text("link.whois", map[string]any{"SteamID": p.SteamID, "DiscordID": p.DiscordID, "Balance": p.Balance}))
	case "give", "take":
		amount, ok := args["amount"].Int()
		if !ok {
			b.reply(ctx, in, b.texts.Text("errors.invalid_args", nil))
			return
		}
		op, key := b.dinos.Give, "currency.given"
		if sub == "take" {
			op, key = b.dinos.Take, "currency.taken"
		}
		bal, err := op(ctx, target, amount)
		if err != nil {
			b.reply(ctx, in, b.errorText(sub, err))
			return
		}
		b.reply(ctx, in, b.texts.Text(key, map[string]any{"Amount": amount, "DiscordID": target, "Balance": bal}))
	case "restore":
		steamID := strings.TrimSpace(args["steam_id"].String())
		var st domain.Stats
		for name, dst := range map[string]*int{"growth": &st.Growth, "hunger": &st.Hunger, "thirst": &st.Thirst, "health": &st.Health} {
			v, ok := args[name].Int()
			if !ok {
				b.reply(ctx, in, b.texts.Text("errors.invalid_args", nil))
				return
			}
			*dst = int(v)
		}
		b.deferred(ctx, in, func() string {
			if err := b.dinos.AdminRestore(ctx, steamID, st); err != nil {
				return b.errorText("admin_restore", err)
			}
			return b.texts.Text("admin.restored", map[string]any{"SteamID": steamID})
		})
	default:
		b.reply(ctx, in, b.texts.Text("errors.unknown_command", nil))
	}
}

func optionMap(opts []discord.InteractionOption) map[string]discord.InteractionOption {
	m := make(map[string]discord.InteractionOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// subcommand unwraps "/cmd sub args..." into the sub name and its options.
func subcommand(opts []discord.InteractionOption) (string, map[string]discord.InteractionOption) {
	for _, o := range opts {
		if o.Type == discord.OptionSubCommand {
			return o.Name, optionMap(o.Options)
		}
	}
	return "", map[string]discord.InteractionOption{}
}
