// Package subscription sells slot subscriptions and keeps them current.
package subscription

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/catalog"
	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/metrics"
	"github.com/park285/isle-dino-bot/internal/obslog"
	"github.com/park285/isle-dino-bot/internal/store"
)

const (
	DefaultInterval     = time.Hour
	DefaultNoticeWindow = 24 * time.Hour

	// ExpiryLayout formats end dates in messages.
	ExpiryLayout = "02.01.2006 15:04 UTC"
)

var ErrAlreadyActive = &domain.Error{Kind: domain.KindInvalidArgs, Msg: "subscription already active"}

type Store interface {
	Active(ctx context.Context, discordID string) (*domain.Subscription, error)
	Purchase(ctx context.Context, s *domain.Subscription, price int64, period time.Duration) (*domain.Subscription, int64, error)
	ExpiringWithin(ctx context.Context, window time.Duration) ([]*domain.Subscription, error)
	Expired(ctx context.Context) ([]*domain.Subscription, error)
	MarkNotified(ctx context.Context, id int64) error
	RenewPaid(ctx context.Context, s *domain.Subscription, price int64, period time.Duration) (time.Time, int64, error)
	Expire(ctx context.Context, id int64) error
	SetAutoRenewal(ctx context.Context, id int64, on bool) error
}

type Tiers interface {
	Tier(name string) (catalog.Tier, bool)
}

type Messenger interface {
	DirectMessage(ctx context.Context, discordID, text string) error
}

type Renderer interface {
	Render(key string, data any) (string, error)
}

// Roles grants and revokes the guild role tied to a tier.
type Roles interface {
	GrantRole(ctx context.Context, discordID, roleID string) error
	RevokeRole(ctx context.Context, discordID, roleID string) error
}

type Service struct {
	store  Store
	tiers  Tiers
	dm     Messenger
	texts  Renderer
	roles  Roles
	window time.Duration
}

func NewService(st Store, tiers Tiers, dm Messenger, texts Renderer, noticeWindow time.Duration) *Service {
	if noticeWindow <= 0 {
		noticeWindow = DefaultNoticeWindow
	}
	return &Service{store: st, tiers: tiers, dm: dm, texts: texts, window: noticeWindow}
}

// WithRoles enables tier roles. Tiers without a role id are unaffected.
func (s *Service) WithRoles(r Roles) *Service {
	s.roles = r
	return s
}

// Buy pays for tierName from the balance and activates it.
func (s *Service) Buy(ctx context.Context, discordID, tierName string) (*domain.Subscription, int64, error) {
	tier, ok := s.tiers.Tier(tierName)
	if !ok {
		return nil, 0, domain.ErrInvalidArgs
	}
	cur, err := s.store.Active(ctx, discordID)
	if err != nil {
		return nil, 0, domain.Technical("load subscription", err)
	}
	if cur != nil {
		return cur, 0, ErrAlreadyActive
	}
	sub, balance, err := s.store.Purchase(ctx, &domain.Subscription{
		DiscordID:   discordID,
		Tier:        tier.Name,
		DinoSlots:   tier.DinoSlots,
		AutoRenewal: tier.AutoRenewDefault,
	}, tier.Price, tier.Duration())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInsufficientFunds):
		return nil, balance, err
	case errors.Is(err, store.ErrNotFound):
		// never credited, so the balance is zero
		return nil, 0, domain.ErrInsufficientFunds
	default:
		return nil, 0, domain.Technical("purchase subscription", err)
	}
	obslog.L().Info("subscription_purchased",
		zap.String("discord_id", discordID),
		zap.String("tier", sub.Tier),
		zap.Time("expires_at", sub.ExpiresAt),
	)
	s.syncRole(ctx, discordID, tier.RoleID, true)
	return sub, balance, nil
}

func (s *Service) Current(ctx context.Context, discordID string) (*domain.Subscription, error) {
	sub, err := s.store.Active(ctx, discordID)
	if err != nil {
		return nil, domain.Technical("load subscription", err)
	}
	return sub, nil
}

// SetAutoRenewal toggles renewal on the caller's active subscription.
func (s *Service) SetAutoRenewal(ctx context.Context, discordID string, on bool) error {
	sub, err := s.Current(ctx, discordID)
	if err != nil {
		return err
	}
	if sub == nil {
		return &domain.Error{Kind: domain.KindNotFound, Msg: "no active subscription"}
	}
	if err := s.store.SetAutoRenewal(ctx, sub.ID, on); err != nil {
		return domain.Technical("set auto renewal", err)
	}
	return nil
}

// Run checks subscriptions once at start and then every interval.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.CheckOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// CheckOnce announces subscriptions about to end and settles expired ones.
func (s *Service) CheckOnce(ctx context.Context) {
	expiring, err := s.store.ExpiringWithin(ctx, s.window)
	if err != nil {
		obslog.L().Warn("subscription_expiring_query_failed", zap.Error(err))
	}
	for _, sub := range expiring {
		s.send(ctx, sub.DiscordID, "subscription.expiring", map[string]any{
			"Tier":        sub.Tier,
			"Expires":     sub.ExpiresAt.Format(ExpiryLayout),
			"AutoRenewal": sub.AutoRenewal,
		})
		if err := s.store.MarkNotified(ctx, sub.ID); err != nil {
			obslog.L().Warn("subscription_mark_notified_failed", zap.Int64("id", sub.ID), zap.Error(err))
		}
	}

	expired, err := s.store.Expired(ctx)
	if err != nil {
		obslog.L().Warn("subscription_expired_query_failed", zap.Error(err))
		return
	}
	for _, sub := range expired {
		if sub.AutoRenewal && s.renew(ctx, sub) {
			continue
		}
		s.expire(ctx, sub)
	}
}

func (s *Service) renew(ctx context.Context, sub *domain.Subscription) bool {
	tier, ok := s.tiers.Tier(sub.Tier)
	if !ok {
		obslog.L().Warn("subscription_tier_unknown", zap.Int64("id", sub.ID), zap.String("tier", sub.Tier))
		return false
	}
	until, balance, err := s.store.RenewPaid(ctx, sub, tier.Price, tier.Duration())
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientFunds) && !errors.Is(err, store.ErrNotFound) {
			obslog.L().Warn("subscription_renew_failed", zap.Int64("id", sub.ID), zap.Error(err))
		}
		return false
	}
	metrics.SubscriptionsRenewedTotal.Inc()
	obslog.L().Info("subscription_renewed", zap.Int64("id", sub.ID), zap.String("discord_id", sub.DiscordID), zap.Time("expires_at", until))
	s.send(ctx, sub.DiscordID, "subscription.renewed", map[string]any{
		"Tier":    sub.Tier,
		"Expires": until.Format(ExpiryLayout),
		"Balance": balance,
	})
	return true
}

func (s *Service) expire(ctx context.Context, sub *domain.Subscription) {
	if err := s.store.Expire(ctx, sub.ID); err != nil {
		obslog.L().Warn("subscription_expire_failed", zap.Int64("id", sub.ID), zap.Error(err))
		return
	}
	metrics.SubscriptionsExpiredTotal.Inc()
	obslog.L().Info("subscription_expired", zap.Int64("id", sub.ID), zap.String("discord_id", sub.DiscordID))
	if tier, ok := s.tiers.Tier(sub.Tier); ok {
		s.syncRole(ctx, sub.DiscordID, tier.RoleID, false)
	}
	s.send(ctx, sub.DiscordID, "subscription.expired", map[string]any{"Tier": sub.Tier})
}

// syncRole failures are logged only; the subscription itself is already settled.
func (s *Service) syncRole(ctx context.Context, discordID, roleID string, grant bool) {
	if s.roles == nil || roleID == "" {
		return
	}
	op, event := s.roles.GrantRole, "subscription_role_grant_failed"
	if !grant {
		op, event = s.roles.RevokeRole, "subscription_role_revoke_failed"
	}
	if err := op(ctx, discordID, roleID); err != nil {
		obslog.L().Warn(event, zap.String("discord_id", discordID), zap.String("role_id", roleID), zap.Error(err))
	}
}

func (s *Service) send(ctx context.Context, discordID, key string, data map[string]any) {
	if s.dm == nil || s.texts == nil {
		return
	}
	text, err := s.texts.Render(key, data)
	if err != nil {
		obslog.L().Warn("message_render_failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.dm.DirectMessage(ctx, discordID, text); err != nil {
		obslog.L().Warn("subscription_dm_failed", zap.String("discord_id", discordID), zap.Error(err))
	}
}
