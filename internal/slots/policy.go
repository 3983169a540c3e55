// Package slots computes how many dinosaurs a player may keep.
package slots

import (
	"context"

	"github.com/park285/isle-dino-bot/internal/domain"
)

type SubscriptionLookup interface {
	Active(ctx context.Context, discordID string) (*domain.Subscription, error)
}

type Counter interface {
	CountByOwner(ctx context.Context, steamID string) (int, error)
}

// Policy is base allowance plus the bonus of the active subscription.
type Policy struct {
	base  int
	subs  SubscriptionLookup
	dinos Counter
}

func NewPolicy(base int, subs SubscriptionLookup, dinos Counter) *Policy {
	if base < 0 {
		base = 0
	}
	return &Policy{base: base, subs: subs, dinos: dinos}
}

func (p *Policy) Limit(ctx context.Context, discordID string) (int, error) {
	limit := p.base
	if p.subs == nil {
		return limit, nil
	}
	sub, err := p.subs.Active(ctx, discordID)
	if err != nil {
		return 0, domain.Technical("load subscription", err)
	}
	if sub != nil && sub.DinoSlots > 0 {
		limit += sub.DinoSlots
	}
	return limit, nil
}

// Check returns the limit, or ErrSlotsFull when steamID already holds that many.
func (p *Policy) Check(ctx context.Context, discordID, steamID string) (int, error) {
	limit, err := p.Limit(ctx, discordID)
	if err != nil {
		return 0, err
	}
	n, err := p.dinos.CountByOwner(ctx, steamID)
	if err != nil {
		return 0, domain.Technical("count dinos", err)
	}
	if n >= limit {
		return limit, domain.ErrSlotsFull
	}
	return limit, nil
}
