package discord

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/httpc"
	"github.com/park285/isle-dino-bot/internal/obslog"
)

// Notifier reports save results by editing the original interaction reply
// and by direct message.
type Notifier struct {
	rest *REST
}

func NewNotifier(rest *REST) *Notifier { return &Notifier{rest: rest} }

// Notify edits the message behind callback. An expired interaction token is
// logged and swallowed.
func (n *Notifier) Notify(ctx context.Context, callback, text string) error {
	if strings.TrimSpace(callback) == "" {
		return nil
	}
	err := n.rest.EditURL(ctx, callback, text)
	if status := httpc.StatusOf(err); status == 401 || status == 404 {
		obslog.L().Info("discord_callback_expired", zap.Int("status", status))
		return nil
	}
	return err
}

func (n *Notifier) DirectMessage(ctx context.Context, discordID, text string) error {
	return n.rest.DirectMessage(ctx, discordID, text)
}
