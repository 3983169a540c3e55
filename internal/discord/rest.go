package discord

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/isle-dino-bot/internal/httpc"
)

const DefaultAPIBase = "https://discord.com/api/v10"

// REST wraps the handful of Discord HTTP endpoints the bot calls.
type REST struct {
	api   *httpc.Client
	appID string

	dmMu sync.Mutex
	dms  map[string]string
}

// NewREST builds a client authenticated as the bot. Requests are paced below
// Discord's global limit of 50 per second.
func NewREST(apiBase, token, appID string, opts ...httpc.Option) *REST {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = DefaultAPIBase
	}
	auth := "Bot " + token
	all := append([]httpc.Option{
		httpc.WithTimeout(10 * time.Second),
		httpc.WithRateLimit(40, 10),
		httpc.WithRetry(3),
		httpc.WithHeaderProvider(func() map[string]string {
			return map[string]string{"Authorization": auth}
		}),
	}, opts...)
	return &REST{api: httpc.NewClient(apiBase, all...), appID: appID, dms: map[string]string{}}
}

// Respond answers an interaction. It must be called within three seconds of
// receiving it and is never retried.
func (r *REST) Respond(ctx context.Context, in *Interaction, resp InteractionResponse) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback", url.PathEscape(in.ID), url.PathEscape(in.Token))
	if err := r.api.DoJSON(ctx, fasthttp.MethodPost, path, resp, nil, false); err != nil {
		return fmt.Errorf("discord respond: %w", err)
	}
	return nil
}

// OriginalURL is the webhook URL of the first response to an interaction.
// It stays valid for fifteen minutes.
func (r *REST) OriginalURL(token string) string {
	return fmt.Sprintf("%s/webhooks/%s/%s/messages/@original", r.api.BaseURL(), url.PathEscape(r.appID), url.PathEscape(token))
}

// EditURL replaces the content of the message behind a webhook message URL.
func (r *REST) EditURL(ctx context.Context, messageURL, content string) error {
	if err := r.api.DoJSON(ctx, fasthttp.MethodPatch, messageURL, messageEdit{Content: content}, nil, true); err != nil {
		return fmt.Errorf("discord edit message: %w", err)
	}
	return nil
}

func (r *REST) EditOriginal(ctx context.Context, token, content string) error {
	return r.EditURL(ctx, r.OriginalURL(token), content)
}

// DirectMessage opens (or reuses) the DM channel with userID and posts content.
func (r *REST) DirectMessage(ctx context.Context, userID, content string) error {
	channelID, err := r.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := r.api.DoJSON(ctx, fasthttp.MethodPost, path, messageCreate{Content: content}, nil, true); err != nil {
		return fmt.Errorf("discord send dm: %w", err)
	}
	return nil
}

func (r *REST) dmChannel(ctx context.Context, userID string) (string, error) {
	r.dmMu.Lock()
	id, ok := r.dms[userID]
	r.dmMu.Unlock()
	if ok {
		return id, nil
	}
	var ch Channel
	if err := r.api.DoJSON(ctx, fasthttp.MethodPost, "/users/@me/channels", dmCreate{RecipientID: userID}, &ch, true); err != nil {
		return "", fmt.Errorf("discord open dm: %w", err)
	}
	if ch.ID == "" {
		return "", fmt.Errorf("discord open dm: empty channel id")
	}
	r.dmMu.Lock()
	r.dms[userID] = ch.ID
	r.dmMu.Unlock()
	return ch.ID, nil
}

// RegisterCommands overwrites the command set, per guild when guildID is set.
func (r *REST) RegisterCommands(ctx context.Context, guildID string, cmds []Command) error {
	path := "/applications/" + url.PathEscape(r.appID) + "/commands"
	if guildID != "" {
		path = "/applications/" + url.PathEscape(r.appID) + "/guilds/" + url.PathEscape(guildID) + "/commands"
	}
	if err := r.api.DoJSON(ctx, fasthttp.MethodPut, path, cmds, nil, true); err != nil {
		return fmt.Errorf("discord register commands: %w", err)
	}
	return nil
}

// Roles manages member roles in one guild. With no guild configured every
// call is a no-op.
type Roles struct {
	rest    *REST
	guildID string
}

func NewRoles(rest *REST, guildID string) *Roles { return &Roles{rest: rest, guildID: strings.TrimSpace(guildID)} }

func (r *Roles) GrantRole(ctx context.Context, userID, roleID string) error {
	return r.member(ctx, fasthttp.MethodPut, userID, roleID)
}

func (r *Roles) RevokeRole(ctx context.Context, userID, roleID string) error {
	return r.member(ctx, fasthttp.MethodDelete, userID, roleID)
}

func (r *Roles) member(ctx context.Context, method, userID, roleID string) error {
	if r.guildID == "" {
		return nil
	}
	path := "/guilds/" + url.PathEscape(r.guildID) + "/members/" + url.PathEscape(userID) + "/roles/" + url.PathEscape(roleID)
	if err := r.rest.api.DoJSON(ctx, method, path, nil, nil, true); err != nil {
		return fmt.Errorf("discord %s role: %w", strings.ToLower(method), err)
	}
	return nil
}
