// Package clicker drives the HTTP sidecar that applies in-game changes.
package clicker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/httpc"
)

type Client struct {
	api *httpc.Client
}

// New accepts either host:port or a full base URL.
func New(apiURL, user, pass string, timeout time.Duration, opts ...httpc.Option) *Client {
	base := strings.TrimSpace(apiURL)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	all := append([]httpc.Option{httpc.WithTimeout(timeout), httpc.WithBasicAuth(user, pass), httpc.WithRetry(2)}, opts...)
	return &Client{api: httpc.NewClient(base, all...)}
}

// Enter asks the sidecar to focus the game client.
func (c *Client) Enter(ctx context.Context) (*Result, error) {
	return c.run(ctx, "/run-enter", nil)
}

func (c *Client) RestoreDino(ctx context.Context, steamID string, st domain.Stats) (*Result, error) {
	return c.run(ctx, "/run-restore-dino", restoreRequest{
		SteamID: steamID, Growth: st.Growth, Hunger: st.Hunger, Thirst: st.Thirst, Health: st.Health,
	})
}

func (c *Client) SlayDino(ctx context.Context, steamID string) (*Result, error) {
	return c.run(ctx, "/run-slay-dino", slayRequest{SteamID: steamID})
}

func (c *Client) SetNutrients(ctx context.Context, steamID string, prot, carb, lipid float64) (*Result, error) {
	return c.run(ctx, "/run-set-nutrients", nutrientsRequest{SteamID: steamID, Prot: prot, Carb: carb, Lipid: lipid})
}

// run never retries: a repeated restore would apply stats twice.
func (c *Client) run(ctx context.Context, path string, in any) (*Result, error) {
	var res Result
	if err := c.api.DoJSON(ctx, fasthttp.MethodPost, path, in, &res, false); err != nil {
		return nil, fmt.Errorf("clicker %s: %w", path, err)
	}
	return &res, nil
}
