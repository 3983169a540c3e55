package clicker

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/httpc"
)

func newTestClient(t *testing.T, h fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, h) }()
	t.Cleanup(func() { _ = ln.Close() })
	return New("sidecar:8000", "bot", "pw", time.Second, httpc.WithDial(func(string) (net.Conn, error) { return ln.Dial() }))
}

func TestRestoreDinoPostsStats(t *testing.T) {
	var got restoreRequest
	var path string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		path = string(ctx.Path())
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetBodyString(`{"success":true,"status":"ok"}`)
	})

	res, err := c.RestoreDino(context.Background(), "7656", domain.Stats{Growth: 99, Hunger: 80, Thirst: 70, Health: 60})
	if err != nil { t.Fatalf("RestoreDino: %v", err) }
	if !res.Success { t.Fatalf("res = %+v", res) }
	if path != "/run-restore-dino" { t.Fatalf("path = %s", path) }
	if got.SteamID != "7656" || got.Growth != 99 || got.Hunger != 80 || got.Thirst != 70 || got.Health != 60 { t.Fatalf("body = %+v", got) }
}

func TestSlayReportsFailure(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"success":false,"message":"player not found"}`)
	})
	res, err := c.SlayDino(context.Background(), "7656")
	if err != nil { t.Fatalf("SlayDino: %v", err) }
	if res.Success || res.Message != "player not found" { t.Fatalf("res = %+v", res) }
}

func TestServerErrorIsNotRetried(t *testing.T) {
	hits := 0
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		hits++
		ctx.SetStatusCode(500)
	})
	if _, err := c.SetNutrients(context.Background(), "7656", 1, 1, 1); err == nil { t.Fatalf("expected error") }
	if hits != 1 { t.Fatalf("hits = %d, want 1", hits) }
}
