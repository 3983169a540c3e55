package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/isle-dino-bot/internal/httpc"
	"github.com/park285/isle-dino-bot/internal/obslog"
)

const DefaultGatewayURL = "wss://gateway.discord.gg"

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Handler receives interactions. It runs on its own goroutine.
type Handler func(ctx context.Context, in *Interaction)

type StateCallback func(state State)

var (
	errReconnect      = errors.New("gateway asked to reconnect")
	errInvalidSession = errors.New("gateway invalidated the session")
	errZombie         = errors.New("heartbeat not acknowledged")
)

// FatalError is a close code after which reconnecting cannot succeed, such
// as a bad token or disallowed intents.
type FatalError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("gateway closed with %d: %s", e.Code, e.Reason)
}

// Gateway keeps one gateway session alive and forwards interactions.
type Gateway struct {
	url     string
	token   string
	intents int
	handle  Handler

	maxReconnectAttempts int

	state    State
	stateM   sync.RWMutex
	stateCbs []StateCallback
	cbM      sync.RWMutex

	// session state is only touched by the Run goroutine
	sessionID string
	resumeURL string
	seq       atomic.Int64

	wg sync.WaitGroup
}

// NewGateway creates a gateway client. maxReconnectAttempts bounds consecutive
// failed connects; zero retries forever.
func NewGateway(url, token string, intents int, maxReconnectAttempts int, handle Handler) *Gateway {
	if strings.TrimSpace(url) == "" {
		url = DefaultGatewayURL
	}
	return &Gateway{
		url:                  url,
		token:                token,
		intents:              intents,
		handle:               handle,
		maxReconnectAttempts: maxReconnectAttempts,
	}
}

func (g *Gateway) OnStateChange(cb StateCallback) {
	g.cbM.Lock()
	g.stateCbs = append(g.stateCbs, cb)
	g.cbM.Unlock()
}

func (g *Gateway) State() State {
	g.stateM.RLock()
	defer g.stateM.RUnlock()
	return g.state
}

func (g *Gateway) setState(state State) {
	g.stateM.Lock()
	changed := g.state != state
	g.state = state
	g.stateM.Unlock()
	if !changed {
		return
	}

	g.cbM.RLock()
	callbacks := make([]StateCallback, len(g.stateCbs))
	copy(callbacks, g.stateCbs)
	g.cbM.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(state)
		}
	}
}

// Run connects and reconnects until ctx is done or a fatal close code is
// received. Running handlers are awaited before it returns.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.wg.Wait()
	failures := 0
	for {
		connected, err := g.session(ctx)
		if ctx.Err() != nil {
			g.setState(StateDisconnected)
			return nil
		}
		var fatal *FatalError
		if errors.As(err, &fatal) {
			g.setState(StateFailed)
			obslog.L().Error("gateway_fatal_close", zap.Int("code", int(fatal.Code)), zap.String("reason", fatal.Reason))
			return err
		}
		if connected {
			failures = 0
		}
		failures++
		if g.maxReconnectAttempts > 0 && failures > g.maxReconnectAttempts {
			g.setState(StateFailed)
			return fmt.Errorf("gateway: giving up after %d attempts: %w", failures-1, err)
		}
		g.setState(StateReconnecting)
		obslog.L().Warn("gateway_disconnected",
			zap.Error(err),
			zap.Int("attempt", failures),
			zap.Bool("resumable", g.sessionID != ""),
		)
		select {
		case <-ctx.Done():
			g.setState(StateDisconnected)
			return nil
		case <-time.After(httpc.BackoffDuration(failures)):
		}
	}
}

// session runs one connection. connected reports whether the handshake
// completed.
func (g *Gateway) session(ctx context.Context) (connected bool, err error) {
	g.setState(StateConnecting)
	resuming := g.sessionID != "" && g.resumeURL != ""
	target := g.url
	if resuming {
		target = g.resumeURL
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, withQuery(target), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	cancel()
	if err != nil {
		return false, err
	}
	// READY carries the guild list and can exceed the default limit.
	conn.SetReadLimit(1 << 22)
	defer conn.CloseNow()

	sctx, stop := context.WithCancel(ctx)
	defer stop()

	var first payload
	if err := wsjson.Read(sctx, conn, &first); err != nil {
		return false, g.classify(err)
	}
	if first.Op != opHello {
		return false, fmt.Errorf("gateway: expected hello, got op %d", first.Op)
	}
	var hl hello
	if err := json.Unmarshal(first.D, &hl); err != nil || hl.HeartbeatInterval <= 0 {
		return false, fmt.Errorf("gateway: bad hello %s", string(first.D))
	}

	if resuming {
		err = g.send(sctx, conn, opResume, resume{Token: g.token, SessionID: g.sessionID, Seq: g.seq.Load()})
	} else {
		err = g.send(sctx, conn, opIdentify, identify{
			Token:      g.token,
			Intents:    g.intents,
			Properties: identifyProperties{OS: "linux", Browser: "isle-dino-bot", Device: "isle-dino-bot"},
		})
	}
	if err != nil {
		return false, err
	}
	g.setState(StateConnected)

	var acked atomic.Bool
	acked.Store(true)
	hbErr := make(chan error, 1)
	go g.heartbeat(sctx, conn, time.Duration(hl.HeartbeatInterval)*time.Millisecond, &acked, hbErr)

	for {
		var p payload
		if err := wsjson.Read(sctx, conn, &p); err != nil {
			select {
			case hb := <-hbErr:
				return true, hb
			default:
			}
			return true, g.classify(err)
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}
		switch p.Op {
		case opDispatch:
			g.dispatch(ctx, p)
		case opHeartbeat:
			if err := g.sendHeartbeat(sctx, conn); err != nil {
				return true, err
			}
		case opHeartbeatAck:
			acked.Store(true)
		case opReconnect:
			_ = conn.Close(websocket.StatusCode(4000), "reconnect requested")
			return true, errReconnect
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.clearSession()
			}
			_ = conn.Close(websocket.StatusCode(4000), "invalid session")
			return true, errInvalidSession
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration, acked *atomic.Bool, errc chan<- error) {
	t := time.NewTimer(time.Duration(rand.Int64N(int64(interval))))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if !acked.Swap(false) {
			errc <- errZombie
			_ = conn.Close(websocket.StatusCode(4000), "heartbeat ack missing")
			return
		}
		if err := g.sendHeartbeat(ctx, conn); err != nil {
			errc <- err
			return
		}
		t.Reset(interval)
	}
}

func (g *Gateway) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	d := json.RawMessage("null")
	if s := g.seq.Load(); s > 0 {
		d = json.RawMessage(strconv.FormatInt(s, 10))
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, payload{Op: opHeartbeat, D: d})
}

func (g *Gateway) send(ctx context.Context, conn *websocket.Conn, op int, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, payload{Op: op, D: raw})
}

func (g *Gateway) dispatch(ctx context.Context, p payload) {
	switch p.T {
	case "READY":
		var r ready
		if err := json.Unmarshal(p.D, &r); err != nil {
			obslog.L().Warn("gateway_ready_decode_failed", zap.Error(err))
			return
		}
		g.sessionID = r.SessionID
		g.resumeURL = r.ResumeGatewayURL
		obslog.L().Info("gateway_ready", zap.String("user", r.User.Username), zap.String("session_id", r.SessionID))
	case "RESUMED":
		obslog.L().Info("gateway_resumed", zap.String("session_id", g.sessionID))
	case "INTERACTION_CREATE":
		in := &Interaction{}
		if err := json.Unmarshal(p.D, in); err != nil {
			obslog.L().Warn("gateway_interaction_decode_failed", zap.Error(err))
			return
		}
		if g.handle == nil {
			return
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					obslog.L().Error("interaction_handler_panic", zap.Any("panic", r), zap.String("command", in.Data.Name))
				}
			}()
			g.handle(ctx, in)
		}()
	}
}

func (g *Gateway) clearSession() {
	g.sessionID = ""
	g.resumeURL = ""
	g.seq.Store(0)
}

// classify turns close codes into fatal errors or session resets.
func (g *Gateway) classify(err error) error {
	code := websocket.CloseStatus(err)
	switch code {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		var ce websocket.CloseError
		reason := ""
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
		return &FatalError{Code: code, Reason: reason}
	case 4007, 4009:
		g.clearSession()
	}
	return err
}

func withQuery(u string) string {
	if strings.Contains(u, "?") {
		return u
	}
	return strings.TrimRight(u, "/") + "/?v=10&encoding=json"
}
