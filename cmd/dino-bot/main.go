package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/isle-dino-bot/internal/bot"
	"github.com/park285/isle-dino-bot/internal/catalog"
	"github.com/park285/isle-dino-bot/internal/clicker"
	appcfg "github.com/park285/isle-dino-bot/internal/config"
	"github.com/park285/isle-dino-bot/internal/discord"
	"github.com/park285/isle-dino-bot/internal/gamestate"
	"github.com/park285/isle-dino-bot/internal/httpapi"
	"github.com/park285/isle-dino-bot/internal/linkcache"
	"github.com/park285/isle-dino-bot/internal/logwatch"
	"github.com/park285/isle-dino-bot/internal/msgcat"
	"github.com/park285/isle-dino-bot/internal/obslog"
	"github.com/park285/isle-dino-bot/internal/rcon"
	"github.com/park285/isle-dino-bot/internal/savesync"
	dinosvc "github.com/park285/isle-dino-bot/internal/service/dino"
	"github.com/park285/isle-dino-bot/internal/slots"
	"github.com/park285/isle-dino-bot/internal/store"
	"github.com/park285/isle-dino-bot/internal/subscription"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		ToFile:  cfg.Log.ToFile,
		File:    cfg.Log.File,
		Format:  cfg.Log.Format,
		Caller:  cfg.Log.Caller,
	}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obslog.L().Error("bot_exited", zap.Error(err))
		_ = obslog.L().Sync()
		os.Exit(1)
	}
	obslog.L().Info("bot_stopped")
}

func run(ctx context.Context, cfg *appcfg.AppConfig) error {
	db, err := store.Open(ctx, cfg.DB.Driver, cfg.DB.URL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := connectRedis(ctx, cfg.Redis.URL)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	shop, err := catalog.Load(cfg.CatalogOverrideDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	texts, err := msgcat.New(cfg.MessagesOverrideDir)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	players := db.Players()
	dinos := db.Dinos()
	subs := db.Subscriptions()

	links := linkcache.New(rdb, players, cfg.Redis.LinkTTL)
	game := gamestate.New(
		rcon.New(cfg.RCON.Host, cfg.RCON.Port, cfg.RCON.Password, cfg.RCON.Timeout),
		clicker.New(cfg.Clicker.URL, cfg.Clicker.Username, cfg.Clicker.Password, cfg.Clicker.Timeout),
	)
	policy := slots.NewPolicy(cfg.Slots.Base, subs, dinos)

	rest := discord.NewREST(cfg.Discord.APIBase, cfg.Discord.Token, cfg.Discord.AppID)
	notifier := discord.NewNotifier(rest)

	reconciler := savesync.New(savesync.Deps{
		Links:   links,
		Slots:   policy,
		Game:    game,
		Pending: db.Pending(),
		Dinos:   dinos,
		Notify:  notifier,
		Texts:   texts,
	}, cfg.Save.StaleAfter)
	sweeper := savesync.NewSweeper(reconciler, cfg.Save.SweepInterval)

	subService := subscription.NewService(subs, shop, notifier, texts, cfg.Slots.SubscriptionNotice).
		WithRoles(discord.NewRoles(rest, cfg.Discord.GuildID))
	dinoService := dinosvc.NewService(dinosvc.Deps{
		Links:   links,
		Players: players,
		Dinos:   dinos,
		Slots:   policy,
		Subs:    subs,
		Game:    game,
		Shop:    shop,
	})

	router := bot.New(bot.Deps{
		REST:  rest,
		Saves: reconciler,
		Dinos: dinoService,
		Subs:  subService,
		Shop:  shop,
		Texts: texts,
	}, cfg.Discord.AdminIDs, cfg.Save.UITimeout)
	defer router.Close()

	regCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = rest.RegisterCommands(regCtx, cfg.Discord.GuildID, bot.Commands())
	cancel()
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}

	gateway := discord.NewGateway(cfg.Discord.GatewayURL, cfg.Discord.Token, discord.IntentGuilds, 0, router.Handle)
	gateway.OnStateChange(func(state discord.State) {
		obslog.L().Info("gateway_state", zap.String("state", state.String()))
	})

	watcher := logwatch.New(cfg.LogWatch.Path, reconciler.Reconcile, logwatch.Options{
		PollInterval: cfg.LogWatch.PollInterval,
		Workers:      cfg.LogWatch.Workers,
		QueueSize:    cfg.LogWatch.QueueSize,
		FromStart:    cfg.LogWatch.FromStart,
	})

	checks := map[string]httpapi.Check{"db": db.Ping}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	admin := httpapi.New(cfg.HTTPAddr, checks)

	obslog.L().Info("bot_starting",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("instance_mode", cfg.InstanceMode),
		zap.Bool("row_locks", db.RowLocks()),
		zap.Bool("redis", rdb != nil),
		zap.String("game_log", cfg.LogWatch.Path),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gateway.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return subService.Run(gctx, cfg.Slots.SubscriptionCheck) })
	g.Go(func() error { return admin.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// connectRedis returns nil when REDIS_URL is unset or unreachable. The link
// cache then reads the store directly.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	rdb, err := linkcache.NewClient(ctx, url)
	if err != nil {
		obslog.L().Warn("redis_unavailable", zap.Error(err))
		return nil
	}
	return rdb
}
