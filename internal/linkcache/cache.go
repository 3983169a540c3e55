package linkcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/obslog"
)

const (
	defaultTTL  = 10 * time.Minute
	negativeTTL = 30 * time.Second
	unlinked    = "-"
)

// Source is the authoritative account store.
type Source interface {
	Get(ctx context.Context, discordID string) (*domain.Player, error)
	Link(ctx context.Context, discordID, steamID string) (*domain.Player, error)
	Unlink(ctx context.Context, discordID string) (bool, error)
}

// Cache resolves chat accounts to Steam ids with a Redis read-through layer.
// Redis failures fall back to the source.
type Cache struct {
	rdb *redis.Client
	src Source
	ttl time.Duration
}

func New(rdb *redis.Client, src Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, src: src, ttl: ttl}
}

// NewClient connects to REDIS_URL and pings it.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for link cache")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func keyLink(discordID string) string { return "link:discord:" + strings.TrimSpace(discordID) }

// SteamID returns the linked Steam id or "" when the account is not linked.
func (c *Cache) SteamID(ctx context.Context, discordID string) (string, error) {
	if c.rdb != nil {
		v, err := c.rdb.Get(ctx, keyLink(discordID)).Result()
		switch {
		case err == nil:
			if v == unlinked {
				return "", nil
			}
			return v, nil
		case errors.Is(err, redis.Nil):
		default:
			obslog.L().Warn("link_cache_get_failed", zap.String("discord_id", discordID), zap.Error(err))
		}
	}

	p, err := c.src.Get(ctx, discordID)
	if err != nil {
		return "", err
	}
	steamID := ""
	if p.Linked() {
		steamID = p.SteamID
	}
	c.store(ctx, discordID, steamID)
	return steamID, nil
}

func (c *Cache) Link(ctx context.Context, discordID, steamID string) (*domain.Player, error) {
	p, err := c.src.Link(ctx, discordID, steamID)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, discordID)
	return p, nil
}

func (c *Cache) Unlink(ctx context.Context, discordID string) (bool, error) {
	ok, err := c.src.Unlink(ctx, discordID)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, discordID)
	return ok, nil
}

func (c *Cache) store(ctx context.Context, discordID, steamID string) {
	if c.rdb == nil {
		return
	}
	val, ttl := steamID, c.ttl
	if steamID == "" {
		val, ttl = unlinked, negativeTTL
	}
	if err := c.rdb.Set(ctx, keyLink(discordID), val, ttl).Err(); err != nil {
		obslog.L().Warn("link_cache_set_failed", zap.String("discord_id", discordID), zap.Error(err))
	}
}

func (c *Cache) invalidate(ctx context.Context, discordID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, keyLink(discordID)).Err(); err != nil {
		obslog.L().Warn("link_cache_del_failed", zap.String("discord_id", discordID), zap.Error(err))
	}
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
