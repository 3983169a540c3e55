package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type AppConfig struct {
	Discord  DiscordConfig
	DB       DBConfig
	Redis    RedisConfig
	RCON     RCONConfig
	Clicker  ClickerConfig
	LogWatch LogWatchConfig
	Save     SaveConfig
	Slots    SlotsConfig
	Log      LogConfig

	HTTPAddr            string `envconfig:"HTTP_ADDR" default:":9090"`
	CatalogOverrideDir  string `envconfig:"CATALOG_OVERRIDE_DIR"`
	MessagesOverrideDir string `envconfig:"MESSAGES_OVERRIDE_DIR"`

	// InstanceMode is "single" or "multi". Only postgres may run multi.
	InstanceMode string `envconfig:"BOT_INSTANCE_MODE" default:"single"`
}

type DiscordConfig struct {
	Token      string   `envconfig:"DISCORD_TOKEN"`
	AppID      string   `envconfig:"DISCORD_APP_ID"`
	GuildID    string   `envconfig:"DISCORD_GUILD_ID"`
	APIBase    string   `envconfig:"DISCORD_API_BASE" default:"https://discord.com/api/v10"`
	GatewayURL string   `envconfig:"DISCORD_GATEWAY_URL" default:"wss://gateway.discord.gg"`
	AdminIDs   []string `envconfig:"ADMIN_IDS"`
}

type DBConfig struct {
	Driver string `envconfig:"DB_DRIVER" default:"postgres"`
	URL    string `envconfig:"DATABASE_URL"`
}

type RedisConfig struct {
	URL     string        `envconfig:"REDIS_URL"`
	LinkTTL time.Duration `envconfig:"LINK_CACHE_TTL" default:"10m"`
}

type RCONConfig struct {
	Host     string        `envconfig:"RCON_HOST"`
	Port     int           `envconfig:"RCON_PORT" default:"8888"`
	Password string        `envconfig:"RCON_PASSWORD"`
	Timeout  time.Duration `envconfig:"RCON_TIMEOUT" default:"5s"`
}

type ClickerConfig struct {
	URL      string        `envconfig:"CLICKER_API_URL"`
	Username string        `envconfig:"CLICKER_USERNAME"`
	Password string        `envconfig:"CLICKER_PASSWORD"`
	Timeout  time.Duration `envconfig:"CLICKER_TIMEOUT" default:"15s"`
}

type LogWatchConfig struct {
	Path         string        `envconfig:"GAME_LOG_PATH"`
	PollInterval time.Duration `envconfig:"LOGWATCH_POLL_INTERVAL" default:"2s"`
	Workers      int           `envconfig:"LOGWATCH_WORKERS" default:"4"`
	QueueSize    int           `envconfig:"LOGWATCH_QUEUE" default:"256"`
	FromStart    bool          `envconfig:"LOGWATCH_FROM_START" default:"false"`
}

type SaveConfig struct {
	StaleAfter    time.Duration `envconfig:"SAVE_STALE_AFTER" default:"2m"`
	UITimeout     time.Duration `envconfig:"SAVE_UI_TIMEOUT" default:"2m"`
	SweepInterval time.Duration `envconfig:"SAVE_SWEEP_INTERVAL" default:"1m"`
}

type SlotsConfig struct {
	Base               int           `envconfig:"BASE_DINO_SLOTS" default:"3"`
	SubscriptionCheck  time.Duration `envconfig:"SUBSCRIPTION_CHECK_INTERVAL" default:"1h"`
	SubscriptionNotice time.Duration `envconfig:"SUBSCRIPTION_NOTICE_WINDOW" default:"24h"`
}

type LogConfig struct {
	Level   string `envconfig:"LOG_LEVEL" default:"info"`
	Console bool   `envconfig:"LOG_TO_CONSOLE" default:"true"`
	ToFile  bool   `envconfig:"LOG_TO_FILE" default:"false"`
	File    string `envconfig:"LOG_FILE" default:"logs/bot.log"`
	Format  string `envconfig:"LOG_FORMAT" default:"legacy"`
	Caller  bool   `envconfig:"LOG_CALLER" default:"false"`
}

// Load reads .env files (the working directory's .env when none are given)
// and then the environment. Variables already set win over .env values.
func Load(envFiles ...string) (*AppConfig, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	c.Discord.AppID = strings.TrimSpace(c.Discord.AppID)
	c.Discord.GuildID = strings.TrimSpace(c.Discord.GuildID)
	c.Discord.APIBase = strings.TrimRight(strings.TrimSpace(c.Discord.APIBase), "/")
	c.Discord.GatewayURL = strings.TrimSpace(c.Discord.GatewayURL)

	admins := c.Discord.AdminIDs[:0]
	for _, id := range c.Discord.AdminIDs {
		if s := strings.TrimSpace(id); s != "" {
			admins = append(admins, s)
		}
	}
	c.Discord.AdminIDs = admins

	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	if c.DB.Driver == "postgresql" || c.DB.Driver == "pg" {
		c.DB.Driver = "postgres"
	}
	c.DB.URL = strings.TrimSpace(c.DB.URL)
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	c.RCON.Host = strings.TrimSpace(c.RCON.Host)
	c.Clicker.URL = strings.TrimSpace(c.Clicker.URL)
	c.LogWatch.Path = strings.TrimSpace(c.LogWatch.Path)
	c.InstanceMode = strings.ToLower(strings.TrimSpace(c.InstanceMode))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	if c.LogWatch.Workers <= 0 {
		c.LogWatch.Workers = 4
	}
	if c.LogWatch.QueueSize <= 0 {
		c.LogWatch.QueueSize = 256
	}
	if c.Slots.Base < 0 {
		c.Slots.Base = 0
	}
}

func (c *AppConfig) validate() error {
	required := []struct{ key, val string }{
		{"DISCORD_TOKEN", c.Discord.Token},
		{"DISCORD_APP_ID", c.Discord.AppID},
		{"DATABASE_URL", c.DB.URL},
		{"RCON_HOST", c.RCON.Host},
		{"RCON_PASSWORD", c.RCON.Password},
		{"CLICKER_API_URL", c.Clicker.URL},
		{"GAME_LOG_PATH", c.LogWatch.Path},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}

	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver)
	}
	switch c.InstanceMode {
	case "single":
	case "multi":
		if c.DB.Driver == "sqlite" {
			return errors.New("BOT_INSTANCE_MODE=multi requires DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("BOT_INSTANCE_MODE must be single or multi, got %q", c.InstanceMode)
	}
	if c.RCON.Port <= 0 || c.RCON.Port > 65535 {
		return fmt.Errorf("RCON_PORT out of range: %d", c.RCON.Port)
	}
	if c.Save.StaleAfter <= 0 || c.Save.UITimeout <= 0 || c.Save.SweepInterval <= 0 {
		return errors.New("SAVE_STALE_AFTER, SAVE_UI_TIMEOUT and SAVE_SWEEP_INTERVAL must be positive")
	}
	return nil
}
