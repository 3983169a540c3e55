package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("DISCORD_APP_ID", "app")
	t.Setenv("DATABASE_URL", "postgres://bot@localhost/bot?sslmode=disable")
	t.Setenv("RCON_HOST", "127.0.0.1")
	t.Setenv("RCON_PASSWORD", "secret")
	t.Setenv("CLICKER_API_URL", "127.0.0.1:5000")
	t.Setenv("GAME_LOG_PATH", "/srv/isle/TheIsle.log")
}

func missingEnv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "none.env")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_IDS", " 1, 2 ,,3")

	cfg, err := Load(missingEnv(t))
	if err != nil { t.Fatalf("Load: %v", err) }
	if cfg.DB.Driver != "postgres" || cfg.InstanceMode != "single" { t.Fatalf("driver/mode = %s/%s", cfg.DB.Driver, cfg.InstanceMode) }
	if cfg.Save.StaleAfter != 2*time.Minute || cfg.Save.UITimeout != 2*time.Minute || cfg.Save.SweepInterval != time.Minute {
		t.Fatalf("save = %+v", cfg.Save)
	}
	if cfg.RCON.Port != 8888 || cfg.LogWatch.Workers != 4 || cfg.Slots.Base != 3 { t.Fatalf("cfg = %+v", cfg) }
	if strings.Join(cfg.Discord.AdminIDs, "|") != "1|2|3" { t.Fatalf("admins = %q", cfg.Discord.AdminIDs) }
}

func TestLoadRequiresToken(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_TOKEN", " ")
	if _, err := Load(missingEnv(t)); err == nil || !strings.Contains(err.Error(), "DISCORD_TOKEN") { t.Fatalf("err = %v", err) }
}

func TestSQLiteRefusesMultiInstance(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("BOT_INSTANCE_MODE", "multi")
	if _, err := Load(missingEnv(t)); err == nil { t.Fatal("expected error for sqlite multi") }

	t.Setenv("BOT_INSTANCE_MODE", "single")
	cfg, err := Load(missingEnv(t))
	if err != nil || cfg.DB.Driver != "sqlite" { t.Fatalf("Load = %+v, %v", cfg, err) }
}

func TestLoadReadsEnvFile(t *testing.T) {
	setRequired(t)
	os.Unsetenv("SAVE_UI_TIMEOUT")
	path := filepath.Join(t.TempDir(), "bot.env")
	if err := os.WriteFile(path, []byte("SAVE_UI_TIMEOUT=90s\nDB_DRIVER=pg\n"), 0o644); err != nil { t.Fatal(err) }
	t.Cleanup(func() { os.Unsetenv("SAVE_UI_TIMEOUT"); os.Unsetenv("DB_DRIVER") })

	cfg, err := Load(path)
	if err != nil { t.Fatalf("Load: %v", err) }
	if cfg.Save.UITimeout != 90*time.Second || cfg.DB.Driver != "postgres" { t.Fatalf("cfg = %+v / %s", cfg.Save, cfg.DB.Driver) }
}

func TestUnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "mysql")
	if _, err := Load(missingEnv(t)); err == nil { t.Fatal("expected error for mysql") }
}
