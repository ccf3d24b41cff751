package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"BOT_TOKEN":           "123:abc",
		"DATABASE_URL":        "postgres://localhost/parking",
		"ADMIN_ID":            "7",
		"ADMIN_IDS":           "9, 7,8",
		"MODERATOR_IDS":       "11",
		"RATE_LIMIT_MESSAGES": "5",
		"RATE_LIMIT_PERIOD":   "30",
		"PORT":                "9000",
	}))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, []int64{7, 8, 9}, cfg.Bot.AdminIDs)
	assert.Equal(t, []int64{11}, cfg.Bot.ModeratorIDs)
	assert.Equal(t, 5, cfg.Bot.RateLimitMessages)
	assert.Equal(t, 30*time.Second, cfg.Bot.RateLimitWindow())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/parking", cfg.Database.DSN())
	assert.Equal(t, "123:abc", cfg.JWT.Secret, "JWT secret falls back to the bot token")
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	assert.Error(t, Default().applyEnv(envMap(map[string]string{"ADMIN_IDS": "1,x"})))
	assert.Error(t, Default().applyEnv(envMap(map[string]string{"RATE_LIMIT_MESSAGES": "ten"})))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.EqualError(t, cfg.Validate(), "BOT_TOKEN is required")

	cfg.Bot.Token = "t"
	assert.EqualError(t, cfg.Validate(), "DATABASE_URL is required")

	cfg.Database.URL = "postgres://x"
	require.NoError(t, cfg.Validate())

	cfg.Bot.RateLimitMessages = 0
	assert.Error(t, cfg.Validate())
	cfg.Bot.RateLimitMessages = 10

	cfg.APNs.KeyFile = "key.p8"
	assert.Error(t, cfg.Validate())
}

func TestDSNFromParts(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "parking", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=parking sslmode=disable", db.DSN())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 8081
database:
  url: postgres://file/parking
bot:
  token: from-file
  username: parking_bot
  admin_ids: [1]
redis:
  state_ttl: 2h
cron:
  reminders: "@every 30s"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("ADMIN_IDS", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Bot.Token)
	assert.Equal(t, []int64{1, 2}, cfg.Bot.AdminIDs)
	assert.Equal(t, 2*time.Hour, cfg.Redis.StateTTL)
	assert.Equal(t, "@every 30s", cfg.Cron.Reminders)
	assert.Equal(t, "@every 1h", cfg.Cron.GuestPasses)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("DATABASE_URL", "postgres://env/parking")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Bot.Token)
	assert.Equal(t, 8080, cfg.Server.Port)
}
