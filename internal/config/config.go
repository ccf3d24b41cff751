package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Bot      BotConfig      `yaml:"bot"`
	Redis    RedisConfig    `yaml:"redis"`
	AWS      AWSConfig      `yaml:"aws"`
	APNs     APNsConfig     `yaml:"apns"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Cron     CronConfig     `yaml:"cron"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration. URL wins over the parts.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// BotConfig holds the chat bot settings
type BotConfig struct {
	Token             string  `yaml:"token"`
	Username          string  `yaml:"username"`
	AdminIDs          []int64 `yaml:"admin_ids"`
	ModeratorIDs      []int64 `yaml:"moderator_ids"`
	RateLimitMessages int     `yaml:"rate_limit_messages"`
	// RateLimitPeriod is in seconds
	RateLimitPeriod int `yaml:"rate_limit_period"`
}

// RedisConfig holds the dialogue state store settings. An empty URL keeps
// states in memory.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	StateTTL time.Duration `yaml:"state_ttl"`
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// APNsConfig holds push notification settings
type APNsConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// CronConfig holds the schedules of the background jobs
type CronConfig struct {
	GuestPasses string `yaml:"guest_passes"`
	FreeSpots   string `yaml:"free_spots"`
	Reminders   string `yaml:"reminders"`
	Backup      string `yaml:"backup"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"},
		Bot: BotConfig{
			RateLimitMessages: 10,
			RateLimitPeriod:   60,
		},
		Redis: RedisConfig{StateTTL: 24 * time.Hour},
		AWS:   AWSConfig{Region: "us-east-1"},
		Log:   LogConfig{Level: "info"},
		Cron: CronConfig{
			GuestPasses: "@every 1h",
			FreeSpots:   "@every 1h",
			Reminders:   "@every 1m",
			Backup:      "@every 720h",
		},
	}
}

// Load reads configuration from an optional YAML file, then applies .env and
// environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	ids := func(key string, dst *[]int64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		parsed, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = append(*dst, parsed...)
		return nil
	}

	str("BOT_TOKEN", &c.Bot.Token)
	str("BOT_USERNAME", &c.Bot.Username)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("JWT_SECRET", &c.JWT.Secret)
	str("LOG_LEVEL", &c.Log.Level)
	str("S3_BUCKET", &c.AWS.S3Bucket)
	str("S3_REGION", &c.AWS.Region)
	str("S3_ENDPOINT", &c.AWS.Endpoint)
	str("S3_ACCESS_KEY", &c.AWS.AccessKey)
	str("S3_SECRET_KEY", &c.AWS.SecretKey)
	str("APNS_KEY_FILE", &c.APNs.KeyFile)
	str("APNS_KEY_ID", &c.APNs.KeyID)
	str("APNS_TEAM_ID", &c.APNs.TeamID)
	str("APNS_TOPIC", &c.APNs.Topic)
	str("CRON_BACKUP", &c.Cron.Backup)
	str("CRON_REMINDERS", &c.Cron.Reminders)

	for _, f := range []func() error{
		func() error { return num("PORT", &c.Server.Port) },
		func() error { return num("RATE_LIMIT_MESSAGES", &c.Bot.RateLimitMessages) },
		func() error { return num("RATE_LIMIT_PERIOD", &c.Bot.RateLimitPeriod) },
		func() error { return ids("ADMIN_ID", &c.Bot.AdminIDs) },
		func() error { return ids("ADMIN_IDS", &c.Bot.AdminIDs) },
		func() error { return ids("MODERATOR_IDS", &c.Bot.ModeratorIDs) },
	} {
		if err := f(); err != nil {
			return err
		}
	}

	slices.Sort(c.Bot.AdminIDs)
	c.Bot.AdminIDs = slices.Compact(c.Bot.AdminIDs)
	slices.Sort(c.Bot.ModeratorIDs)
	c.Bot.ModeratorIDs = slices.Compact(c.Bot.ModeratorIDs)

	if c.JWT.Secret == "" {
		c.JWT.Secret = c.Bot.Token
	}
	return nil
}

// Validate checks the settings nothing can start without
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if c.Database.URL == "" && c.Database.DBName == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Bot.RateLimitMessages <= 0 || c.Bot.RateLimitPeriod <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	if c.AWS.S3Bucket != "" && c.AWS.Region == "" {
		return errors.New("S3_REGION is required with S3_BUCKET")
	}
	if c.APNs.KeyFile != "" && (c.APNs.KeyID == "" || c.APNs.TeamID == "" || c.APNs.Topic == "") {
		return errors.New("APNS_KEY_ID, APNS_TEAM_ID and APNS_TOPIC are required with APNS_KEY_FILE")
	}
	return nil
}

// RateLimitWindow returns the rate limit period as a duration
func (c *BotConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitPeriod) * time.Second
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
