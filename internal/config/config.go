// Package config loads server settings from the environment, an optional .env
// file and an optional YAML file named by CONFIG_FILE. Environment variables
// win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FeedConfig struct {
	DefaultLimit  int           `yaml:"default_limit"`
	MaxLimit      int           `yaml:"max_limit"`
	CountCacheTTL time.Duration `yaml:"count_cache_ttl"`
	LikeRateLimit int           `yaml:"like_rate_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Port           string         `yaml:"port"`
	JWTSecret      string         `yaml:"jwt_secret"`
	AllowedOrigins string         `yaml:"allowed_origins"`
	CSRFMode       string         `yaml:"csrf_mode"`
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	Feed           FeedConfig     `yaml:"feed"`
	Log            LogConfig      `yaml:"log"`
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

func Default() *Config {
	return &Config{
		Port:     "8080",
		CSRFMode: "off",
		Database: DatabaseConfig{
			Host:    "localhost",
			User:    "postgres",
			Name:    "feed",
			Port:    "5432",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Feed: FeedConfig{
			DefaultLimit:  20,
			MaxLimit:      50,
			CountCacheTTL: 30 * time.Second,
			LikeRateLimit: 60,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the process
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("PORT", &c.Port)
	setString("JWT_SECRET", &c.JWTSecret)
	setString("ALLOWED_ORIGINS", &c.AllowedOrigins)
	setString("CSRF_MODE", &c.CSRFMode)

	setString("DB_HOST", &c.Database.Host)
	setString("DB_USER", &c.Database.User)
	setString("DB_PASSWORD", &c.Database.Password)
	setString("DB_NAME", &c.Database.Name)
	setString("DB_PORT", &c.Database.Port)
	setString("DB_SSLMODE", &c.Database.SSLMode)

	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setInt("REDIS_DB", &c.Redis.DB)

	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)

	setInt("FEED_DEFAULT_LIMIT", &c.Feed.DefaultLimit)
	setInt("FEED_MAX_LIMIT", &c.Feed.MaxLimit)
	setInt("LIKE_RATE_LIMIT", &c.Feed.LikeRateLimit)
	if v := strings.TrimSpace(getenv("COUNT_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Feed.CountCacheTTL = d
		}
	}
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Feed.MaxLimit <= 0 {
		return fmt.Errorf("feed max_limit must be positive, got %d", c.Feed.MaxLimit)
	}
	if c.Feed.DefaultLimit <= 0 || c.Feed.DefaultLimit > c.Feed.MaxLimit {
		return fmt.Errorf("feed default_limit must be in [1, %d], got %d", c.Feed.MaxLimit, c.Feed.DefaultLimit)
	}
	switch strings.ToLower(c.CSRFMode) {
	case "", "off", "origin", "token":
	default:
		return fmt.Errorf("unknown CSRF_MODE %q", c.CSRFMode)
	}
	return nil
}

// RedisEnabled is false when REDIS_ADDR is explicitly set to "off".
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != "" && !strings.EqualFold(c.Redis.Addr, "off")
}
