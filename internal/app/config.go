package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the learnhub server.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Reminders     RemindersConfig     `mapstructure:"reminders"`
	Features      FeatureConfig       `mapstructure:"features"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
}

// RealtimeConfig configures the websocket hub.
type RealtimeConfig struct {
	// AllowedOrigins lists browser origins, besides the server's own host,
	// that may open a realtime connection.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SendBuffer     int      `mapstructure:"send_buffer"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	// WriteRateLimit caps authoring requests per caller and route each
	// minute; zero disables the limit.
	WriteRateLimit int `mapstructure:"write_rate_limit"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	Path         string        `mapstructure:"path"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	SlowQuery    time.Duration `mapstructure:"slow_query"`
	Postgres     DBAuthConfig  `mapstructure:"postgres"`
	MySQL        DBAuthConfig  `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// CacheConfig describes the durable key-value backend. The database store is
// used unless Redis is enabled.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures viewer identity settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// NotificationsConfig tunes the notification service and its retention job.
type NotificationsConfig struct {
	PageSize        int    `mapstructure:"page_size"`
	RetentionDays   int    `mapstructure:"retention_days"`
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
	FeedBuffer      int    `mapstructure:"feed_buffer"`
}

// RemindersConfig tunes the reminder catalogue.
type RemindersConfig struct {
	HideExpired bool `mapstructure:"hide_expired"`
}

// FeatureConfig toggles optional behaviour.
type FeatureConfig struct {
	FallbackData FallbackDataConfig `mapstructure:"fallback_data"`
}

// FallbackDataConfig controls substitution of demonstration data when live
// data cannot be fetched.
type FallbackDataConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig schedules housekeeping jobs.
type MaintenanceConfig struct {
	CacheSchedule string `mapstructure:"cache_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible
// defaults. configFile, when set, takes precedence over the search paths.
func LoadConfig(configFile string, paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath("./config")
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("LEARNHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.write_rate_limit", 60)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/learnhub.sqlite")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.slow_query", "200ms")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "learnhub")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("notifications.page_size", 20)
	v.SetDefault("notifications.retention_days", 30)
	v.SetDefault("notifications.cleanup_schedule", "@daily")
	v.SetDefault("notifications.feed_buffer", 64)

	v.SetDefault("reminders.hide_expired", false)

	v.SetDefault("features.fallback_data.enabled", false)

	v.SetDefault("maintenance.cache_schedule", "@hourly")

	v.SetDefault("realtime.allowed_origins", []string{})
	v.SetDefault("realtime.send_buffer", 64)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
