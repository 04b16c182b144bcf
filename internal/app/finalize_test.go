package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeGeneratesSigningSecret(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 8000}}

	generated, err := cfg.Finalize()
	require.NoError(t, err)
	require.Equal(t, []string{KeyJWTSecret}, generated)
	require.Len(t, cfg.Auth.JWT.Secret, signingKeyBytes*2)

	require.Equal(t, defaultPageSize, cfg.Notifications.PageSize)
	require.Equal(t, defaultRetention, cfg.Notifications.RetentionDays)
	require.Equal(t, defaultFeedBuffer, cfg.Notifications.FeedBuffer)
	require.Equal(t, defaultFeedBuffer, cfg.Realtime.SendBuffer)
}

func TestFinalizeKeepsConfiguredSecret(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 8000}}
	cfg.Auth.JWT.Secret = "  configured  "
	cfg.Notifications.PageSize = 5

	generated, err := cfg.Finalize()
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, "configured", cfg.Auth.JWT.Secret)
	require.Equal(t, 5, cfg.Notifications.PageSize)
}

func TestFinalizeReportsEveryProblem(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 70000}}
	cfg.Auth.JWT.Secret = "s"
	cfg.Notifications.CleanupSchedule = "every tuesday"
	cfg.Maintenance.CacheSchedule = "@hourly"

	_, err := cfg.Finalize()
	require.Error(t, err)
	require.Contains(t, err.Error(), "server.port 70000")
	require.Contains(t, err.Error(), "notifications.cleanup_schedule")
	require.NotContains(t, err.Error(), "maintenance.cache_schedule")
}

func TestFinalizeNilConfig(t *testing.T) {
	var cfg *Config
	_, err := cfg.Finalize()
	require.Error(t, err)
}
