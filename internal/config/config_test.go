package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T) (*Config, *pflag.FlagSet) {
	t.Helper()
	cfg := &Config{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs, viper.New())
	return cfg, fs
}

func TestDefaults(t *testing.T) {
	cfg, _ := register(t)

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 3, cfg.CountdownSeconds)
	require.Equal(t, 2, cfg.PostGameGraceSeconds)
	require.Equal(t, 4, cfg.CodeLength)
	require.Equal(t, 2, cfg.MaxPlayers)
	require.Equal(t, 30, cfg.QueueETASeconds)
	require.Empty(t, cfg.RedisAddr)
	require.Empty(t, cfg.DatabaseURL)
	require.NoError(t, cfg.Validate())
}

func TestEnvironmentFallback(t *testing.T) {
	t.Setenv("COUNTDOWN_SECONDS", "5")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, _ := register(t)
	require.Equal(t, 5, cfg.CountdownSeconds)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestFlagBeatsEnvironment(t *testing.T) {
	t.Setenv("COUNTDOWN_SECONDS", "5")

	cfg := &Config{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs, viper.New())
	require.NoError(t, fs.Parse([]string{"--countdown-seconds", "7"}))
	require.Equal(t, 7, cfg.CountdownSeconds)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, _ := register(t)

	cfg.CountdownSeconds = 0
	require.Error(t, cfg.Validate())

	cfg.CountdownSeconds = 3
	cfg.MaxPlayers = 4
	require.Error(t, cfg.Validate())
}
