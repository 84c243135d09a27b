// Package config holds the process configuration for the lobby
// coordinator and the historian. Values come from command-line flags
// with environment-variable fallbacks, so both
// `lobby-server --countdown-seconds 5` and COUNTDOWN_SECONDS=5 work.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full tunable surface of the coordinator process.
type Config struct {
	HTTPAddr       string
	AllowedOrigins []string
	LogLevel       string

	CountdownSeconds     int
	PostGameGraceSeconds int
	CodeLength           int
	MaxPlayers           int
	QueueETASeconds      int

	// Optional collaborators. Empty means the corresponding capability
	// runs in-memory (persistence, player directory) or logs locally
	// (event sink).
	DatabaseURL    string
	RedisAddr      string
	RedisDB        int
	EventQueueName string

	// Historian tunables, read by the historian process only.
	HistorianBatchSize int
	HistorianFlushMS   int
}

// Validate rejects configurations the coordinator cannot run with.
func (c *Config) Validate() error {
	if c.CountdownSeconds < 1 {
		return fmt.Errorf("invalid countdown-seconds (must be >= 1): %d", c.CountdownSeconds)
	}
	if c.PostGameGraceSeconds < 0 {
		return fmt.Errorf("invalid post-game-grace-seconds (must be >= 0): %d", c.PostGameGraceSeconds)
	}
	if c.CodeLength < 1 {
		return fmt.Errorf("invalid code-length (must be >= 1): %d", c.CodeLength)
	}
	if c.MaxPlayers != 2 {
		return errors.New("max-players is fixed at 2")
	}
	if c.QueueETASeconds < 1 {
		return fmt.Errorf("invalid queue-eta-seconds (must be >= 1): %d", c.QueueETASeconds)
	}
	return nil
}

// RegisterFlags declares every flag on fs and binds each one to its
// environment fallback through v. Flags explicitly set on the command
// line win over the environment.
func (c *Config) RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.StringVar(&c.HTTPAddr, "http-addr", ":8080", "address to serve HTTP on (env: HTTP_ADDR)")
	fs.StringSliceVar(&c.AllowedOrigins, "allowed-origins", []string{"https://*", "http://*"}, "CORS allowed origins (env: ALLOWED_ORIGINS)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "logrus level: debug, info, warn, error (env: LOG_LEVEL)")

	fs.IntVar(&c.CountdownSeconds, "countdown-seconds", 3, "pre-game countdown length in seconds (env: COUNTDOWN_SECONDS)")
	fs.IntVar(&c.PostGameGraceSeconds, "post-game-grace-seconds", 2, "seconds a started lobby lingers before deletion (env: POST_GAME_GRACE_SECONDS)")
	fs.IntVar(&c.CodeLength, "code-length", 4, "invite code length (env: CODE_LENGTH)")
	fs.IntVar(&c.MaxPlayers, "max-players", 2, "seats per lobby (env: MAX_PLAYERS)")
	fs.IntVar(&c.QueueETASeconds, "queue-eta-seconds", 30, "estimated matchmaking wait reported to queued players (env: QUEUE_ETA_SECONDS)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres connection string; empty disables persistence (env: DATABASE_URL)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis address; empty disables the redis event sink (env: REDIS_ADDR)")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database index (env: REDIS_DB)")
	fs.StringVar(&c.EventQueueName, "event-queue-name", "lobby_events", "redis list the event sink pushes onto (env: EVENT_QUEUE_NAME)")

	fs.IntVar(&c.HistorianBatchSize, "historian-batch-size", 20, "events per historian insert batch (env: HISTORIAN_BATCH_SIZE)")
	fs.IntVar(&c.HistorianFlushMS, "historian-flush-ms", 500, "historian flush interval in milliseconds (env: HISTORIAN_FLUSH_MS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}
