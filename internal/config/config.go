package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	WS    WSConfig    `mapstructure:"ws"`
	Relay RelayConfig `mapstructure:"relay"`
	Store StoreConfig `mapstructure:"store"`
}

// WSConfig tunes the duplex transport.
type WSConfig struct {
	Path       string        `mapstructure:"path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type RelayConfig struct {
	KickSlowPeers    bool          `mapstructure:"kick_slow_peers"`
	ChatRateLimit    int           `mapstructure:"chat_rate_limit"`
	ChatRateInterval time.Duration `mapstructure:"chat_rate_interval"`
	PersistTimeout   time.Duration `mapstructure:"persist_timeout"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")

	v.SetDefault("ws.path", "/ws")
	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "5s")
	v.SetDefault("ws.send_buffer", 64)

	v.SetDefault("relay.kick_slow_peers", false)
	v.SetDefault("relay.chat_rate_limit", 10)
	v.SetDefault("relay.chat_rate_interval", "10s")
	v.SetDefault("relay.persist_timeout", "5s")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "./watchparty.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty.
// A missing file falls back to defaults; WATCHPARTY_* variables override
// both (WATCHPARTY_WS_PING_PERIOD sets ws.ping_period).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	setDefaults(v)
	v.SetEnvPrefix("watchparty")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.WS.Path, "/") {
		return fmt.Errorf("config: ws.path %q must start with /", c.WS.Path)
	}
	if c.WS.PingPeriod >= c.WS.PongWait {
		return fmt.Errorf("config: ws.ping_period (%s) must be shorter than ws.pong_wait (%s)", c.WS.PingPeriod, c.WS.PongWait)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("config: ws.send_buffer must be positive")
	}
	return nil
}
