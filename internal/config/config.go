package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "RENDEZVOUS"

type Config struct {
	Listen            string        `mapstructure:"listen"`
	Admin             string        `mapstructure:"admin"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	CreateBodyLimit   int64         `mapstructure:"create_body_limit"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	TrustProxy        bool          `mapstructure:"trust_proxy"`
	Log               LogConfig     `mapstructure:"log"`
	RateLimit         RateConfig    `mapstructure:"ratelimit"`
	Redis             RedisConfig   `mapstructure:"redis"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateConfig rates are tokens per second, zero disables the limit.
type RateConfig struct {
	GlobalRequests    int           `mapstructure:"global_requests"`
	ClientRequests    int           `mapstructure:"client_requests"`
	GlobalConnections int           `mapstructure:"global_connections"`
	ClientConnections int           `mapstructure:"client_connections"`
	Burst             int           `mapstructure:"burst"`
	Idle              time.Duration `mapstructure:"idle"`
}

func (r RateConfig) Enabled() bool {
	return r.GlobalRequests > 0 || r.ClientRequests > 0 || r.GlobalConnections > 0 || r.ClientConnections > 0
}

// RedisConfig configures the lifecycle event sink; an empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Load layers defaults, the optional config file at path and RENDEZVOUS_*
// environment variables, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}
