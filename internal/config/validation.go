package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must be set")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	if c.CreateBodyLimit <= 0 {
		return errors.New("create_body_limit must be positive")
	}
	if c.ShutdownGrace < 0 {
		return errors.New("shutdown_grace must not be negative")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return errors.Errorf("invalid log format: %s. Must be 'json' or 'text'", c.Log.Format)
	}

	r := c.RateLimit
	if r.GlobalRequests < 0 || r.ClientRequests < 0 || r.GlobalConnections < 0 || r.ClientConnections < 0 {
		return errors.New("rate limits must not be negative")
	}
	if r.Enabled() {
		if r.Burst < 1 {
			return errors.New("ratelimit.burst must be positive when rate limiting is enabled")
		}
		if c.CleanupInterval <= 0 || r.Idle <= 0 {
			return errors.New("cleanup_interval and ratelimit.idle must be positive when rate limiting is enabled")
		}
	}

	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return errors.New("redis.channel must be set when redis.addr is configured")
	}
	return nil
}
