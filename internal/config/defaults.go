package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	// Listeners
	v.SetDefault("listen", ":9999")
	v.SetDefault("admin", ":9100")
	v.SetDefault("read_header_timeout", "10s")
	v.SetDefault("shutdown_grace", "10s")
	v.SetDefault("trust_proxy", false)

	// Sessions
	v.SetDefault("session_ttl", "60s")
	v.SetDefault("create_body_limit", 1<<20)

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Rate limiting, off unless a rate is set
	v.SetDefault("ratelimit.global_requests", 0)
	v.SetDefault("ratelimit.client_requests", 0)
	v.SetDefault("ratelimit.global_connections", 0)
	v.SetDefault("ratelimit.client_connections", 0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.idle", "10m")
	v.SetDefault("cleanup_interval", "1m")

	// Event sink
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "rendezvous:events")
}
