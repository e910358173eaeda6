package main

import (
	"flag"
	"time"

	"github.com/matst80/rendezvous/internal/config"
)

// flags holds command line overrides. They only replace values loaded by
// config.Load when given explicitly.
type flags struct {
	ConfigFile string
	Listen     string
	Admin      string
	TTL        time.Duration
	Debug      bool
	Redis      string
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, error) {
	var f flags
	fs.StringVar(&f.ConfigFile, "config", "", "optional config file (yaml, json, toml)")
	fs.StringVar(&f.Listen, "listen", ":9999", "broker listen address")
	fs.StringVar(&f.Admin, "admin", ":9100", "metrics, health and dashboard listen address (empty disables)")
	fs.DurationVar(&f.TTL, "ttl", 60*time.Second, "session pairing timeout and reap grace period")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug logs")
	fs.StringVar(&f.Redis, "redis", "", "redis address for lifecycle events")
	err := fs.Parse(args)
	return f, err
}

// apply copies every flag set on the command line onto cfg. -debug is
// handled by obs.EnableDebug after logging is configured.
func (f flags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "listen":
			cfg.Listen = f.Listen
		case "admin":
			cfg.Admin = f.Admin
		case "ttl":
			cfg.SessionTTL = f.TTL
		case "redis":
			cfg.Redis.Addr = f.Redis
		}
	})
}

func loadConfig(args []string) (*config.Config, flags, error) {
	fs := flag.NewFlagSet("rendezvous", flag.ContinueOnError)
	f, err := parseFlags(fs, args)
	if err != nil {
		return nil, f, err
	}
	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		return nil, f, err
	}
	f.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, f, err
	}
	return cfg, f, nil
}
