package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/matst80/rendezvous/internal/proto"
)

// Config holds client runtime configuration.
type Config struct {
	Server string
	Debug  bool
}

// parseGlobal reads the flags preceding the subcommand. RENDEZVOUS_SERVER
// supplies the default server URL.
func parseGlobal(args []string) (Config, []string, error) {
	var cfg Config
	server := os.Getenv("RENDEZVOUS_SERVER")
	if server == "" {
		server = "http://127.0.0.1:9999"
	}
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&cfg.Server, "server", server, "broker base URL")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logs")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: client [-server URL] <create|send|recv|status|list|fail> [args]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	return cfg, fs.Args(), nil
}

// headerFlag collects repeated -header name=value flags.
type headerFlag proto.HeaderSet

func (h headerFlag) String() string {
	pairs := make([]string, 0, len(h))
	for k, v := range h {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (h headerFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("header %q: want name=value", s)
	}
	h[name] = value
	return nil
}
