package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/matst80/rendezvous/internal/api"
	"github.com/matst80/rendezvous/internal/config"
	"github.com/matst80/rendezvous/internal/events"
	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/ratelimit"
	"github.com/matst80/rendezvous/internal/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		obs.Error("server.exit", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, f, err := loadConfig(args)
	if err != nil {
		return err
	}
	if err := obs.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	obs.EnableDebug(f.Debug)
	obs.Info("server.start", obs.Fields{"listen": cfg.Listen, "admin": cfg.Admin, "ttl": cfg.SessionTTL.String(), "redis": cfg.Redis.Addr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	reg := session.NewRegistry(
		session.WithTTL(cfg.SessionTTL),
		session.WithLogger(obs.Logger().WithField("component", "session")),
		session.WithSink(sink),
	)

	opts := []api.Option{
		api.WithLogger(obs.Logger().WithField("component", "api")),
		api.WithBodyLimit(cfg.CreateBodyLimit),
		api.WithTrustProxy(cfg.TrustProxy),
	}
	if cfg.RateLimit.Enabled() {
		rl := ratelimit.New(ratelimit.Config{
			GlobalRequests:    cfg.RateLimit.GlobalRequests,
			ClientRequests:    cfg.RateLimit.ClientRequests,
			GlobalConnections: cfg.RateLimit.GlobalConnections,
			ClientConnections: cfg.RateLimit.ClientConnections,
			Burst:             cfg.RateLimit.Burst,
		}, nil)
		opts = append(opts, api.WithRateLimiter(rl))
		go runCleanupLoop(ctx, rl, cfg.CleanupInterval, cfg.RateLimit.Idle)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.Listen)
	}
	srv := &http.Server{Handler: api.New(reg, opts...), ReadHeaderTimeout: cfg.ReadHeaderTimeout}

	h := &health{}
	var admin *http.Server
	if cfg.Admin != "" {
		admin = &http.Server{Addr: cfg.Admin, Handler: adminHandler(reg, h), ReadHeaderTimeout: cfg.ReadHeaderTimeout}
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				obs.Error("admin.server", obs.Fields{"err": err.Error(), "addr": cfg.Admin})
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	h.setReady()
	obs.Info("server.ready", obs.Fields{"addr": ln.Addr().String()})

	select {
	case <-ctx.Done():
		obs.Info("server.shutdown.signal", obs.Fields{})
	case err := <-serveErr:
		reg.Close()
		return errors.Wrap(err, "serve")
	}

	h.setClosing()
	shutdown(srv, admin, reg, cfg.ShutdownGrace)
	obs.Info("server.shutdown.complete", obs.Fields{})
	return nil
}

// shutdown stops accepting requests and lets running streams finish within
// grace. Sessions still open after that are closed, which releases their
// handlers.
func shutdown(srv, admin *http.Server, reg *session.Registry, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	err := srv.Shutdown(ctx)
	if err != nil {
		obs.Warn("server.shutdown.grace_exceeded", obs.Fields{"err": err.Error(), "sessions": reg.Len()})
	}
	reg.Close()
	if err != nil {
		_ = srv.Close()
	}
	if admin != nil {
		_ = admin.Close()
	}
}

// newSink returns the lifecycle event sink configured by cfg.Redis together
// with the function releasing it.
func newSink(ctx context.Context, cfg *config.Config) (events.Sink, func(), error) {
	if cfg.Redis.Addr == "" {
		return events.Discard, func() {}, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := events.DialRedis(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	sink := events.NewRedisSink(client, cfg.Redis.Channel, events.WithLogger(obs.Logger().WithField("component", "events")))
	obs.Info("events.redis", obs.Fields{"addr": cfg.Redis.Addr, "channel": cfg.Redis.Channel})
	return sink, func() {
		sink.Close()
		_ = client.Close()
	}, nil
}

func runCleanupLoop(ctx context.Context, rl *ratelimit.RateLimiter, interval, idle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := rl.Sweep(idle); n > 0 {
				obs.Debug("ratelimit.sweep", obs.Fields{"evicted": n, "clients": rl.Clients()})
			}
		}
	}
}
