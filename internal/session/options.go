package session

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/matst80/rendezvous/internal/events"
	"github.com/matst80/rendezvous/internal/obs"
)

const DefaultTTL = 60 * time.Second

type options struct {
	clock clock.Clock
	ttl   time.Duration
	log   *logrus.Entry
	sink  events.Sink
	hook  func(Event)
}

type Option func(*options)

// WithClock sets the clock used for timestamps and timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTTL sets how long a session waits for both sides, and how long a
// deactivated session stays queryable.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.log = l }
}

// WithSink mirrors every session event to sink. Only used by the registry.
func WithSink(sink events.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// withHook is called under the session lock for every event.
func withHook(fn func(Event)) Option {
	return func(o *options) { o.hook = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		clock: clock.New(),
		ttl:   DefaultTTL,
		log:   obs.Discard(),
		sink:  events.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
