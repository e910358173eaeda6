package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/matst80/rendezvous/internal/obs"
)

const (
	DefaultChannel = "rendezvous:events"

	defaultQueueSize      = 1024
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	publishTimeout        = 5 * time.Second
)

// Publisher is the subset of a redis client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes records as JSON on a pub/sub channel from a single
// background worker. Records that do not fit the queue are dropped.
type RedisSink struct {
	client  Publisher
	channel string
	log     *logrus.Entry
	backoff func() backoff.BackOff

	queue chan Record
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

type RedisOption func(*RedisSink)

func WithQueueSize(n int) RedisOption {
	return func(s *RedisSink) { s.queue = make(chan Record, n) }
}

func WithLogger(l *logrus.Entry) RedisOption {
	return func(s *RedisSink) { s.log = l }
}

// WithBackOff replaces the retry policy used for each record.
func WithBackOff(fn func() backoff.BackOff) RedisOption {
	return func(s *RedisSink) { s.backoff = fn }
}

func NewRedisSink(client Publisher, channel string, opts ...RedisOption) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	s := &RedisSink{
		client:  client,
		channel: channel,
		log:     obs.Discard(),
		queue:   make(chan Record, defaultQueueSize),
		done:    make(chan struct{}),
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(
				backoff.NewExponentialBackOff(
					backoff.WithInitialInterval(defaultInitialBackoff),
					backoff.WithMaxInterval(defaultMaxBackoff),
				),
				defaultMaxRetries,
			)
		},
	}
	for _, o := range opts {
		o(s)
	}
	go s.run()
	return s
}

// DialRedis connects to addr and verifies the connection with a PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	return rdb, nil
}

func (s *RedisSink) Publish(rec Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- rec:
	default:
		obs.EventsDroppedTotal.Inc()
		s.log.WithField("session", rec.Session).Warn("events.queue_full")
	}
}

// Close stops accepting records and waits until the queued ones are sent.
func (s *RedisSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *RedisSink) run() {
	defer close(s.done)
	for rec := range s.queue {
		if err := s.send(rec); err != nil {
			obs.EventsDroppedTotal.Inc()
			s.log.WithError(err).WithField("session", rec.Session).Error("events.publish_failed")
		}
	}
}

func (s *RedisSink) send(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return s.client.Publish(ctx, s.channel, data).Err()
	}
	return backoff.RetryNotify(operation, s.backoff(), func(err error, d time.Duration) {
		s.log.WithError(err).WithField("next", d.String()).Debug("events.publish_retry")
	})
}
