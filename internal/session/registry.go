package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/matst80/rendezvous/internal/events"
	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/proto"
)

// Registry owns every session from creation until one TTL after it
// deactivates. Lock order is session then registry: the registry never
// calls into a session while holding mu.
type Registry struct {
	opts options

	mu       sync.Mutex
	sessions map[string]*Session
	reapers  map[string]*clock.Timer
	closed   bool
}

func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:     buildOptions(opts),
		sessions: make(map[string]*Session),
		reapers:  make(map[string]*clock.Timer),
	}
}

// Create indexes a new session and starts its pairing timer.
func (r *Registry) Create(download, upload proto.HeaderSet) *Session {
	o := r.opts
	o.hook = r.observe
	s := newSession(uuid.NewString(), download, upload, o)

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	obs.SessionsCreatedTotal.Inc()
	obs.SessionsIndexed.Inc()
	obs.SessionsActive.Inc()
	s.log.Debug("session.created")

	s.start()
	return s
}

// Get returns the session for id, or nil once it was reaped or never existed.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// List returns a snapshot of every indexed session, in no particular order.
func (r *Registry) List() []proto.Summary {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	out := make([]proto.Summary, 0, len(all))
	for _, s := range all {
		out = append(out, s.Summary())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// TTL is the pairing timeout and reap grace period of new sessions.
func (r *Registry) TTL() time.Duration { return r.opts.ttl }

// Close cancels pending reaps and deactivates every session still running.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for id, t := range r.reapers {
		t.Stop()
		delete(r.reapers, id)
	}
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.Deactivate()
	}
}

// observe runs under the emitting session's lock.
func (r *Registry) observe(ev Event) {
	r.opts.sink.Publish(events.FromSummary(ev.Kind.String(), ev.Summary, r.opts.clock.Now()))
	if ev.Kind != EventDeactivated {
		return
	}
	obs.SessionsActive.Dec()
	obs.SessionOutcomesTotal.WithLabelValues(string(ev.State)).Inc()

	id := ev.Session.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.reapers[id] = r.opts.clock.AfterFunc(r.opts.ttl, func() { r.reap(id) })
}

func (r *Registry) reap(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	delete(r.reapers, id)
	obs.SessionsIndexed.Dec()
	r.opts.log.WithField("session", id).Debug("session.reaped")
}
