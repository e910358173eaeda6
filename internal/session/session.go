package session

import (
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/proto"
)

const (
	relayBufferSize  = 32 * 1024
	subscriberBuffer = 8
)

// Source is the uploading side of a session.
type Source interface {
	io.Reader
	// Closed is closed when the peer goes away.
	Closed() <-chan struct{}
	// Interrupt unblocks a pending Read.
	Interrupt()
}

// Destination is the downloading side of a session.
type Destination interface {
	io.Writer
	// Finish marks the logical end of the stream and flushes.
	Finish() error
	Closed() <-chan struct{}
	// Interrupt unblocks a pending Write.
	Interrupt()
}

// Session pairs one source with one destination and relays bytes between
// them. All transitions happen under mu and every notification is emitted
// while it is held, so subscribers see events in transition order.
type Session struct {
	id       string
	clock    clock.Clock
	ttl      time.Duration
	log      *logrus.Entry
	hook     func(Event)
	download proto.HeaderSet
	upload   proto.HeaderSet

	mu            sync.Mutex
	state         State
	active        bool
	createdAt     time.Time
	deactivatedAt time.Time
	startedAt     time.Time
	bytes         int64
	clientErr     *proto.ClientError
	failure       *proto.Error
	src           Source
	dst           Destination
	hasSrc        bool
	hasDst        bool
	srcEnded      bool
	streamed      bool
	timer         *clock.Timer
	stop          chan struct{}
	subs          map[<-chan Event]chan Event
}

// New creates a session and starts its pairing timer.
func New(id string, download, upload proto.HeaderSet, opts ...Option) *Session {
	s := newSession(id, download, upload, buildOptions(opts))
	s.start()
	return s
}

func newSession(id string, download, upload proto.HeaderSet, o options) *Session {
	if download == nil {
		download = proto.HeaderSet{}
	}
	if upload == nil {
		upload = proto.HeaderSet{}
	}
	return &Session{
		id:        id,
		clock:     o.clock,
		ttl:       o.ttl,
		log:       o.log.WithField("session", id),
		hook:      o.hook,
		download:  download,
		upload:    upload,
		state:     Created,
		active:    true,
		createdAt: o.clock.Now(),
		stop:      make(chan struct{}),
		subs:      make(map[<-chan Event]chan Event),
	}
}

func (s *Session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.timer == nil {
		s.timer = s.clock.AfterFunc(s.ttl, s.expire)
	}
}

func (s *Session) ID() string { return s.id }

// DownloadHeaders are echoed onto the destination response.
func (s *Session) DownloadHeaders() proto.HeaderSet { return s.download }

// UploadHeaders are echoed onto the source response.
func (s *Session) UploadHeaders() proto.HeaderSet { return s.upload }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ClientError returns the report posted by a participant, if any.
func (s *Session) ClientError() *proto.ClientError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientErr
}

func (s *Session) BytesTransferred() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

func (s *Session) Summary() proto.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() proto.Summary {
	sum := proto.Summary{
		ID:               s.id,
		CreatedAt:        s.createdAt,
		State:            string(s.state),
		Active:           s.active,
		DownloadHeaders:  s.download,
		UploadHeaders:    s.upload,
		BytesTransferred: s.bytes,
	}
	if !s.active {
		at := s.deactivatedAt
		sum.DeactivatedAt = &at
	}
	if s.failure != nil {
		e := *s.failure
		sum.Error = &e
	}
	return sum
}

// Subscribe returns a channel receiving every later event. The channel is
// closed after EventDeactivated, or immediately if the session is inactive.
func (s *Session) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		close(ch)
		return ch
	}
	s.subs[ch] = ch
	return ch
}

// Unsubscribe stops delivery to ch. It does not close ch.
func (s *Session) Unsubscribe(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, ch)
}

func (s *Session) RegisterSource(src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrInactive
	}
	if s.hasSrc {
		return ErrSourceRegistered
	}
	s.src, s.hasSrc = src, true
	s.log.Debug("session.source_connected")
	s.watch(SideSource, src.Closed())
	s.tryStart()
	return nil
}

func (s *Session) RegisterDestination(dst Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrInactive
	}
	if s.hasDst {
		return ErrDestinationRegistered
	}
	s.dst, s.hasDst = dst, true
	s.log.Debug("session.destination_connected")
	s.watch(SideDestination, dst.Closed())
	s.tryStart()
	return nil
}

// RegisterClientError records a failure reported out of band by one of the
// participants and ends the session.
func (s *Session) RegisterClientError(ce *proto.ClientError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamed {
		return ErrStreamStarted
	}
	if !s.active {
		return ErrInactive
	}
	s.clientErr = ce
	s.failure = ce.Body()
	s.state = ClientErrored
	s.log.WithField("status", ce.Status()).Info("session.client_error")
	s.emit(EventClientError, nil)
	s.deactivateLocked()
	return nil
}

// Deactivate ends the session if it is still active, interrupting any
// transfer in flight. It is safe to call more than once.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	if s.streamed {
		s.src.Interrupt()
		s.dst.Interrupt()
	}
	s.deactivateLocked()
}

func (s *Session) watch(side Side, closed <-chan struct{}) {
	stop := s.stop
	go func() {
		select {
		case <-closed:
			s.disconnected(side)
		case <-stop:
		}
	}()
}

func (s *Session) tryStart() {
	switch {
	case s.src != nil && s.dst != nil:
		if s.timer != nil {
			s.timer.Stop()
		}
		s.state = Streaming
		s.streamed = true
		s.startedAt = s.clock.Now()
		obs.StreamsInFlight.Inc()
		s.log.Info("session.streaming")
		s.emit(EventStreaming, nil)
		go s.relay(s.src, s.dst)
	case s.src != nil:
		s.state = SrcConnected
	default:
		s.state = DstConnected
	}
}

func (s *Session) relay(src Source, dst Destination) {
	buf := make([]byte, relayBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if !s.count(n) {
				return
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				s.fail(SideDestination, werr)
				return
			}
		}
		switch {
		case rerr == io.EOF:
			s.sourceEnded()
			if err := dst.Finish(); err != nil {
				s.fail(SideDestination, err)
				return
			}
			s.finish()
			return
		case rerr != nil:
			s.fail(SideSource, rerr)
			return
		}
	}
}

// count records n relayed bytes and reports whether forwarding may go on.
func (s *Session) count(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.state != Streaming {
		return false
	}
	s.bytes += int64(n)
	obs.BytesRelayedTotal.Add(float64(n))
	return true
}

func (s *Session) sourceEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.srcEnded = true
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.state != Streaming {
		return
	}
	s.state = Finished
	s.log.WithField("bytes", s.bytes).Info("session.finished")
	s.emit(EventFinished, nil)
	s.deactivateLocked()
}

func (s *Session) fail(side Side, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(side, errors.Is(cause, ErrDisconnected), cause)
}

func (s *Session) disconnected(side Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(side, true, ErrDisconnected)
}

func (s *Session) failLocked(side Side, disconnected bool, cause error) {
	if !s.active || s.state == Finished {
		return
	}
	if side == SideSource && s.srcEnded {
		return
	}
	serr := &StreamError{Side: side, Disconnected: disconnected, Cause: cause}
	if s.streamed {
		s.src.Interrupt()
		if side == SideDestination {
			s.dst.Interrupt()
		}
	}
	s.state = failureState(side, disconnected)
	s.failure = serr.Wire()
	s.log.WithError(cause).WithField("state", s.state).Warn("session.failed")
	s.emit(EventError, serr)
	s.deactivateLocked()
}

func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.streamed {
		return
	}
	s.state = timeoutState(s.hasSrc, s.hasDst)
	s.failure = proto.SessionTimeout()
	s.log.WithField("state", s.state).Info("session.timeout")
	s.emit(EventTimeout, nil)
	s.deactivateLocked()
}

func (s *Session) deactivateLocked() {
	if !s.active {
		return
	}
	s.active = false
	s.deactivatedAt = s.clock.Now()
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.stop)
	if s.streamed {
		obs.StreamsInFlight.Dec()
		obs.StreamDurationSeconds.Observe(s.deactivatedAt.Sub(s.startedAt).Seconds())
	}
	s.emit(EventDeactivated, nil)
	for key, ch := range s.subs {
		close(ch)
		delete(s.subs, key)
	}
	s.src, s.dst = nil, nil
}

// emit must be called with mu held. Subscriber sends never block; the
// buffer holds every event a session can produce.
func (s *Session) emit(kind EventKind, err error) {
	ev := Event{Kind: kind, Session: s, State: s.state, Summary: s.summaryLocked(), Err: err}
	if s.hook != nil {
		s.hook(ev)
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.WithField("event", kind.String()).Warn("session.event_dropped")
		}
	}
}
