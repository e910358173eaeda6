package api

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/matst80/rendezvous/internal/httpx"
	"github.com/matst80/rendezvous/internal/proto"
	"github.com/matst80/rendezvous/internal/session"
)

var errDetached = errors.New("request already answered")

// interrupter unblocks I/O parked on a request's connection. It stays usable
// only until the owning handler detaches.
type interrupter struct {
	mu   sync.Mutex
	rc   *http.ResponseController
	gone bool
}

func (i *interrupter) deadline(read bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.gone {
		return
	}
	// recorders and hijacked connections answer ErrNotSupported; nothing to unblock then
	if read {
		_ = i.rc.SetReadDeadline(time.Now())
	} else {
		_ = i.rc.SetWriteDeadline(time.Now())
	}
}

func (i *interrupter) detach() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.gone = true
}

func disconnectedErr(ctx context.Context, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
		return errors.Wrap(session.ErrDisconnected, err.Error())
	}
	return err
}

// httpSource feeds a PUT request body into a session.
type httpSource struct {
	ctx  context.Context
	body io.Reader
	intr interrupter

	mu       sync.Mutex
	w        http.ResponseWriter
	detached bool
}

func newHTTPSource(w http.ResponseWriter, r *http.Request) *httpSource {
	return &httpSource{
		ctx:  r.Context(),
		body: r.Body,
		w:    w,
		intr: interrupter{rc: http.NewResponseController(w)},
	}
}

func (s *httpSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	detached := s.detached
	s.mu.Unlock()
	if detached {
		return 0, errDetached
	}
	n, err := s.body.Read(p)
	if err != nil && err != io.EOF {
		err = disconnectedErr(s.ctx, err)
	}
	return n, err
}

func (s *httpSource) Closed() <-chan struct{} { return s.ctx.Done() }

func (s *httpSource) Interrupt() { s.intr.deadline(true) }

// header runs fn against the response headers while the request is live.
func (s *httpSource) header(fn func(http.Header)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.detached {
		fn(s.w.Header())
	}
}

// finish writes the final response with fn and releases the writer.
func (s *httpSource) finish(fn func(http.ResponseWriter)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.detached && fn != nil {
		fn(s.w)
	}
	s.detached = true
	s.intr.detach()
}

// httpDestination streams session bytes into a GET response. Status and
// download headers are committed right before the first byte.
type httpDestination struct {
	ctx     context.Context
	rc      *http.ResponseController
	headers proto.HeaderSet
	intr    interrupter

	mu        sync.Mutex
	w         http.ResponseWriter
	committed bool
	detached  bool
}

func newHTTPDestination(w http.ResponseWriter, r *http.Request, headers proto.HeaderSet) *httpDestination {
	rc := http.NewResponseController(w)
	return &httpDestination{
		ctx:     r.Context(),
		rc:      rc,
		headers: headers,
		w:       w,
		intr:    interrupter{rc: rc},
	}
}

func (d *httpDestination) commitLocked() {
	if d.committed {
		return
	}
	httpx.Apply(d.w.Header(), d.headers)
	d.w.Header().Set("Connection", "close")
	d.w.WriteHeader(http.StatusOK)
	d.committed = true
}

func (d *httpDestination) flushLocked() error {
	if err := d.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return disconnectedErr(d.ctx, err)
	}
	return nil
}

func (d *httpDestination) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return 0, errDetached
	}
	d.commitLocked()
	n, err := d.w.Write(p)
	if err != nil {
		return n, disconnectedErr(d.ctx, err)
	}
	return n, d.flushLocked()
}

func (d *httpDestination) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return errDetached
	}
	d.commitLocked()
	return d.flushLocked()
}

func (d *httpDestination) Closed() <-chan struct{} { return d.ctx.Done() }

func (d *httpDestination) Interrupt() { d.intr.deadline(false) }

// finish hands the writer to fn, telling it whether the status line was
// already sent, then releases the writer.
func (d *httpDestination) finish(fn func(w http.ResponseWriter, committed bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.detached && fn != nil {
		fn(d.w, d.committed)
	}
	d.detached = true
	d.intr.detach()
}
