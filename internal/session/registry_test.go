package session

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/matst80/rendezvous/internal/events"
	"github.com/matst80/rendezvous/internal/proto"
)

type recordingSink struct {
	mu      sync.Mutex
	records []events.Record
}

func (r *recordingSink) Publish(rec events.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingSink) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Event+":"+rec.State)
	}
	return out
}

func newTestRegistry() (*Registry, *clock.Mock, *recordingSink) {
	clk := clock.NewMock()
	sink := &recordingSink{}
	return NewRegistry(WithClock(clk), WithTTL(time.Minute), WithSink(sink)), clk, sink
}

func TestRegistryCreateGetList(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	assert.Empty(t, r.List())
	assert.Nil(t, r.Get("missing"))

	a := r.Create(proto.HeaderSet{"content-type": "text/plain"}, nil)
	b := r.Create(nil, nil)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Len(t, a.ID(), 36)
	assert.Same(t, a, r.Get(a.ID()))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, time.Minute, r.TTL())

	ids := map[string]bool{}
	for _, sum := range r.List() {
		ids[sum.ID] = true
		assert.Equal(t, "CREATED", sum.State)
		assert.True(t, sum.Active)
		assert.Nil(t, sum.DeactivatedAt)
	}
	assert.Equal(t, map[string]bool{a.ID(): true, b.ID(): true}, ids)
}

func TestRegistryReapsAfterGrace(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, clk, sink := newTestRegistry()
	defer r.Close()

	s := r.Create(nil, nil)
	require.NoError(t, s.RegisterClientError(&proto.ClientError{}))

	clk.Add(59 * time.Second)
	require.Same(t, s, r.Get(s.ID()), "deactivated session stays queryable during grace")
	assert.Equal(t, "CLIENT_ERROR", r.List()[0].State)

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return r.Get(s.ID()) == nil }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, r.Len())

	assert.Equal(t, []string{"client_error:CLIENT_ERROR", "deactivated:CLIENT_ERROR"}, sink.events())
}

func TestRegistryTimeoutThenReap(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, clk, sink := newTestRegistry()
	defer r.Close()

	s := r.Create(nil, nil)
	ch := s.Subscribe()

	clk.Add(time.Minute)
	expectKinds(t, ch, EventTimeout, EventDeactivated)
	require.NotNil(t, r.Get(s.ID()))

	clk.Add(time.Minute)
	require.Eventually(t, func() bool { return r.Get(s.ID()) == nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"timeout:TIMEOUT_NO_SRC_NO_DST", "deactivated:TIMEOUT_NO_SRC_NO_DST"}, sink.events())
}

func TestRegistryStreamEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, _, sink := newTestRegistry()
	defer r.Close()

	s := r.Create(nil, nil)
	ch := s.Subscribe()
	src, dst := newPipeSource(), newBufDestination()
	require.NoError(t, s.RegisterDestination(dst))
	require.NoError(t, s.RegisterSource(src))
	_, err := src.w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, src.w.Close())
	expectKinds(t, ch, EventStreaming, EventFinished, EventDeactivated)

	assert.Equal(t, []string{"streaming:STREAMING", "finished:FINISHED", "deactivated:FINISHED"}, sink.events())
	sink.mu.Lock()
	assert.Equal(t, int64(7), sink.records[2].BytesTransferred)
	sink.mu.Unlock()
}

func TestRegistryCloseCancelsReapAndStopsSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, clk, _ := newTestRegistry()

	done := r.Create(nil, nil)
	done.Deactivate()

	running := r.Create(nil, nil)
	ch := running.Subscribe()
	src, dst := newPipeSource(), newBufDestination()
	require.NoError(t, running.RegisterSource(src))
	require.NoError(t, running.RegisterDestination(dst))
	expectKinds(t, ch, EventStreaming)

	r.Close()
	expectKinds(t, ch, EventDeactivated)
	assert.False(t, running.Active())
	assert.True(t, dst.interrupted)

	clk.Add(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, r.Len(), "no reaping after close")
}
