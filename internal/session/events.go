package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/matst80/rendezvous/internal/proto"
)

var (
	ErrSourceRegistered      = errors.New("source already registered")
	ErrDestinationRegistered = errors.New("destination already registered")
	ErrInactive              = errors.New("session is no longer active")
	ErrStreamStarted         = errors.New("session has already started streaming")

	// ErrDisconnected is wrapped by Source and Destination implementations
	// to report that the peer went away rather than failed.
	ErrDisconnected = errors.New("peer disconnected")
)

type EventKind int

const (
	EventStreaming EventKind = iota
	EventClientError
	EventTimeout
	EventError
	EventFinished
	EventDeactivated
)

func (k EventKind) String() string {
	switch k {
	case EventStreaming:
		return "streaming"
	case EventClientError:
		return "client_error"
	case EventTimeout:
		return "timeout"
	case EventError:
		return "error"
	case EventFinished:
		return "finished"
	case EventDeactivated:
		return "deactivated"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a lifecycle notification. Summary is the session snapshot taken
// when the event was emitted; Err is set for EventError.
type Event struct {
	Kind    EventKind
	Session *Session
	State   State
	Summary proto.Summary
	Err     error
}

type Side int

const (
	SideSource Side = iota
	SideDestination
)

func (s Side) String() string {
	if s == SideSource {
		return "source"
	}
	return "destination"
}

// StreamError describes the failure of one leg of a session.
type StreamError struct {
	Side         Side
	Disconnected bool
	Cause        error
}

func (e *StreamError) Error() string {
	if e.Disconnected {
		return e.Side.String() + " disconnected before end"
	}
	return fmt.Sprintf("%s error: %v", e.Side, e.Cause)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// Wire returns the error envelope sent to clients.
func (e *StreamError) Wire() *proto.Error {
	return proto.StreamFailure(e.Side == SideSource, e.Disconnected)
}
