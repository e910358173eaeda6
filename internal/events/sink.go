// Package events mirrors session lifecycle changes to external observers.
package events

import (
	"time"

	"github.com/matst80/rendezvous/internal/proto"
)

// Record is one lifecycle change as published on the wire.
type Record struct {
	Session          string       `json:"session"`
	Event            string       `json:"event"`
	State            string       `json:"state"`
	Active           bool         `json:"active"`
	BytesTransferred int64        `json:"bytes_transferred"`
	Error            *proto.Error `json:"error"`
	At               time.Time    `json:"at"`
}

// FromSummary builds a record for event from a session snapshot.
func FromSummary(event string, s proto.Summary, at time.Time) Record {
	return Record{
		Session:          s.ID,
		Event:            event,
		State:            s.State,
		Active:           s.Active,
		BytesTransferred: s.BytesTransferred,
		Error:            s.Error,
		At:               at,
	}
}

// Sink receives records. Publish must not block.
type Sink interface {
	Publish(Record)
}

type discard struct{}

func (discard) Publish(Record) {}

// Discard drops every record.
var Discard Sink = discard{}
