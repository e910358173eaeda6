package main

import (
	"time"

	"github.com/matst80/rendezvous/internal/proto"
	"github.com/matst80/rendezvous/internal/session"
)

// Stats represents current broker stats for the dashboard and state API.
type Stats struct {
	Indexed   int             `json:"indexed"`
	Active    int             `json:"active"`
	Streaming int             `json:"streaming"`
	Bytes     int64           `json:"bytes_transferred"`
	Sessions  []proto.Summary `json:"sessions"`
	Now       string          `json:"now"`
}

func collectStats(reg *session.Registry) Stats {
	st := Stats{Sessions: reg.List(), Now: time.Now().UTC().Format(time.RFC3339)}
	st.Indexed = len(st.Sessions)
	for _, s := range st.Sessions {
		if s.Active {
			st.Active++
		}
		if s.State == string(session.Streaming) {
			st.Streaming++
		}
		st.Bytes += s.BytesTransferred
	}
	return st
}

// ToTemplateMap returns a map suited for html/template rendering with expected capitalized keys.
func (s Stats) ToTemplateMap() map[string]any {
	return map[string]any{
		"Indexed":   s.Indexed,
		"Active":    s.Active,
		"Streaming": s.Streaming,
		"Bytes":     s.Bytes,
		"Sessions":  s.Sessions,
	}
}
