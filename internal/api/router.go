// Package api exposes sessions over HTTP: a source uploads with
// PUT /stream/{id}, a destination downloads with GET /stream/{id}.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"goji.io"
	"goji.io/pat"

	"github.com/matst80/rendezvous/internal/httpx"
	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/proto"
	"github.com/matst80/rendezvous/internal/ratelimit"
	"github.com/matst80/rendezvous/internal/session"
)

const DefaultBodyLimit = 1 << 20

// Router is an http.Handler serving the rendezvous endpoints.
type Router struct {
	*goji.Mux
	reg        *session.Registry
	log        *logrus.Entry
	limiter    *ratelimit.RateLimiter
	bodyLimit  int64
	trustProxy bool
}

type Option func(*Router)

func WithLogger(l *logrus.Entry) Option {
	return func(rt *Router) { rt.log = l }
}

// WithRateLimiter enables per-client limits on creates, error reports and
// stream registrations.
func WithRateLimiter(rl *ratelimit.RateLimiter) Option {
	return func(rt *Router) { rt.limiter = rl }
}

// WithBodyLimit caps create and error report bodies.
func WithBodyLimit(n int64) Option {
	return func(rt *Router) {
		if n > 0 {
			rt.bodyLimit = n
		}
	}
}

// WithTrustProxy attributes requests to the left-most X-Forwarded-For address.
func WithTrustProxy(v bool) Option {
	return func(rt *Router) { rt.trustProxy = v }
}

func New(reg *session.Registry, opts ...Option) *Router {
	rt := &Router{
		Mux:       goji.NewMux(),
		reg:       reg,
		log:       obs.Discard(),
		bodyLimit: DefaultBodyLimit,
	}
	for _, o := range opts {
		o(rt)
	}

	rt.Use(rt.trace)

	for _, p := range []string{"/ping", "/ping/"} {
		rt.Handle(pat.Get(p), http.HandlerFunc(rt.ping))
	}
	for _, p := range []string{"/stream", "/stream/"} {
		rt.Handle(pat.Post(p), rt.limited(limitRequest, rt.create))
		rt.Handle(pat.Get(p), http.HandlerFunc(rt.list))
	}
	for _, p := range []string{"/stream/:id/status", "/stream/:id/status/"} {
		rt.Handle(pat.Get(p), http.HandlerFunc(rt.status))
	}
	for _, p := range []string{"/stream/:id/error", "/stream/:id/error/"} {
		rt.Handle(pat.Post(p), rt.limited(limitRequest, rt.reportError))
	}
	for _, p := range []string{"/stream/:id", "/stream/:id/"} {
		rt.Handle(pat.Put(p), rt.limited(limitConnection, rt.source))
		rt.Handle(pat.Get(p), rt.limited(limitConnection, rt.destination))
	}
	rt.Handle(pat.New("/*"), http.HandlerFunc(rt.badRoute))
	return rt
}

func (rt *Router) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}

func (rt *Router) badRoute(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, proto.BadRoute())
}

func (rt *Router) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.reg.List())
}

func (rt *Router) status(w http.ResponseWriter, r *http.Request) {
	s := rt.reg.Get(pat.Param(r, "id"))
	if s == nil {
		writeError(w, http.StatusNotFound, proto.SessionNotFound())
		return
	}
	writeJSON(w, http.StatusOK, s.Summary())
}

func (rt *Router) clientIP(r *http.Request) string {
	return httpx.ClientIP(r, rt.trustProxy)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(proto.Internal(err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, e *proto.Error) {
	obs.ErrorsTotal.WithLabelValues(e.Name).Inc()
	writeJSON(w, status, e)
}

func writeClientError(w http.ResponseWriter, ce *proto.ClientError) {
	writeError(w, ce.Status(), ce.Body())
}
