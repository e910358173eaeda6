package api

import (
	"net/http"
	"time"

	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/proto"
)

type limitKind int

const (
	limitRequest limitKind = iota
	limitConnection
)

func (k limitKind) String() string {
	if k == limitConnection {
		return "connection"
	}
	return "request"
}

// limited guards h with the configured rate limiter, if any.
func (rt *Router) limited(kind limitKind, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.limiter != nil {
			ip := rt.clientIP(r)
			allowed := rt.limiter.AllowRequest
			if kind == limitConnection {
				allowed = rt.limiter.AllowConnection
			}
			if !allowed(ip) {
				obs.RateLimitedTotal.WithLabelValues(kind.String()).Inc()
				rt.log.WithField("client", ip).WithField("bucket", kind.String()).Debug("http.rate_limited")
				writeError(w, http.StatusTooManyRequests, proto.RateLimited())
				return
			}
		}
		h(w, r)
	})
}

// statusWriter records the response status for request logs. Unwrap keeps
// http.ResponseController working through it.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (rt *Router) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		rt.log.WithFields(obs.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"bytes":    sw.bytes,
			"client":   rt.clientIP(r),
			"duration": time.Since(start).String(),
		}).Trace("http.request")
	})
}
