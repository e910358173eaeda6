package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"goji.io/pat"

	"github.com/matst80/rendezvous/internal/httpx"
	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/proto"
	"github.com/matst80/rendezvous/internal/session"
)

func (rt *Router) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.bodyLimit))
	if err != nil {
		return nil, proto.InvalidBody("Invalid JSON: " + err.Error())
	}
	return bytes.TrimSpace(body), nil
}

func decodeError(err error) *proto.Error {
	var perr *proto.Error
	if errors.As(err, &perr) {
		return perr
	}
	return proto.InvalidBody("Invalid JSON: " + err.Error())
}

func (rt *Router) create(w http.ResponseWriter, r *http.Request) {
	body, err := rt.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, decodeError(err))
		return
	}
	var req proto.CreateRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, decodeError(err))
			return
		}
	}
	if err := httpx.Validate(req.DownloadHeaders, req.UploadHeaders); err != nil {
		writeError(w, http.StatusBadRequest, decodeError(err))
		return
	}

	s := rt.reg.Create(req.DownloadHeaders, req.UploadHeaders)
	rt.log.WithField("session", s.ID()).Info("session.create")
	writeJSON(w, http.StatusCreated, proto.CreateResponse{Stream: s.ID()})
}

func (rt *Router) reportError(w http.ResponseWriter, r *http.Request) {
	s := rt.reg.Get(pat.Param(r, "id"))
	if s == nil {
		writeError(w, http.StatusNotFound, proto.SessionNotFound())
		return
	}
	if s.State() == session.Streaming || !s.Active() {
		writeError(w, http.StatusConflict, proto.StreamStarted())
		return
	}

	body, err := rt.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, decodeError(err))
		return
	}
	var ce proto.ClientError
	if err := json.Unmarshal(body, &ce); err != nil {
		writeError(w, http.StatusBadRequest, decodeError(err))
		return
	}
	if bytes.Equal(body, []byte("null")) {
		writeError(w, http.StatusBadRequest, proto.InvalidBody("Invalid JSON: error report must be an object"))
		return
	}
	if ce.HTTPStatus != 0 && (ce.HTTPStatus < 400 || ce.HTTPStatus > 599) {
		writeError(w, http.StatusBadRequest, proto.InvalidBody("http_status must be between 400 and 599"))
		return
	}

	switch err := s.RegisterClientError(&ce); {
	case errors.Is(err, session.ErrStreamStarted), errors.Is(err, session.ErrInactive):
		writeError(w, http.StatusConflict, proto.StreamStarted())
	case err != nil:
		writeError(w, http.StatusInternalServerError, proto.Internal(err.Error()))
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// lookup resolves the session a registration targets, answering the request
// itself when the session cannot take a new participant.
func (rt *Router) lookup(w http.ResponseWriter, r *http.Request) *session.Session {
	s := rt.reg.Get(pat.Param(r, "id"))
	if s == nil {
		writeError(w, http.StatusNotFound, proto.SessionNotFound())
		return nil
	}
	// a reported client error outlives the session's active phase
	if ce := s.ClientError(); ce != nil {
		writeClientError(w, ce)
		return nil
	}
	if !s.Active() {
		writeError(w, http.StatusNotFound, proto.SessionNotFound())
		return nil
	}
	return s
}

func registrationError(w http.ResponseWriter, s *session.Session, side session.Side, err error) {
	switch {
	case errors.Is(err, session.ErrSourceRegistered), errors.Is(err, session.ErrDestinationRegistered):
		writeError(w, http.StatusTooManyRequests, proto.AlreadyConnected(side.String()))
	case errors.Is(err, session.ErrInactive):
		if ce := s.ClientError(); ce != nil {
			writeClientError(w, ce)
			return
		}
		writeError(w, http.StatusNotFound, proto.SessionNotFound())
	default:
		writeError(w, http.StatusInternalServerError, proto.Internal(err.Error()))
	}
}

// failureOf returns the envelope for an error event and whether side caused
// it by going away, in which case it gets no reply.
func failureOf(ev session.Event, side session.Side) (*proto.Error, bool) {
	var serr *session.StreamError
	if errors.As(ev.Err, &serr) {
		return serr.Wire(), serr.Side == side && serr.Disconnected
	}
	if ev.Summary.Error != nil {
		return ev.Summary.Error, false
	}
	return proto.StreamErrorDefault(), false
}

// abort drops the connection of a side that went away mid-stream so net/http
// does not answer it with an implicit 200.
func abort(log *logrus.Entry, side session.Side) {
	log.WithField("side", side.String()).Debug("stream.peer_gone")
	panic(http.ErrAbortHandler)
}

func (rt *Router) source(w http.ResponseWriter, r *http.Request) {
	s := rt.lookup(w, r)
	if s == nil {
		return
	}
	log := rt.log.WithField("session", s.ID())
	src := newHTTPSource(w, r)

	events := s.Subscribe()
	if err := s.RegisterSource(src); err != nil {
		s.Unsubscribe(events)
		src.finish(nil)
		log.WithError(err).Debug("source.rejected")
		registrationError(w, s, session.SideSource, err)
		return
	}
	defer s.Unsubscribe(events)
	log.Debug("source.registered")

	for ev := range events {
		switch ev.Kind {
		case session.EventStreaming:
			src.header(func(h http.Header) {
				httpx.Apply(h, s.UploadHeaders())
				h.Set("Connection", "close")
			})
		case session.EventClientError:
			ce := s.ClientError()
			src.finish(func(w http.ResponseWriter) { writeClientError(w, ce) })
			return
		case session.EventTimeout:
			src.finish(func(w http.ResponseWriter) {
				writeError(w, http.StatusGatewayTimeout, proto.SessionTimeout())
			})
			return
		case session.EventError:
			e, silent := failureOf(ev, session.SideSource)
			if silent {
				src.finish(nil)
				abort(log, session.SideSource)
			}
			src.finish(func(w http.ResponseWriter) { writeError(w, http.StatusBadGateway, e) })
			return
		case session.EventFinished:
			src.finish(func(w http.ResponseWriter) { w.WriteHeader(http.StatusOK) })
			return
		case session.EventDeactivated:
			src.finish(func(w http.ResponseWriter) {
				writeError(w, http.StatusServiceUnavailable, proto.Internal("session closed"))
			})
			return
		}
	}
	src.finish(nil)
}

func (rt *Router) destination(w http.ResponseWriter, r *http.Request) {
	s := rt.lookup(w, r)
	if s == nil {
		return
	}
	log := rt.log.WithField("session", s.ID())
	dst := newHTTPDestination(w, r, s.DownloadHeaders())

	events := s.Subscribe()
	if err := s.RegisterDestination(dst); err != nil {
		s.Unsubscribe(events)
		dst.finish(nil)
		log.WithError(err).Debug("destination.rejected")
		registrationError(w, s, session.SideDestination, err)
		return
	}
	defer s.Unsubscribe(events)
	log.Debug("destination.registered")

	for ev := range events {
		switch ev.Kind {
		case session.EventStreaming:
			// headers are committed by the adapter before the first byte
		case session.EventClientError:
			ce := s.ClientError()
			dst.finish(func(w http.ResponseWriter, _ bool) { writeClientError(w, ce) })
			return
		case session.EventTimeout:
			dst.finish(func(w http.ResponseWriter, _ bool) {
				writeError(w, http.StatusGatewayTimeout, proto.SessionTimeout())
			})
			return
		case session.EventError:
			e, silent := failureOf(ev, session.SideDestination)
			if silent {
				dst.finish(nil)
				abort(log, session.SideDestination)
			}
			dst.finish(func(w http.ResponseWriter, committed bool) {
				switch {
				case committed:
					obs.ErrorsTotal.WithLabelValues(e.Name).Inc()
					marker, _ := json.Marshal(proto.StreamMarker{Error: e})
					_, _ = w.Write(marker)
				default:
					writeError(w, http.StatusBadGateway, e)
				}
			})
			return
		case session.EventFinished:
			dst.finish(nil)
			return
		case session.EventDeactivated:
			dst.finish(func(w http.ResponseWriter, committed bool) {
				if !committed {
					writeError(w, http.StatusServiceUnavailable, proto.Internal("session closed"))
				}
			})
			return
		}
	}
	dst.finish(nil)
}
