package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/session"
	"github.com/matst80/rendezvous/internal/web"
)

// health tracks the readiness reported by /readyz.
type health struct {
	mu      sync.Mutex
	ready   bool
	closing bool
}

func (h *health) setReady() {
	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()
}

func (h *health) setClosing() {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
}

func (h *health) isReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready && !h.closing
}

// adminHandler serves Prometheus metrics plus lightweight dashboard & state endpoints.
func adminHandler(reg *session.Registry, h *health) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		st := collectStats(reg)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		st := collectStats(reg)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := web.Render(w, "dashboard", st.ToTemplateMap()); err != nil {
			obs.Warn("dashboard.render", obs.Fields{"err": err.Error()})
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("dashboard unavailable"))
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !h.isReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}
