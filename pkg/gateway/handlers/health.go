package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/lifecycle"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway should receive new calls.
type ReadyHandler struct {
	Lifecycle *lifecycle.Lifecycle
	Tracker   *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool   `json:"ok"`
		Draining      bool   `json:"draining"`
		DrainingSince string `json:"draining_since,omitempty"`
		ActiveCalls   int    `json:"active_calls"`
	}

	resp := readyResp{ActiveCalls: h.Tracker.Count()}
	status := http.StatusOK
	if since, draining := h.Lifecycle.DrainingSince(); draining {
		status = http.StatusServiceUnavailable
		resp.Draining = true
		resp.DrainingSince = since.UTC().Format(time.RFC3339)
	} else {
		resp.OK = true
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
