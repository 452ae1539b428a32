package server

import (
	"log/slog"
	"net/http"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/nlu"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/schedule"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/stt"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/tts"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/callcontrol"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/config"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/handlers"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/lifecycle"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/sessions"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	tracker   *sessions.Tracker
	lifecycle *lifecycle.Lifecycle
}

// Providers carries the external collaborators the call engine needs.
type Providers struct {
	STT      stt.Provider
	TTS      tts.Provider
	NLU      nlu.Provider
	Resolver *schedule.Resolver
	Control  callcontrol.Controller
}

func New(cfg config.Config, providers Providers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		tracker:   sessions.NewTracker(),
		lifecycle: &lifecycle.Lifecycle{},
	}
	s.routes(providers)
	return s
}

func (s *Server) routes(providers Providers) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Lifecycle: s.lifecycle, Tracker: s.tracker})

	s.mux.Handle("/media", handlers.MediaHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		STT:       providers.STT,
		TTS:       providers.TTS,
		NLU:       providers.NLU,
		Resolver:  providers.Resolver,
		Control:   providers.Control,
		Tracker:   s.tracker,
		Lifecycle: s.lifecycle,
	})

	s.mux.Handle("POST /calls/{callSid}/confirm", mw.OperatorAuth(s.cfg.OperatorAPIKey,
		handlers.CallDecisionHandler{Tracker: s.tracker, Confirm: true}))
	s.mux.Handle("POST /calls/{callSid}/reject", mw.OperatorAuth(s.cfg.OperatorAPIKey,
		handlers.CallDecisionHandler{Tracker: s.tracker}))

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Tracker exposes the live-call registry for shutdown draining.
func (s *Server) Tracker() *sessions.Tracker {
	return s.tracker
}

// SetDraining flips readiness and stops accepting new calls.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// HTTPServer builds the net/http server with the configured timeouts.
// Read and write timeouts stay off: media stream sockets are long-lived.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
}
