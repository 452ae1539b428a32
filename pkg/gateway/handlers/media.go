package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/dialog"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/nlu"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/schedule"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/stt"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/tts"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/callcontrol"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/config"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/lifecycle"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/session"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/sessions"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/mw"
)

// MediaHandler accepts one media stream websocket per incoming call and
// runs a call session on it until the call ends.
type MediaHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	STT       stt.Provider
	TTS       tts.Provider
	NLU       nlu.Provider
	Resolver  *schedule.Resolver
	Control   callcontrol.Controller
	Tracker   *sessions.Tracker
	Lifecycle *lifecycle.Lifecycle
}

func (h MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}

	// The telephony provider is not a browser; origin checks don't apply.
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("request_id", reqID)

	machine := dialog.NewMachine(h.Config.Dialog, h.NLU, h.Resolver, logger)

	sess, err := session.New(session.Dependencies{
		Conn:    conn,
		Logger:  logger,
		STT:     h.STT,
		TTS:     h.TTS,
		Machine: machine,
		Control: h.Control,
		Tracker: h.Tracker,
		Config: session.Config{
			HandshakeTimeout:        h.Config.HandshakeTimeout,
			WatchdogTimeout:         h.Config.WatchdogTimeout,
			MaxCallDuration:         h.Config.MaxCallDuration,
			TurnTimeout:             h.Config.TurnTimeout,
			PingInterval:            h.Config.WSPingInterval,
			WriteTimeout:            h.Config.WSWriteTimeout,
			MaxAudioFrameBytes:      h.Config.MaxAudioFrameBytes,
			MaxJSONMessageBytes:     h.Config.MaxJSONMessageBytes,
			MaxAudioFramesPerSecond: h.Config.MaxAudioFramesPerSecond,
			MaxAudioBytesPerSecond:  h.Config.MaxAudioBytesPerSecond,
			InboundBurstSeconds:     h.Config.InboundBurstSeconds,
			GateCharsPerSecond:      h.Config.GateCharsPerSecond,
			GateMaxDuration:         h.Config.GateMaxDuration,
			GatePadding:             h.Config.GatePadding,
			VAD:                     h.Config.VAD,
			VADEnergyThreshold:      h.Config.VADEnergyThreshold,
			TTSVoice:                h.Config.TTSVoice,
		},
	})
	if err != nil {
		logger.Error("session setup failed", "error", err)
		return
	}

	if err := sess.Run(); err != nil {
		logger.Warn("call session ended with error", "error", err)
	}
}
