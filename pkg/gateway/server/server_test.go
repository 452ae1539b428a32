package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/nlu"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/schedule"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/stt"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/tts"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/callcontrol"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/config"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/sessions"
)

type stubSTT struct{}

func (stubSTT) Name() string { return "stub" }
func (stubSTT) Transcribe(context.Context, []byte, stt.TranscribeOptions) (*stt.Transcript, error) {
	return &stt.Transcript{}, nil
}

type stubTTS struct{}

func (stubTTS) Name() string { return "stub" }
func (stubTTS) Synthesize(context.Context, string, tts.SynthesizeOptions) (*tts.Synthesis, error) {
	return &tts.Synthesis{}, nil
}

type stubNLU struct{}

func (stubNLU) Name() string { return "stub" }

func (stubNLU) ExtractIntent(_ context.Context, _ string, prior *nlu.IntentRecord) (*nlu.IntentRecord, error) {
	rec := nlu.IntentRecord{}
	if prior != nil {
		rec = *prior
	}
	return &rec, nil
}
func (stubNLU) ExtractName(context.Context, string) (string, float64, error) { return "", 0, nil }
func (stubNLU) ResolveTime(_ context.Context, _ string, ref time.Time) (*nlu.TimeResult, error) {
	return &nlu.TimeResult{Start: ref}, nil
}
func (stubNLU) Classify(_ context.Context, _ string, labels []string) (string, float64, error) {
	return labels[0], 0, nil
}
func (stubNLU) Answer(context.Context, string, map[string]string) (string, error) { return "", nil }

func newTestServer(t *testing.T, operatorKey string) *Server {
	t.Helper()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.OperatorAPIKey = operatorKey
	logger := slog.New(slog.DiscardHandler)
	return New(cfg, Providers{
		STT:      stubSTT{},
		TTS:      stubTTS{},
		NLU:      stubNLU{},
		Resolver: schedule.NewResolver(schedule.DefaultConfig(), nil, logger),
		Control:  callcontrol.NewNoop(logger),
	}, logger)
}

func TestHealthAndReadyRoutes(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rr.Code)
	}

	srv.SetDraining(true)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("draining readyz = %d", rr.Code)
	}
}

func TestOperatorEndpointsRequireKey(t *testing.T) {
	srv := newTestServer(t, "dispatch-key")
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/calls/CA1/confirm", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated confirm = %d", rr.Code)
	}

	confirmed := false
	defer srv.Tracker().Register("CA1", sessions.Handle{
		ConfirmBooking: func() error { confirmed = true; return nil },
	})()

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/calls/CA1/confirm", nil)
	req.Header.Set("X-Operator-Key", "dispatch-key")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !confirmed {
		t.Fatalf("confirm = %d confirmed = %v body = %s", rr.Code, confirmed, rr.Body.String())
	}
}

func TestUnknownRouteIsCanonical404(t *testing.T) {
	srv := newTestServer(t, "")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rr.Code)
	}
	var env struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if env.Error.Type != "not_found_error" {
		t.Errorf("type = %q", env.Error.Type)
	}
}

func TestMediaRouteRejectsPlainGETWhenDraining(t *testing.T) {
	srv := newTestServer(t, "")
	srv.SetDraining(true)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/media", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("draining media = %d", rr.Code)
	}
}
