package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/apierror"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/lifecycle"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/sessions"
)

func decisionMux(tracker *sessions.Tracker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /calls/{callSid}/confirm", CallDecisionHandler{Tracker: tracker, Confirm: true})
	mux.Handle("POST /calls/{callSid}/reject", CallDecisionHandler{Tracker: tracker})
	return mux
}

func TestConfirmReachesLiveCall(t *testing.T) {
	tracker := sessions.NewTracker()
	confirmed := false
	defer tracker.Register("CA1", sessions.Handle{
		ConfirmBooking: func() error { confirmed = true; return nil },
	})()

	rr := httptest.NewRecorder()
	decisionMux(tracker).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/calls/CA1/confirm", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rr.Code, rr.Body.String())
	}
	if !confirmed {
		t.Fatal("confirm never reached the call")
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["decision"] != "confirmed" || body["callSid"] != "CA1" {
		t.Errorf("body = %v", body)
	}
}

func TestRejectReachesLiveCall(t *testing.T) {
	tracker := sessions.NewTracker()
	rejected := false
	defer tracker.Register("CA1", sessions.Handle{
		RejectBooking: func() error { rejected = true; return nil },
	})()

	rr := httptest.NewRecorder()
	decisionMux(tracker).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/calls/CA1/reject", nil))

	if rr.Code != http.StatusOK || !rejected {
		t.Fatalf("code = %d rejected = %v", rr.Code, rejected)
	}
}

func TestDecisionOnUnknownCallIs404(t *testing.T) {
	rr := httptest.NewRecorder()
	decisionMux(sessions.NewTracker()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/calls/CA404/confirm", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rr.Code)
	}
	var env apierror.Envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil || env.Error == nil {
		t.Fatalf("envelope = %+v (%v)", env.Error, err)
	}
	if env.Error.Type != apierror.ErrNotFound {
		t.Errorf("type = %q", env.Error.Type)
	}
}

func TestDecisionConflictWhenNothingHeld(t *testing.T) {
	tracker := sessions.NewTracker()
	defer tracker.Register("CA1", sessions.Handle{
		ConfirmBooking: func() error { return fmt.Errorf("no booking awaiting confirmation") },
	})()

	rr := httptest.NewRecorder()
	decisionMux(tracker).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/calls/CA1/confirm", nil))

	if rr.Code != http.StatusConflict {
		t.Fatalf("code = %d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}

	lc := &lifecycle.Lifecycle{}
	tracker := sessions.NewTracker()
	defer tracker.Register("CA1", sessions.Handle{})()

	ready := ReadyHandler{Lifecycle: lc, Tracker: tracker}

	rr = httptest.NewRecorder()
	ready.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rr.Code)
	}
	var body struct {
		OK          bool `json:"ok"`
		ActiveCalls int  `json:"active_calls"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.ActiveCalls != 1 {
		t.Errorf("body = %+v", body)
	}

	lc.SetDraining(true)
	rr = httptest.NewRecorder()
	ready.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("draining readyz = %d", rr.Code)
	}
	var drainBody struct {
		Draining      bool   `json:"draining"`
		DrainingSince string `json:"draining_since"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&drainBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !drainBody.Draining || drainBody.DrainingSince == "" {
		t.Errorf("drain body = %+v", drainBody)
	}
}
