package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesize_SendsRequestAndReturnsAudio(t *testing.T) {
	want := bytes.Repeat([]byte{0xFF}, 1600)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize" {
			t.Errorf("path = %q, want /v1/synthesize", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "What time works for you?" {
			t.Errorf("text = %q", req.Text)
		}
		if req.Encoding != "mulaw" || req.SampleRateHz != 8000 {
			t.Errorf("format = %s/%d, want mulaw/8000", req.Encoding, req.SampleRateHz)
		}
		w.Write(want)
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, "test-key")
	got, err := p.Synthesize(context.Background(), "What time works for you?", SynthesizeOptions{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !bytes.Equal(got.Audio, want) {
		t.Errorf("audio mismatch: got %d bytes", len(got.Audio))
	}
	if got.Encoding != "mulaw" || got.SampleRateHz != 8000 {
		t.Errorf("result format = %s/%d", got.Encoding, got.SampleRateHz)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTP(srv.URL, "test-key")
	if _, err := p.Synthesize(context.Background(), "hello", SynthesizeOptions{}); err == nil {
		t.Fatal("expected error on 400")
	}
	if _, err := p.Synthesize(context.Background(), "", SynthesizeOptions{}); err == nil {
		t.Fatal("expected error on empty text")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()
	p2 := NewHTTP(empty.URL, "test-key")
	if _, err := p2.Synthesize(context.Background(), "hello", SynthesizeOptions{}); err == nil {
		t.Fatal("expected error on empty audio body")
	}
}
