package vad

import (
	"testing"
	"time"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/audio"
)

// scriptClassifier returns a scripted speech/silence decision per frame.
type scriptClassifier struct {
	script []bool
	idx    int
}

func (c *scriptClassifier) IsSpeech(pcm []byte, sampleRateHz int) bool {
	if c.idx >= len(c.script) {
		return false
	}
	v := c.script[c.idx]
	c.idx++
	return v
}

func testFormat() audio.Format {
	return audio.Format{Encoding: audio.EncodingPCM16, SampleRateHz: 8000, Channels: 1}
}

// loudFrame is a 20ms frame with enough energy to clear any RMS gate.
func loudFrame() []byte {
	frame := make([]byte, 320)
	for i := 0; i < len(frame); i += 2 {
		frame[i] = 0x00
		frame[i+1] = 0x20 // ~0.25 amplitude
	}
	return frame
}

func quietFrame() []byte {
	return make([]byte, 320)
}

func script(speech, silence int) []bool {
	s := make([]bool, 0, speech+silence)
	for i := 0; i < speech; i++ {
		s = append(s, true)
	}
	for i := 0; i < silence; i++ {
		s = append(s, false)
	}
	return s
}

func runFrames(t *testing.T, seg *Segmenter, frames int, frame []byte, start time.Time) []Segment {
	t.Helper()
	var out []Segment
	now := start
	for i := 0; i < frames; i++ {
		out = append(out, seg.ProcessFrame(frame, now)...)
		now = now.Add(20 * time.Millisecond)
	}
	return out
}

func TestSegmenterEmitsAfterSilenceTimeout(t *testing.T) {
	// 30 frames (600ms) speech then 80 frames (1.6s) silence with
	// MinSpeechDuration=400ms, SilenceTimeout=1.5s: exactly one ~600ms
	// segment, emitted once the silence threshold is crossed.
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 400 * time.Millisecond
	cfg.SilenceTimeout = 1500 * time.Millisecond
	cfg.PrerollWindow = 0

	clf := &scriptClassifier{script: script(30, 80)}
	seg := New(cfg, testFormat(), clf)

	start := time.Unix(1700000000, 0)
	segments := runFrames(t, seg, 110, loudFrame(), start)

	if len(segments) != 1 {
		t.Fatalf("expected exactly 1 segment, got %d", len(segments))
	}
	got := segments[0].Duration
	if got < 580*time.Millisecond || got > 620*time.Millisecond {
		t.Errorf("segment duration = %v, want ~600ms", got)
	}
	if segments[0].Fallback {
		t.Error("expected a VAD segment, not a fallback emission")
	}
}

func TestSegmenterDiscardsShortRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 400 * time.Millisecond
	cfg.SilenceTimeout = 500 * time.Millisecond
	cfg.PrerollWindow = 0
	cfg.FallbackDuration = time.Hour

	// 5 frames (100ms) of speech is below the 400ms floor.
	clf := &scriptClassifier{script: script(5, 50)}
	seg := New(cfg, testFormat(), clf)

	segments := runFrames(t, seg, 55, loudFrame(), time.Unix(1700000000, 0))
	if len(segments) != 0 {
		t.Fatalf("expected short run discarded, got %d segments", len(segments))
	}
	if seg.Counters().DiscardedShort != 1 {
		t.Errorf("expected 1 discarded-short, got %d", seg.Counters().DiscardedShort)
	}
}

func TestSegmenterToleratesBriefPause(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 200 * time.Millisecond
	cfg.SilenceTimeout = 1 * time.Second
	cfg.PrerollWindow = 0
	cfg.FallbackDuration = time.Hour

	// speech, 400ms pause (below timeout), more speech, then real silence:
	// one segment spanning both speech runs.
	var sc []bool
	sc = append(sc, script(20, 20)...)
	sc = append(sc, script(20, 60)...)
	clf := &scriptClassifier{script: sc}
	seg := New(cfg, testFormat(), clf)

	segments := runFrames(t, seg, len(sc), loudFrame(), time.Unix(1700000000, 0))
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment spanning the pause, got %d", len(segments))
	}
	// 20 speech + 20 pause + 20 speech = 1200ms span
	if segments[0].Duration < 1100*time.Millisecond || segments[0].Duration > 1300*time.Millisecond {
		t.Errorf("segment duration = %v, want ~1200ms", segments[0].Duration)
	}
}

func TestSegmenterForcedFlush(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 200 * time.Millisecond
	cfg.MaxSegmentDuration = 2 * time.Second
	cfg.PrerollWindow = 0
	cfg.FallbackDuration = time.Hour

	// Caller never pauses: 200 frames (4s) of continuous speech.
	clf := &scriptClassifier{script: script(200, 0)}
	seg := New(cfg, testFormat(), clf)

	segments := runFrames(t, seg, 200, loudFrame(), time.Unix(1700000000, 0))
	if len(segments) < 1 {
		t.Fatal("expected forced flush to emit at least one segment")
	}
	if segments[0].Duration > 2100*time.Millisecond {
		t.Errorf("first flush duration = %v, want <= cap", segments[0].Duration)
	}
}

func TestSegmenterLongCapWhileCollectingDetails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 200 * time.Millisecond
	cfg.MaxSegmentDuration = 1 * time.Second
	cfg.MaxLongSegmentDuration = 4 * time.Second
	cfg.PrerollWindow = 0
	cfg.FallbackDuration = time.Hour

	clf := &scriptClassifier{script: script(100, 0)} // 2s continuous
	seg := New(cfg, testFormat(), clf)
	seg.SetLongSegmentCap(true)

	segments := runFrames(t, seg, 100, loudFrame(), time.Unix(1700000000, 0))
	if len(segments) != 0 {
		t.Fatalf("expected no flush under the long cap at 2s, got %d", len(segments))
	}
}

func TestSegmenterPrerollSuppression(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 100 * time.Millisecond
	cfg.SilenceTimeout = 400 * time.Millisecond
	cfg.PrerollWindow = 2 * time.Second
	cfg.PrerollMinRMS = 0.1
	cfg.FallbackDuration = time.Hour

	// Classifier says speech, but the frames are quiet line noise
	// inside the preroll window: no segment may start.
	clf := &scriptClassifier{script: script(30, 40)}
	seg := New(cfg, testFormat(), clf)

	segments := runFrames(t, seg, 70, quietFrame(), time.Unix(1700000000, 0))
	if len(segments) != 0 {
		t.Fatalf("expected preroll suppression, got %d segments", len(segments))
	}
}

func TestSegmenterFallbackEmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackDuration = 2 * time.Second
	cfg.FallbackDebounce = 1 * time.Second
	cfg.PrerollWindow = 0

	// Classifier never flags speech; the fallback recovers the audio.
	clf := &scriptClassifier{script: script(0, 200)}
	seg := New(cfg, testFormat(), clf)

	segments := runFrames(t, seg, 200, loudFrame(), time.Unix(1700000000, 0))
	if len(segments) == 0 {
		t.Fatal("expected fallback emission for unclassified audio")
	}
	if !segments[0].Fallback {
		t.Error("expected segment marked as fallback")
	}
	if segments[0].Duration < 1900*time.Millisecond {
		t.Errorf("fallback duration = %v, want >= ~2s", segments[0].Duration)
	}
}

func TestSegmenterVADEmitClearsFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 200 * time.Millisecond
	cfg.SilenceTimeout = 400 * time.Millisecond
	cfg.FallbackDuration = 1 * time.Second
	cfg.FallbackDebounce = 10 * time.Second
	cfg.PrerollWindow = 0

	// Idle noise accumulates, then a VAD segment emits; the fallback
	// buffer must be cleared so the same audio is not emitted twice.
	var sc []bool
	sc = append(sc, script(0, 40)...) // 800ms idle noise
	sc = append(sc, script(30, 30)...)
	clf := &scriptClassifier{script: sc}
	seg := New(cfg, testFormat(), clf)

	segments := runFrames(t, seg, len(sc), loudFrame(), time.Unix(1700000000, 0))
	for _, s := range segments {
		if s.Fallback {
			t.Fatal("fallback emitted despite debounce after VAD emission")
		}
	}
	if len(segments) != 1 {
		t.Fatalf("expected exactly the VAD segment, got %d", len(segments))
	}
}

func TestSegmenterGatedAudioNeverEmits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrerollWindow = 0
	clf := &scriptClassifier{script: script(200, 0)}
	seg := New(cfg, testFormat(), clf)

	// All audio arrives while the gate is armed: zero segments.
	now := time.Unix(1700000000, 0)
	for i := 0; i < 200; i++ {
		seg.BufferGated(loudFrame(), now)
		now = now.Add(20 * time.Millisecond)
	}
	if seg.Speaking() {
		t.Error("gated audio must not open a segment")
	}
	if got := seg.Counters().Emitted + seg.Counters().FallbackEmits; got != 0 {
		t.Errorf("expected zero emissions under gate, got %d", got)
	}
}

func TestSegmenterFlushAtTeardown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDuration = 200 * time.Millisecond
	cfg.PrerollWindow = 0

	clf := &scriptClassifier{script: script(30, 0)}
	seg := New(cfg, testFormat(), clf)

	start := time.Unix(1700000000, 0)
	runFrames(t, seg, 30, loudFrame(), start)

	flushed := seg.Flush(start.Add(600 * time.Millisecond))
	if flushed == nil {
		t.Fatal("expected partial speech flushed at teardown")
	}

	// A too-short run is discarded instead.
	clf2 := &scriptClassifier{script: script(3, 0)}
	seg2 := New(cfg, testFormat(), clf2)
	runFrames(t, seg2, 3, loudFrame(), start)
	if seg2.Flush(start.Add(60*time.Millisecond)) != nil {
		t.Error("expected short partial speech discarded at teardown")
	}
}

func TestEnergyClassifier(t *testing.T) {
	clf := NewEnergyClassifier(0.05)
	if clf.IsSpeech(quietFrame(), 8000) {
		t.Error("silence classified as speech")
	}
	if !clf.IsSpeech(loudFrame(), 8000) {
		t.Error("loud frame classified as silence")
	}
}
