package vad

import (
	"time"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/audio"
)

// Config holds the segmentation timing and energy rules.
type Config struct {
	// FrameDuration is the fixed per-frame duration. Default: 20ms.
	FrameDuration time.Duration

	// MinSpeechDuration is the shortest classified-speech run that is
	// emitted as a segment; shorter runs are discarded as noise.
	MinSpeechDuration time.Duration

	// SilenceTimeout is how long after the last speech frame a segment
	// is considered finished.
	SilenceTimeout time.Duration

	// MaxSegmentDuration is the hard cap on one segment in ordinary
	// dialog turns; the segment is force-flushed when reached.
	MaxSegmentDuration time.Duration

	// MaxLongSegmentDuration is the cap used while the dialog is
	// collecting a free-form problem description.
	MaxLongSegmentDuration time.Duration

	// PrerollWindow is the span after stream start during which a
	// speech-classified frame must also clear PrerollMinRMS to start a
	// segment. Filters line noise at call setup.
	PrerollWindow time.Duration

	// PrerollMinRMS is the minimum frame energy to start a segment
	// inside the preroll window.
	PrerollMinRMS float64

	// FallbackDuration is how much idle-time audio accumulates before
	// the time-based fallback emits it as a segment.
	FallbackDuration time.Duration

	// FallbackDebounce is the minimum spacing between a fallback
	// emission and any prior emission (VAD or fallback).
	FallbackDebounce time.Duration
}

// DefaultConfig returns segmentation defaults tuned for 8 kHz telephony.
func DefaultConfig() Config {
	return Config{
		FrameDuration:          20 * time.Millisecond,
		MinSpeechDuration:      400 * time.Millisecond,
		SilenceTimeout:         1500 * time.Millisecond,
		MaxSegmentDuration:     15 * time.Second,
		MaxLongSegmentDuration: 30 * time.Second,
		PrerollWindow:          1 * time.Second,
		PrerollMinRMS:          0.015,
		FallbackDuration:       6 * time.Second,
		FallbackDebounce:       4 * time.Second,
	}
}

// Segment is one bounded span of caller speech. It is a value handed to
// the transcription step and never retained afterward.
type Segment struct {
	PCM16    []byte
	Duration time.Duration
	RMS      float64
	Fallback bool
}

// Counters tracks segmentation outcomes for logging.
type Counters struct {
	Emitted        int
	FallbackEmits  int
	DiscardedShort int
}

// Segmenter is the per-call segmentation state machine. It is not
// goroutine-safe: the owning call session must serialize all calls.
type Segmenter struct {
	cfg    Config
	format audio.Format
	clf    Classifier

	speaking        bool
	streamStartedAt time.Time
	speechStartedAt time.Time
	lastSpeechAt    time.Time

	pending  *audio.Buffer
	fallback *audio.Buffer

	lastVADEmit      time.Time
	lastFallbackEmit time.Time

	longCap  bool
	counters Counters
}

// New creates a segmenter for one call.
func New(cfg Config, format audio.Format, clf Classifier) *Segmenter {
	pendingCap := int(cfg.MaxLongSegmentDuration/time.Millisecond) + 1000
	fallbackCap := int(cfg.FallbackDuration/time.Millisecond) + 1000
	return &Segmenter{
		cfg:      cfg,
		format:   format,
		clf:      clf,
		pending:  audio.NewBuffer(format, pendingCap),
		fallback: audio.NewBuffer(format, fallbackCap),
	}
}

// SetLongSegmentCap switches between the ordinary and the long forced
// flush cap. The dialog enables it while asking for problem details.
func (s *Segmenter) SetLongSegmentCap(on bool) {
	s.longCap = on
}

// Counters returns segmentation outcome counts.
func (s *Segmenter) Counters() Counters {
	return s.counters
}

// Speaking reports whether the segmenter is mid-segment.
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// BufferGated records audio received while the turn gate is armed. The
// frame feeds the continuity buffer only: no classification, no state
// transitions, no emission.
func (s *Segmenter) BufferGated(pcm []byte, now time.Time) {
	if s.streamStartedAt.IsZero() {
		s.streamStartedAt = now
	}
	s.fallback.Write(pcm)
}

// DiscardPending drops any in-progress segment. Called when the turn
// gate disarms: audio accumulated under the gate is not a reliable
// caller turn.
func (s *Segmenter) DiscardPending() {
	s.speaking = false
	s.pending.Clear()
}

// ProcessFrame advances the state machine by one 20ms frame and returns
// any segments that became ready (a silence-closed segment, a forced
// flush, or a time-based fallback emission).
func (s *Segmenter) ProcessFrame(pcm []byte, now time.Time) []Segment {
	if s.streamStartedAt.IsZero() {
		s.streamStartedAt = now
	}

	var out []Segment

	isSpeech := s.clf.IsSpeech(pcm, s.format.SampleRateHz)

	// Preroll suppression: early in the stream, a speech-classified
	// frame must also carry real energy to open a segment.
	if isSpeech && !s.speaking && now.Sub(s.streamStartedAt) < s.cfg.PrerollWindow {
		if audio.RMSEnergy(pcm) < s.cfg.PrerollMinRMS {
			isSpeech = false
		}
	}

	if isSpeech {
		if !s.speaking {
			s.speaking = true
			s.speechStartedAt = now
			s.pending.Clear()
		}
		s.pending.Write(pcm)
		s.lastSpeechAt = now
	} else if s.speaking {
		// Tolerate brief pauses: keep accumulating until the silence
		// timeout closes the segment.
		s.pending.Write(pcm)
		if now.Sub(s.lastSpeechAt) >= s.cfg.SilenceTimeout {
			if seg := s.closeSegment(now); seg != nil {
				out = append(out, *seg)
			}
		}
	} else {
		s.fallback.Write(pcm)
	}

	// Forced flush bounds memory and latency even if the caller never
	// pauses.
	if s.speaking && now.Sub(s.speechStartedAt) >= s.segmentCap() {
		seg := s.emit(s.pending.Bytes(), now, false)
		s.speaking = false
		s.pending.Clear()
		out = append(out, seg)
	}

	if seg := s.checkFallback(now); seg != nil {
		out = append(out, *seg)
	}

	return out
}

// Flush closes any in-progress segment at call teardown, applying the
// minimum-duration rule.
func (s *Segmenter) Flush(now time.Time) *Segment {
	if !s.speaking {
		return nil
	}
	seg := s.closeSegment(now)
	return seg
}

func (s *Segmenter) segmentCap() time.Duration {
	if s.longCap {
		return s.cfg.MaxLongSegmentDuration
	}
	return s.cfg.MaxSegmentDuration
}

// closeSegment ends the current speech run. Audio past the last speech
// frame is trimmed so the emitted segment covers the spoken span, not
// the closing silence.
func (s *Segmenter) closeSegment(now time.Time) *Segment {
	speechSpan := s.lastSpeechAt.Sub(s.speechStartedAt) + s.cfg.FrameDuration
	s.speaking = false

	if speechSpan < s.cfg.MinSpeechDuration {
		s.counters.DiscardedShort++
		s.pending.Clear()
		return nil
	}

	data := s.pending.Bytes()
	keep := s.format.PCM16BytesForDurationMs(int(speechSpan / time.Millisecond))
	if keep < len(data) {
		data = data[:keep]
	}
	s.pending.Clear()

	seg := s.emit(data, now, false)
	return &seg
}

func (s *Segmenter) emit(data []byte, now time.Time, fallback bool) Segment {
	if fallback {
		s.lastFallbackEmit = now
		s.counters.FallbackEmits++
	} else {
		s.lastVADEmit = now
		s.counters.Emitted++
		// Avoid double-processing the same audio through the fallback.
		s.fallback.Clear()
	}
	return Segment{
		PCM16:    data,
		Duration: time.Duration(s.format.PCM16DurationMs(len(data))) * time.Millisecond,
		RMS:      audio.RMSEnergy(data),
		Fallback: fallback,
	}
}

// checkFallback recovers utterances the frame classifier failed to flag
// as speech: idle-time audio past the configured duration is emitted as
// a segment, debounced against recent emissions of either kind.
func (s *Segmenter) checkFallback(now time.Time) *Segment {
	if s.speaking {
		return nil
	}
	if s.fallback.DurationMs() < int(s.cfg.FallbackDuration/time.Millisecond) {
		return nil
	}
	if !s.lastVADEmit.IsZero() && now.Sub(s.lastVADEmit) < s.cfg.FallbackDebounce {
		return nil
	}
	if !s.lastFallbackEmit.IsZero() && now.Sub(s.lastFallbackEmit) < s.cfg.FallbackDebounce {
		return nil
	}

	data := s.fallback.Bytes()
	s.fallback.Clear()
	seg := s.emit(data, now, true)
	return &seg
}
