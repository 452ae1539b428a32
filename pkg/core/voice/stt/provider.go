// Package stt transcribes caller speech segments.
package stt

import "context"

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts one PCM16 speech segment to text.
	Transcribe(ctx context.Context, pcm []byte, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Language     string // ISO language code (default: "en")
	SampleRateHz int    // PCM sample rate (default: 8000)
}

// Transcript is the result of transcription.
type Transcript struct {
	Text       string  // Full transcribed text
	Confidence float64 // Recognizer confidence in [0,1]
	Duration   float64 // Audio duration in seconds
}
