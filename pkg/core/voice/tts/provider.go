// Package tts renders agent prompts as telephone audio.
package tts

import "context"

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice        string  // Voice identifier
	Speed        float64 // Speed multiplier (0.6-1.5, default 1.0)
	Encoding     string  // Output encoding (default: "mulaw")
	SampleRateHz int     // Output sample rate (default: 8000)
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio        []byte // Audio data in the requested encoding
	Encoding     string // Audio encoding
	SampleRateHz int    // Audio sample rate
}
