// Package vad turns a continuous stream of normalized PCM16 frames into
// bounded speech segments using a frame-level speech classifier plus
// timing and energy rules.
package vad

import "github.com/dispatchvoice/dispatchvoice/pkg/core/audio"

// Classifier decides whether a single audio frame contains speech.
// Implementations may be local energy heuristics or external models.
type Classifier interface {
	IsSpeech(pcm []byte, sampleRateHz int) bool
}

// EnergyClassifier is a pure-Go frame classifier based on RMS energy.
// Telephony speech at normal levels sits well above line noise, so a
// single threshold works as the default; model-backed classifiers can
// be plugged in through the Classifier interface.
type EnergyClassifier struct {
	Threshold float64
}

// NewEnergyClassifier returns a classifier suitable for 8 kHz 20 ms frames.
func NewEnergyClassifier(threshold float64) *EnergyClassifier {
	if threshold <= 0 {
		threshold = 0.012
	}
	return &EnergyClassifier{Threshold: threshold}
}

// IsSpeech implements Classifier.
func (c *EnergyClassifier) IsSpeech(pcm []byte, sampleRateHz int) bool {
	return audio.RMSEnergy(pcm) >= c.Threshold
}
