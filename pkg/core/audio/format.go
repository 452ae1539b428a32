// Package audio provides the telephony audio primitives shared by the
// call engine: codec normalization, frame energy, bounded buffers, and
// WAV framing for transcription uploads.
package audio

// Encoding identifies the wire encoding of inbound media frames.
type Encoding string

const (
	// EncodingMulaw is 8-bit mu-law, the standard PSTN telephony codec.
	EncodingMulaw Encoding = "mulaw"
	// EncodingPCM16 is 16-bit little-endian linear PCM.
	EncodingPCM16 Encoding = "pcm16"
)

// Format describes a call's negotiated audio shape. It is set once from
// the media stream's start event and read-only afterward.
type Format struct {
	Encoding     Encoding `json:"encoding"`
	SampleRateHz int      `json:"sample_rate_hz"`
	Channels     int      `json:"channels"`
}

// DefaultFormat returns the standard telephony format: mu-law at 8 kHz mono.
func DefaultFormat() Format {
	return Format{
		Encoding:     EncodingMulaw,
		SampleRateHz: 8000,
		Channels:     1,
	}
}

// PCM16BytesPerSecond returns the byte rate of the normalized PCM16 stream.
func (f Format) PCM16BytesPerSecond() int {
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	return f.SampleRateHz * channels * 2
}

// PCM16DurationMs returns the duration of a normalized PCM16 byte count.
func (f Format) PCM16DurationMs(bytes int) int {
	bps := f.PCM16BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return (bytes * 1000) / bps
}

// PCM16BytesForDurationMs returns the normalized PCM16 byte count for a duration.
func (f Format) PCM16BytesForDurationMs(ms int) int {
	return (f.PCM16BytesPerSecond() * ms) / 1000
}
