package audio

import "sync"

// Buffer accumulates normalized PCM16 audio with a bounded maximum size.
// When the cap is exceeded the oldest audio is trimmed, so it always
// holds the most recent window.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
	format   Format
}

// NewBuffer creates a buffer that holds up to maxDurationMs of audio.
func NewBuffer(format Format, maxDurationMs int) *Buffer {
	maxBytes := format.PCM16BytesForDurationMs(maxDurationMs)
	return &Buffer{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
		format:   format,
	}
}

// Write appends audio, trimming from the front past the cap.
func (b *Buffer) Write(pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, pcm...)
	if len(b.data) > b.maxBytes {
		excess := len(b.data) - b.maxBytes
		b.data = b.data[excess:]
	}
}

// Bytes returns a copy of the buffered audio.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the buffered byte count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// DurationMs returns the buffered duration in milliseconds.
func (b *Buffer) DurationMs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format.PCM16DurationMs(len(b.data))
}

// Clear empties the buffer without releasing capacity.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// RMS returns the RMS energy of the buffered audio.
func (b *Buffer) RMS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return RMSEnergy(b.data)
}
