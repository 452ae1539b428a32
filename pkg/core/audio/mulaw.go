package audio

import (
	"fmt"
	"strings"
)

// DecodeError marks a malformed media frame. Callers drop the frame and
// keep the call alive; it is never a session-fatal condition.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func decodeErr(code, format string, args ...any) *DecodeError {
	return &DecodeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// mulawToPCM16 is the G.711 mu-law expansion table, computed once at init.
var mulawToPCM16 [256]int16

func init() {
	for i := 0; i < 256; i++ {
		mulawToPCM16[i] = expandMulaw(byte(i))
	}
}

// expandMulaw reconstructs a 16-bit linear sample from one mu-law byte:
// invert bits, split sign/exponent/mantissa, rebuild with the 33-step
// bias, clamp to int16 range.
func expandMulaw(b byte) int16 {
	const bias = 0x84

	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := (int32(mantissa)<<3 + bias) << exponent
	sample -= bias

	if sign != 0 {
		sample = -sample
	}
	if sample > 32767 {
		sample = 32767
	}
	if sample < -32768 {
		sample = -32768
	}
	return int16(sample)
}

// DecodeMulaw expands mu-law bytes to PCM16 little-endian, producing two
// output bytes per input byte.
func DecodeMulaw(frame []byte) []byte {
	out := make([]byte, len(frame)*2)
	for i, b := range frame {
		sample := mulawToPCM16[b]
		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out
}

// Normalize converts one inbound media frame into the internal PCM16
// representation. It is a pure function: no per-call state is touched.
func Normalize(format Format, frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, decodeErr("empty_frame", "empty media frame")
	}

	switch format.Encoding {
	case EncodingMulaw:
		return DecodeMulaw(frame), nil
	case EncodingPCM16:
		if len(frame)%2 != 0 {
			return nil, decodeErr("odd_length", "pcm16 frame has odd length %d", len(frame))
		}
		return frame, nil
	default:
		return nil, decodeErr("unsupported_encoding", "unsupported encoding %q", strings.TrimSpace(string(format.Encoding)))
	}
}

// ParseEncoding maps media-stream encoding names onto internal encodings.
// Twilio-style MIME names and bare names are both accepted.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mulaw", "ulaw", "audio/x-mulaw", "audio/basic":
		return EncodingMulaw, nil
	case "pcm16", "l16", "audio/x-l16", "audio/l16":
		return EncodingPCM16, nil
	default:
		return "", decodeErr("unsupported_encoding", "unsupported encoding %q", strings.TrimSpace(name))
	}
}
