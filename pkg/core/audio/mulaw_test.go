package audio

import (
	"errors"
	"testing"
)

func TestDecodeMulawLength(t *testing.T) {
	in := []byte{0x00, 0x7F, 0x80, 0xFF}
	out := DecodeMulaw(in)
	if len(out) != len(in)*2 {
		t.Fatalf("expected %d bytes, got %d", len(in)*2, len(out))
	}
}

func TestDecodeMulawKnownValues(t *testing.T) {
	// 0xFF and 0x7F both encode digital silence; 0x80/0x00 are the
	// loudest positive/negative codes.
	cases := []struct {
		in   byte
		want int16
	}{
		{0xFF, 0},
		{0x7F, 0},
		{0x80, 32124},
		{0x00, -32124},
	}
	for _, tc := range cases {
		out := DecodeMulaw([]byte{tc.in})
		got := int16(out[0]) | int16(out[1])<<8
		if got != tc.want {
			t.Errorf("DecodeMulaw(%#x) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDecodeMulawSignSymmetry(t *testing.T) {
	// Flipping the sign bit negates the reconstructed sample.
	for i := 0; i < 128; i++ {
		neg := DecodeMulaw([]byte{byte(i)})
		pos := DecodeMulaw([]byte{byte(i) | 0x80})
		n := int16(neg[0]) | int16(neg[1])<<8
		p := int16(pos[0]) | int16(pos[1])<<8
		if n != -p {
			t.Fatalf("byte %#x: negative %d is not mirror of positive %d", i, n, p)
		}
	}
}

func TestNormalizePassthrough(t *testing.T) {
	format := Format{Encoding: EncodingPCM16, SampleRateHz: 8000, Channels: 1}
	frame := []byte{0x01, 0x02, 0x03, 0x04}
	out, err := Normalize(format, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(frame) {
		t.Fatalf("pcm16 passthrough changed length: %d != %d", len(out), len(frame))
	}
}

func TestNormalizeRejectsOddPCM16(t *testing.T) {
	format := Format{Encoding: EncodingPCM16, SampleRateHz: 8000, Channels: 1}
	_, err := Normalize(format, []byte{0x01, 0x02, 0x03})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Code != "odd_length" {
		t.Errorf("expected odd_length code, got %q", de.Code)
	}
}

func TestNormalizeRejectsEmptyFrame(t *testing.T) {
	_, err := Normalize(DefaultFormat(), nil)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestNormalizeRejectsUnknownEncoding(t *testing.T) {
	format := Format{Encoding: "opus", SampleRateHz: 48000, Channels: 1}
	if _, err := Normalize(format, []byte{1}); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestParseEncoding(t *testing.T) {
	cases := []struct {
		name string
		want Encoding
		ok   bool
	}{
		{"audio/x-mulaw", EncodingMulaw, true},
		{"audio/basic", EncodingMulaw, true},
		{"mulaw", EncodingMulaw, true},
		{"ULAW", EncodingMulaw, true},
		{"audio/l16", EncodingPCM16, true},
		{"audio/x-l16", EncodingPCM16, true},
		{"pcm16", EncodingPCM16, true},
		{"opus", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseEncoding(tc.name)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseEncoding(%q) = %v, %v; want %v", tc.name, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseEncoding(%q) expected error", tc.name)
		}
	}
}
