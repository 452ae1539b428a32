// Package protocol encodes and decodes the telephony media-stream wire
// format: newline-less JSON envelopes with an "event" discriminator,
// carrying base64 audio payloads.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// MediaFormat describes the negotiated stream audio shape.
type MediaFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sampleRate"`
	Channels     int    `json:"channels"`
}

// Connected is the first event on a new stream connection.
type Connected struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

// Start carries the call identity and media format. Exactly one per
// stream, before any media.
type Start struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// Media is one inbound audio frame.
type Media struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// Bytes decodes the base64 payload.
func (m Media) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, badRequest("media.payload is not valid base64", "payload")
	}
	return raw, nil
}

// DTMF is a keypad press.
type DTMF struct {
	Digit string `json:"digit"`
}

// Mark acknowledges that previously sent audio finished playing.
type Mark struct {
	Name string `json:"name"`
}

// Stop ends the stream.
type Stop struct {
	CallSID string `json:"callSid,omitempty"`
}

type inboundEnvelope struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`
	StreamSID      string `json:"streamSid,omitempty"`
	Start          *Start `json:"start,omitempty"`
	Media          *Media `json:"media,omitempty"`
	DTMF           *DTMF  `json:"dtmf,omitempty"`
	Mark           *Mark  `json:"mark,omitempty"`
	Stop           *Stop  `json:"stop,omitempty"`
	Protocol       string `json:"protocol,omitempty"`
	Version        string `json:"version,omitempty"`
}

// DecodeInbound parses one inbound stream event. Unknown event names
// and malformed envelopes come back as *DecodeError; the session drops
// the frame and continues.
func DecodeInbound(data []byte) (any, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	event := strings.TrimSpace(env.Event)
	if event == "" {
		return nil, badRequest("missing event", "event")
	}

	switch event {
	case "connected":
		return Connected{Protocol: env.Protocol, Version: env.Version}, nil
	case "start":
		if env.Start == nil {
			return nil, badRequest("start payload is required", "start")
		}
		msg := *env.Start
		if strings.TrimSpace(msg.StreamSID) == "" {
			msg.StreamSID = strings.TrimSpace(env.StreamSID)
		}
		if strings.TrimSpace(msg.StreamSID) == "" {
			return nil, badRequest("start.streamSid is required", "start.streamSid")
		}
		if strings.TrimSpace(msg.MediaFormat.Encoding) == "" {
			return nil, badRequest("start.mediaFormat.encoding is required", "start.mediaFormat.encoding")
		}
		if msg.MediaFormat.SampleRateHz <= 0 {
			return nil, badRequest("start.mediaFormat.sampleRate must be > 0", "start.mediaFormat.sampleRate")
		}
		return msg, nil
	case "media":
		if env.Media == nil {
			return nil, badRequest("media payload is required", "media")
		}
		if strings.TrimSpace(env.Media.Payload) == "" {
			return nil, badRequest("media.payload is required", "media.payload")
		}
		return *env.Media, nil
	case "dtmf":
		if env.DTMF == nil || strings.TrimSpace(env.DTMF.Digit) == "" {
			return nil, badRequest("dtmf.digit is required", "dtmf.digit")
		}
		return *env.DTMF, nil
	case "mark":
		if env.Mark == nil || strings.TrimSpace(env.Mark.Name) == "" {
			return nil, badRequest("mark.name is required", "mark.name")
		}
		return *env.Mark, nil
	case "stop":
		if env.Stop != nil {
			return *env.Stop, nil
		}
		return Stop{}, nil
	default:
		return nil, unsupported("unsupported event", "event")
	}
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundMark struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

type outboundSay struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Say       struct {
		Text string `json:"text"`
	} `json:"say"`
}

// EncodeMedia builds an outbound audio message.
func EncodeMedia(streamSID string, audio []byte) ([]byte, error) {
	msg := outboundMedia{Event: "media", StreamSID: streamSID}
	msg.Media.Payload = base64.StdEncoding.EncodeToString(audio)
	return json.Marshal(msg)
}

// EncodeMark builds a playback mark: the transport echoes it back once
// all audio queued before it has played.
func EncodeMark(streamSID, name string) ([]byte, error) {
	msg := outboundMark{Event: "mark", StreamSID: streamSID}
	msg.Mark.Name = name
	return json.Marshal(msg)
}

// EncodeClear builds a clear message that drops queued outbound audio.
func EncodeClear(streamSID string) ([]byte, error) {
	return json.Marshal(outboundClear{Event: "clear", StreamSID: streamSID})
}

// EncodeSay builds a plain speech directive, the fallback used when
// synthesis fails so the call is never silent.
func EncodeSay(streamSID, text string) ([]byte, error) {
	msg := outboundSay{Event: "say", StreamSID: streamSID}
	msg.Say.Text = text
	return json.Marshal(msg)
}
