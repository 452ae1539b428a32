// Package session runs one phone call: it owns the media stream socket,
// feeds inbound audio through normalization and segmentation, drives
// the dialog machine off transcripts, and plays synthesized prompts
// back down the line.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/audio"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/dialog"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/vad"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/stt"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/voice/tts"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/callcontrol"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/protocol"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/sessions"
)

const (
	outboundPriorityQueueSize = 8

	// mediaChunkBytes is ~100ms of mu-law at 8kHz per outbound frame.
	mediaChunkBytes = 800

	// preStartFrameCap bounds media buffered before the start event.
	preStartFrameCap = 50
)

var errBackpressure = errors.New("outbound backpressure")

type Config struct {
	HandshakeTimeout time.Duration
	WatchdogTimeout  time.Duration
	MaxCallDuration  time.Duration
	TurnTimeout      time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration

	MaxAudioFrameBytes      int
	MaxJSONMessageBytes     int64
	MaxAudioFramesPerSecond int
	MaxAudioBytesPerSecond  int64
	InboundBurstSeconds     int

	GateCharsPerSecond float64
	GateMaxDuration    time.Duration
	GatePadding        time.Duration

	OutboundQueueSize  int
	VADEnergyThreshold float64
	VAD                vad.Config

	TTSVoice string
}

type Dependencies struct {
	Conn    *websocket.Conn
	Logger  *slog.Logger
	STT     stt.Provider
	TTS     tts.Provider
	Machine *dialog.Machine
	Control callcontrol.Controller
	Tracker *sessions.Tracker
	Config  Config
	Now     func() time.Time
}

// CallSession is one live call. Run owns all mutable state; the only
// cross-goroutine entry points are Cancel and the operator decisions,
// which are funneled into the run loop over a channel.
type CallSession struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	sttProv stt.Provider
	ttsProv tts.Provider
	machine *dialog.Machine
	control callcontrol.Controller
	tracker *sessions.Tracker
	cfg     Config
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame
	operatorCh       chan operatorOp
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type turnResult struct {
	effect dialog.Effect
	ok     bool
	err    error
}

type synthResult struct {
	markName string
	text     string
	audio    []byte
	effect   dialog.Effect
	err      error
}

type operatorOp struct {
	confirm bool
	resp    chan error
}

func New(deps Dependencies) (*CallSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.STT == nil {
		return nil, fmt.Errorf("stt provider is required")
	}
	if deps.Machine == nil {
		return nil, fmt.Errorf("dialog machine is required")
	}
	if deps.Control == nil {
		return nil, fmt.Errorf("call controller is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.HandshakeTimeout <= 0 {
		deps.Config.HandshakeTimeout = 5 * time.Second
	}
	if deps.Config.WatchdogTimeout <= 0 {
		deps.Config.WatchdogTimeout = 30 * time.Second
	}
	if deps.Config.MaxCallDuration <= 0 {
		deps.Config.MaxCallDuration = 30 * time.Minute
	}
	if deps.Config.TurnTimeout <= 0 {
		deps.Config.TurnTimeout = 15 * time.Second
	}
	if deps.Config.VADEnergyThreshold <= 0 {
		deps.Config.VADEnergyThreshold = 0.012
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CallSession{
		conn:             deps.Conn,
		logger:           deps.Logger,
		sttProv:          deps.STT,
		ttsProv:          deps.TTS,
		machine:          deps.Machine,
		control:          deps.Control,
		tracker:          deps.Tracker,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		operatorCh:       make(chan operatorOp, 2),
	}, nil
}

// Cancel tears the session down from outside, e.g. server shutdown.
func (s *CallSession) Cancel() {
	s.cancel()
}

// OperatorConfirm applies the dispatcher's approval of the held slot.
func (s *CallSession) OperatorConfirm() error {
	return s.operatorDecision(true)
}

// OperatorReject applies the dispatcher declining the held slot.
func (s *CallSession) OperatorReject() error {
	return s.operatorDecision(false)
}

func (s *CallSession) operatorDecision(confirm bool) error {
	op := operatorOp{confirm: confirm, resp: make(chan error, 1)}
	select {
	case s.operatorCh <- op:
	case <-s.ctx.Done():
		return fmt.Errorf("call is no longer live")
	case <-time.After(2 * time.Second):
		return fmt.Errorf("call is not accepting operator decisions")
	}
	select {
	case err := <-op.resp:
		return err
	case <-s.ctx.Done():
		return fmt.Errorf("call ended before the decision applied")
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out applying operator decision")
	}
}

// runState is the per-call mutable state owned by the Run goroutine.
type runState struct {
	started   bool
	format    audio.Format
	streamSID string
	callSID   string

	seg  *vad.Segmenter
	gate *turnGate

	preStart [][]byte

	inflight       bool
	pendingSegs    []vad.Segment
	pendingOps     []operatorOp
	pendingHandoff bool

	promptSeq     int
	pendingAction *dialog.Effect

	idlePrompts int
	unregister  func()
}

func (s *CallSession) Run() error {
	defer s.cancel()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	readTimeout := s.cfg.WatchdogTimeout + s.cfg.PingInterval
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:           s.conn,
			ctx:          s.ctx,
			pingInterval: s.cfg.PingInterval,
			writeTimeout: s.cfg.WriteTimeout,
			priority:     s.outboundPriority,
			normal:       s.outboundNormal,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	limiter := newInboundAudioLimiter(s.now, s.cfg.MaxAudioFramesPerSecond, s.cfg.MaxAudioBytesPerSecond, s.cfg.InboundBurstSeconds)

	turnCh := make(chan turnResult, 2)
	synthCh := make(chan synthResult, 2)

	st := &runState{
		gate: newTurnGate(s.cfg.GateCharsPerSecond, s.cfg.GatePadding, s.cfg.GateMaxDuration),
	}
	defer func() {
		if st.unregister != nil {
			st.unregister()
		}
		if st.seg != nil {
			c := st.seg.Counters()
			s.logger.Info("call audio summary",
				"callSid", st.callSID,
				"segments", c.Emitted,
				"fallbackSegments", c.FallbackEmits,
				"discardedShort", c.DiscardedShort)
		}
	}()

	handshakeTimer := time.NewTimer(s.cfg.HandshakeTimeout)
	defer handshakeTimer.Stop()
	watchdog := time.NewTimer(s.cfg.WatchdogTimeout)
	defer watchdog.Stop()
	callTimer := time.NewTimer(s.cfg.MaxCallDuration)
	defer callTimer.Stop()
	actionTimer := time.NewTimer(time.Hour)
	actionTimer.Stop()
	defer actionTimer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return nil

		case err, ok := <-writerErrCh:
			if !ok || err == nil {
				return nil
			}
			return fmt.Errorf("stream write: %w", err)

		case fr, ok := <-readCh:
			if !ok {
				return nil
			}
			if fr.err != nil {
				// Carrier closed the socket; treat like a stop.
				if websocket.IsCloseError(fr.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(fr.err, context.Canceled) {
					s.teardownOnCallerGone(st)
					return nil
				}
				s.teardownOnCallerGone(st)
				return fmt.Errorf("stream read: %w", fr.err)
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
			if fr.messageType != websocket.TextMessage {
				continue
			}
			done, err := s.handleInbound(st, fr.data, limiter, turnCh, synthCh, watchdog, handshakeTimer, actionTimer)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

		case <-handshakeTimer.C:
			if !st.started {
				return fmt.Errorf("no start event within %s", s.cfg.HandshakeTimeout)
			}

		case <-watchdog.C:
			if !st.started {
				watchdog.Reset(s.cfg.WatchdogTimeout)
				continue
			}
			st.idlePrompts++
			if st.idlePrompts == 1 {
				s.logger.Info("caller idle, reprompting", "callSid", st.callSID)
				s.speakPrompt(st, dialog.Effect{
					Speak:      "Are you still there? I didn't catch anything.",
					Action:     dialog.ActionContinue,
					KeepStream: true,
				}, synthCh, actionTimer)
			} else {
				s.logger.Info("caller idle, ending call", "callSid", st.callSID)
				s.speakPrompt(st, dialog.Effect{
					Speak:  "I haven't heard anything for a while, so I'll let you go. Call back any time.",
					Action: dialog.ActionEnd,
				}, synthCh, actionTimer)
			}
			watchdog.Reset(s.cfg.WatchdogTimeout)

		case <-callTimer.C:
			s.logger.Warn("call hit maximum duration, handing off", "callSid", st.callSID)
			if done := s.applyEffect(st, s.machine.RequestHandoff(), synthCh, actionTimer); done {
				return nil
			}

		case <-actionTimer.C:
			// Playback mark never arrived; execute the deferred action anyway.
			if st.pendingAction != nil {
				eff := *st.pendingAction
				st.pendingAction = nil
				if s.executeAction(st, eff) {
					return nil
				}
			}

		case res := <-turnCh:
			st.inflight = false
			if res.err != nil {
				s.logger.Warn("turn failed", "callSid", st.callSID, "error", res.err)
			}
			if res.ok {
				watchdog.Reset(s.cfg.WatchdogTimeout)
				st.idlePrompts = 0
				if done := s.applyEffect(st, res.effect, synthCh, actionTimer); done {
					return nil
				}
			}
			if done := s.drainQueued(st, turnCh, synthCh, actionTimer); done {
				return nil
			}

		case res := <-synthCh:
			s.deliverPrompt(st, res, actionTimer)

		case op := <-s.operatorCh:
			if st.inflight {
				st.pendingOps = append(st.pendingOps, op)
				continue
			}
			if done := s.applyOperatorOp(st, op, synthCh, actionTimer); done {
				return nil
			}
		}
	}
}

func (s *CallSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *CallSession) handleInbound(st *runState, data []byte, limiter *inboundAudioLimiter, turnCh chan turnResult, synthCh chan synthResult, watchdog, handshakeTimer, actionTimer *time.Timer) (done bool, err error) {
	decoded, decErr := protocol.DecodeInbound(data)
	if decErr != nil {
		s.logger.Warn("dropping malformed stream event", "callSid", st.callSID, "error", decErr)
		return false, nil
	}

	switch v := decoded.(type) {
	case protocol.Connected:
		s.logger.Debug("stream connected", "protocol", v.Protocol, "version", v.Version)

	case protocol.Start:
		if st.started {
			s.logger.Warn("duplicate start event ignored", "callSid", st.callSID)
			return false, nil
		}
		if err := s.startCall(st, v, watchdog, handshakeTimer, synthCh, actionTimer); err != nil {
			return false, err
		}

	case protocol.Media:
		if !st.started {
			if len(st.preStart) < preStartFrameCap {
				st.preStart = append(st.preStart, data)
			}
			return false, nil
		}
		if !limiter.Allow(len(v.Payload)) {
			return false, nil
		}
		watchdog.Reset(s.cfg.WatchdogTimeout)
		s.handleMedia(st, v, turnCh, synthCh, actionTimer)

	case protocol.DTMF:
		if !st.started {
			return false, nil
		}
		if v.Digit == "0" {
			s.logger.Info("caller pressed zero, handing off", "callSid", st.callSID)
			if st.inflight {
				// Applied after the inflight turn completes; the
				// transfer phrase always matches current state.
				st.pendingSegs = nil
				st.pendingHandoff = true
				return false, nil
			}
			return s.applyEffect(st, s.machine.RequestHandoff(), synthCh, actionTimer), nil
		}

	case protocol.Mark:
		if st.gate.OnMark(v.Name, s.now()) {
			if st.pendingAction != nil {
				eff := *st.pendingAction
				st.pendingAction = nil
				actionTimer.Stop()
				return s.executeAction(st, eff), nil
			}
		}

	case protocol.Stop:
		s.logger.Info("stream stopped by caller", "callSid", st.callSID)
		s.teardownOnCallerGone(st)
		return true, nil
	}

	return false, nil
}

func (s *CallSession) startCall(st *runState, start protocol.Start, watchdog, handshakeTimer *time.Timer, synthCh chan synthResult, actionTimer *time.Timer) error {
	enc, err := audio.ParseEncoding(start.MediaFormat.Encoding)
	if err != nil {
		return fmt.Errorf("unsupported media format: %w", err)
	}
	format := audio.Format{
		Encoding:     enc,
		SampleRateHz: start.MediaFormat.SampleRateHz,
		Channels:     start.MediaFormat.Channels,
	}
	if format.SampleRateHz <= 0 {
		format.SampleRateHz = 8000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}

	st.started = true
	st.format = format
	st.streamSID = start.StreamSID
	st.callSID = start.CallSID
	st.seg = vad.New(s.cfg.VAD, format, vad.NewEnergyClassifier(s.cfg.VADEnergyThreshold))

	handshakeTimer.Stop()
	watchdog.Reset(s.cfg.WatchdogTimeout)

	if from := strings.TrimSpace(start.CustomParameters["from"]); from != "" {
		s.machine.SetCallerPhone(from)
	}
	if s.tracker != nil {
		st.unregister = s.tracker.Register(st.callSID, sessions.Handle{
			Cancel:         s.Cancel,
			ConfirmBooking: s.OperatorConfirm,
			RejectBooking:  s.OperatorReject,
		})
	}

	s.logger.Info("call started",
		"callSid", st.callSID,
		"streamSid", st.streamSID,
		"encoding", string(format.Encoding),
		"sampleRate", format.SampleRateHz)

	s.speakPrompt(st, s.machine.Greeting(), synthCh, actionTimer)

	// Frames that raced ahead of the start event go through the normal
	// pipeline now. The greeting gate is armed, so they only feed the
	// continuity buffer.
	for _, raw := range st.preStart {
		if decoded, err := protocol.DecodeInbound(raw); err == nil {
			if m, ok := decoded.(protocol.Media); ok {
				s.handleMedia(st, m, nil, synthCh, actionTimer)
			}
		}
	}
	st.preStart = nil
	return nil
}

func (s *CallSession) handleMedia(st *runState, m protocol.Media, turnCh chan turnResult, synthCh chan synthResult, actionTimer *time.Timer) {
	raw, err := m.Bytes()
	if err != nil {
		s.logger.Warn("dropping undecodable media frame", "callSid", st.callSID, "error", err)
		return
	}
	if s.cfg.MaxAudioFrameBytes > 0 && len(raw) > s.cfg.MaxAudioFrameBytes {
		s.logger.Warn("dropping oversized media frame", "callSid", st.callSID, "bytes", len(raw))
		return
	}
	pcm, err := audio.Normalize(st.format, raw)
	if err != nil {
		s.logger.Warn("dropping malformed media frame", "callSid", st.callSID, "error", err)
		return
	}

	now := s.now()
	if st.gate.Armed(now) {
		st.seg.BufferGated(pcm, now)
		return
	}
	for _, segment := range st.seg.ProcessFrame(pcm, now) {
		s.enqueueSegment(st, segment, turnCh)
	}
}

func (s *CallSession) enqueueSegment(st *runState, segment vad.Segment, turnCh chan turnResult) {
	if turnCh == nil {
		return
	}
	if st.inflight {
		st.pendingSegs = append(st.pendingSegs, segment)
		if len(st.pendingSegs) > 2 {
			st.pendingSegs = st.pendingSegs[len(st.pendingSegs)-2:]
		}
		return
	}
	s.startTurn(st, segment, turnCh)
}

func (s *CallSession) startTurn(st *runState, segment vad.Segment, turnCh chan turnResult) {
	st.inflight = true
	sampleRate := st.format.SampleRateHz
	machine := s.machine
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.TurnTimeout)
		defer cancel()

		tr, err := s.sttProv.Transcribe(ctx, segment.PCM16, stt.TranscribeOptions{
			Language:     "en",
			SampleRateHz: sampleRate,
		})
		if err != nil {
			select {
			case turnCh <- turnResult{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		text := strings.TrimSpace(tr.Text)
		if text == "" {
			select {
			case turnCh <- turnResult{}:
			case <-s.ctx.Done():
			}
			return
		}

		effect := machine.Advance(ctx, text, tr.Confidence)
		select {
		case turnCh <- turnResult{effect: effect, ok: true}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *CallSession) drainQueued(st *runState, turnCh chan turnResult, synthCh chan synthResult, actionTimer *time.Timer) (done bool) {
	if st.pendingHandoff && !st.inflight {
		st.pendingHandoff = false
		if s.applyEffect(st, s.machine.RequestHandoff(), synthCh, actionTimer) {
			return true
		}
	}
	for len(st.pendingOps) > 0 && !st.inflight {
		op := st.pendingOps[0]
		st.pendingOps = st.pendingOps[1:]
		if s.applyOperatorOp(st, op, synthCh, actionTimer) {
			return true
		}
	}
	if !st.inflight && len(st.pendingSegs) > 0 {
		next := st.pendingSegs[0]
		st.pendingSegs = st.pendingSegs[1:]
		s.startTurn(st, next, turnCh)
	}
	return false
}

func (s *CallSession) applyOperatorOp(st *runState, op operatorOp, synthCh chan synthResult, actionTimer *time.Timer) (done bool) {
	var effect dialog.Effect
	var err error
	if op.confirm {
		effect, err = s.machine.ConfirmBooking(s.ctx)
	} else {
		effect = s.machine.RejectBooking()
	}
	op.resp <- err
	if err != nil {
		return false
	}
	return s.applyEffect(st, effect, synthCh, actionTimer)
}

// applyEffect carries out one dialog transition's side effects. It
// returns true when the session should end.
func (s *CallSession) applyEffect(st *runState, effect dialog.Effect, synthCh chan synthResult, actionTimer *time.Timer) (done bool) {
	if effect.SMS != nil {
		sms := *effect.SMS
		go func() {
			if err := s.control.SendSMS(sms.To, sms.Body); err != nil {
				s.logger.Warn("confirmation sms failed", "callSid", st.callSID, "error", err)
			}
		}()
	}

	if effect.Speak != "" {
		if st.seg != nil {
			st.seg.SetLongSegmentCap(s.machine.LongListening())
		}
		s.speakPrompt(st, effect, synthCh, actionTimer)
		return false
	}

	if st.seg != nil {
		st.seg.SetLongSegmentCap(s.machine.LongListening())
	}
	if effect.Action == dialog.ActionTransfer || effect.Action == dialog.ActionEnd {
		return s.executeAction(st, effect)
	}
	return false
}

// speakPrompt kicks off synthesis for one prompt. The gate arms
// immediately on a text-length estimate so the caller's echo of a
// still-rendering prompt can never segment; delivery re-arms it with
// the true audio duration.
func (s *CallSession) speakPrompt(st *runState, effect dialog.Effect, synthCh chan synthResult, actionTimer *time.Timer) {
	// The bot is taking the turn: anything the caller said in the gap
	// is stale, whichever path the prompt came from.
	st.pendingSegs = nil
	if st.seg != nil {
		st.seg.DiscardPending()
	}

	st.promptSeq++
	mark := fmt.Sprintf("prompt-%d", st.promptSeq)
	st.gate.ArmForText(effect.Speak, mark, s.now())

	if s.ttsProv == nil {
		s.deliverPrompt(st, synthResult{
			markName: mark,
			text:     effect.Speak,
			effect:   effect,
			err:      fmt.Errorf("no tts provider"),
		}, actionTimer)
		return
	}

	text := effect.Speak
	sampleRate := st.format.SampleRateHz
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.TurnTimeout)
		defer cancel()
		synth, err := s.ttsProv.Synthesize(ctx, text, tts.SynthesizeOptions{
			Voice:        s.cfg.TTSVoice,
			Encoding:     "mulaw",
			SampleRateHz: sampleRate,
		})
		res := synthResult{markName: mark, text: text, effect: effect, err: err}
		if err == nil {
			res.audio = synth.Audio
		}
		select {
		case synthCh <- res:
		case <-s.ctx.Done():
		}
	}()
}

// deliverPrompt queues a synthesized prompt's media frames followed by
// its playback mark. TTS failure falls back to the say event so the
// caller is never met with silence.
func (s *CallSession) deliverPrompt(st *runState, res synthResult, actionTimer *time.Timer) {
	now := s.now()

	if res.err != nil || len(res.audio) == 0 {
		if res.err != nil {
			s.logger.Warn("tts failed, using say fallback", "callSid", st.callSID, "error", res.err)
		}
		if payload, err := protocol.EncodeSay(st.streamSID, res.text); err == nil {
			if err := s.enqueueNormal(outboundFrame{payload: payload}); err != nil {
				s.logger.Warn("dropping prompt on backpressure", "callSid", st.callSID)
			}
		}
	} else {
		for off := 0; off < len(res.audio); off += mediaChunkBytes {
			end := off + mediaChunkBytes
			if end > len(res.audio) {
				end = len(res.audio)
			}
			payload, err := protocol.EncodeMedia(st.streamSID, res.audio[off:end])
			if err != nil {
				continue
			}
			if err := s.enqueueNormal(outboundFrame{payload: payload}); err != nil {
				s.logger.Warn("dropping prompt audio on backpressure", "callSid", st.callSID)
				break
			}
		}
		// mu-law plays one byte per sample.
		st.gate.ArmForAudio(len(res.audio), st.format.SampleRateHz, res.markName, now)
	}

	if payload, err := protocol.EncodeMark(st.streamSID, res.markName); err == nil {
		_ = s.enqueueNormal(outboundFrame{payload: payload})
	}

	if res.effect.Action == dialog.ActionTransfer || res.effect.Action == dialog.ActionEnd {
		eff := res.effect
		st.pendingAction = &eff
		estimate := s.cfg.GateMaxDuration
		if st.gate.deadline.After(now) {
			estimate = st.gate.deadline.Sub(now)
		}
		actionTimer.Reset(estimate + 2*time.Second)
	}
}

// executeAction performs the call-control action once the prompt has
// played. Returning true ends the session.
func (s *CallSession) executeAction(st *runState, effect dialog.Effect) bool {
	switch effect.Action {
	case dialog.ActionTransfer:
		if payload, err := protocol.EncodeClear(st.streamSID); err == nil {
			_ = s.enqueuePriority(outboundFrame{payload: payload})
		}
		if err := s.control.Transfer(st.callSID); err != nil {
			s.logger.Error("transfer failed", "callSid", st.callSID, "error", err)
		}
		return !effect.KeepStream
	case dialog.ActionEnd:
		if err := s.control.Hangup(st.callSID); err != nil {
			s.logger.Error("hangup failed", "callSid", st.callSID, "error", err)
		}
		return true
	default:
		return false
	}
}

// teardownOnCallerGone records the caller-initiated end of the stream.
func (s *CallSession) teardownOnCallerGone(st *runState) {
	if st.seg != nil {
		if seg := st.seg.Flush(s.now()); seg != nil {
			s.logger.Debug("discarding partial segment at teardown",
				"callSid", st.callSID, "duration", seg.Duration)
		}
	}
	if st.started {
		s.machine.Hangup()
	}
}

func (s *CallSession) enqueueNormal(frame outboundFrame) error {
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *CallSession) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}
