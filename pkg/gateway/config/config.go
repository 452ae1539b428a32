package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/dialog"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/schedule"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/vad"
)

type Config struct {
	Addr string

	// OperatorAPIKey protects the dispatcher confirmation endpoints.
	OperatorAPIKey string

	// External collaborators.
	STTBaseURL string
	STTAPIKey  string

	TTSBaseURL string
	TTSAPIKey  string
	TTSVoice   string

	NLUBaseURL string
	NLUAPIKey  string

	// Calendar is optional: empty base URL degrades to always-free.
	CalendarBaseURL string
	CalendarAPIKey  string

	// Telephony call control. Empty credentials disable outbound
	// call-control actions (logged no-ops).
	TwilioAccountSID string
	TwilioAuthToken  string
	TransferNumber   string
	SMSFromNumber    string

	// Core policies.
	VAD                vad.Config
	VADEnergyThreshold float64
	Dialog             dialog.Config
	Schedule           schedule.Config

	// Turn-taking gate.
	GateCharsPerSecond float64
	GateMaxDuration    time.Duration
	GatePadding        time.Duration

	// Inbound stream limits.
	MaxAudioFrameBytes      int
	MaxJSONMessageBytes     int64
	MaxAudioFramesPerSecond int
	MaxAudioBytesPerSecond  int64
	InboundBurstSeconds     int

	// Session lifecycle.
	HandshakeTimeout time.Duration
	WatchdogTimeout  time.Duration
	MaxCallDuration  time.Duration
	TurnTimeout      time.Duration
	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration

	// HTTP server.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	vadCfg := vad.DefaultConfig()
	vadCfg.MinSpeechDuration = envDurationOr("DISPATCH_VAD_MIN_SPEECH", vadCfg.MinSpeechDuration)
	vadCfg.SilenceTimeout = envDurationOr("DISPATCH_VAD_SILENCE_TIMEOUT", vadCfg.SilenceTimeout)
	vadCfg.MaxSegmentDuration = envDurationOr("DISPATCH_VAD_MAX_SEGMENT", vadCfg.MaxSegmentDuration)
	vadCfg.MaxLongSegmentDuration = envDurationOr("DISPATCH_VAD_MAX_LONG_SEGMENT", vadCfg.MaxLongSegmentDuration)
	vadCfg.PrerollWindow = envDurationOr("DISPATCH_VAD_PREROLL_WINDOW", vadCfg.PrerollWindow)
	vadCfg.PrerollMinRMS = envFloat64Or("DISPATCH_VAD_PREROLL_MIN_RMS", vadCfg.PrerollMinRMS)
	vadCfg.FallbackDuration = envDurationOr("DISPATCH_VAD_FALLBACK_DURATION", vadCfg.FallbackDuration)
	vadCfg.FallbackDebounce = envDurationOr("DISPATCH_VAD_FALLBACK_DEBOUNCE", vadCfg.FallbackDebounce)

	dialogCfg := dialog.DefaultConfig()
	dialogCfg.IntentConfidenceThreshold = envFloat64Or("DISPATCH_INTENT_CONFIDENCE_THRESHOLD", dialogCfg.IntentConfidenceThreshold)
	dialogCfg.TranscriptConfidenceThreshold = envFloat64Or("DISPATCH_TRANSCRIPT_CONFIDENCE_THRESHOLD", dialogCfg.TranscriptConfidenceThreshold)
	dialogCfg.MaxClarifications = envIntOr("DISPATCH_MAX_CLARIFICATIONS", dialogCfg.MaxClarifications)
	dialogCfg.MaxAmbiguousConfirms = envIntOr("DISPATCH_MAX_AMBIGUOUS_CONFIRMS", dialogCfg.MaxAmbiguousConfirms)
	dialogCfg.IntentFailuresThreshold = envIntOr("DISPATCH_CONSECUTIVE_INTENT_FAILURES_THRESHOLD", dialogCfg.IntentFailuresThreshold)
	dialogCfg.OverallFailuresThreshold = envIntOr("DISPATCH_CONSECUTIVE_OVERALL_FAILURES_THRESHOLD", dialogCfg.OverallFailuresThreshold)
	dialogCfg.BusinessName = envOr("DISPATCH_BUSINESS_NAME", dialogCfg.BusinessName)
	if tz := strings.TrimSpace(os.Getenv("DISPATCH_TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("DISPATCH_TIMEZONE is not a valid IANA zone: %w", err)
		}
		dialogCfg.Timezone = loc
	}
	if facts := parseFacts(os.Getenv("DISPATCH_BUSINESS_FACTS")); len(facts) > 0 {
		dialogCfg.BusinessFacts = facts
	}

	schedCfg := schedule.DefaultConfig()
	schedCfg.SlotStep = envDurationOr("DISPATCH_SLOT_STEP", schedCfg.SlotStep)
	schedCfg.Horizon = envDurationOr("DISPATCH_SLOT_HORIZON", schedCfg.Horizon)
	schedCfg.Buffer = envDurationOr("DISPATCH_SLOT_BUFFER", schedCfg.Buffer)
	schedCfg.EmergencyLeadTime = envDurationOr("DISPATCH_EMERGENCY_LEAD_TIME", schedCfg.EmergencyLeadTime)
	schedCfg.JobDuration = envDurationOr("DISPATCH_JOB_DURATION", schedCfg.JobDuration)

	cfg := Config{
		Addr:           envOr("DISPATCH_ADDR", ":8080"),
		OperatorAPIKey: strings.TrimSpace(os.Getenv("DISPATCH_OPERATOR_API_KEY")),

		STTBaseURL: envOr("DISPATCH_STT_BASE_URL", ""),
		STTAPIKey:  strings.TrimSpace(os.Getenv("DISPATCH_STT_API_KEY")),
		TTSBaseURL: envOr("DISPATCH_TTS_BASE_URL", ""),
		TTSAPIKey:  strings.TrimSpace(os.Getenv("DISPATCH_TTS_API_KEY")),
		TTSVoice:   envOr("DISPATCH_TTS_VOICE", ""),
		NLUBaseURL: envOr("DISPATCH_NLU_BASE_URL", ""),
		NLUAPIKey:  strings.TrimSpace(os.Getenv("DISPATCH_NLU_API_KEY")),

		CalendarBaseURL: envOr("DISPATCH_CALENDAR_BASE_URL", ""),
		CalendarAPIKey:  strings.TrimSpace(os.Getenv("DISPATCH_CALENDAR_API_KEY")),

		TwilioAccountSID: strings.TrimSpace(os.Getenv("DISPATCH_TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:  strings.TrimSpace(os.Getenv("DISPATCH_TWILIO_AUTH_TOKEN")),
		TransferNumber:   strings.TrimSpace(os.Getenv("DISPATCH_TRANSFER_NUMBER")),
		SMSFromNumber:    strings.TrimSpace(os.Getenv("DISPATCH_SMS_FROM_NUMBER")),

		VAD:                vadCfg,
		VADEnergyThreshold: envFloat64Or("DISPATCH_VAD_ENERGY_THRESHOLD", 0.012),
		Dialog:             dialogCfg,
		Schedule:           schedCfg,

		GateCharsPerSecond: envFloat64Or("DISPATCH_GATE_CHARS_PER_SECOND", 15),
		GateMaxDuration:    envDurationOr("DISPATCH_GATE_MAX_DURATION", 20*time.Second),
		GatePadding:        envDurationOr("DISPATCH_GATE_PADDING", 700*time.Millisecond),

		MaxAudioFrameBytes:      envIntOr("DISPATCH_MAX_AUDIO_FRAME_BYTES", 8192),
		MaxJSONMessageBytes:     envInt64Or("DISPATCH_MAX_JSON_MESSAGE_BYTES", 64*1024),
		MaxAudioFramesPerSecond: envIntOr("DISPATCH_MAX_AUDIO_FPS", 100),
		MaxAudioBytesPerSecond:  envInt64Or("DISPATCH_MAX_AUDIO_BPS", 64*1024),
		InboundBurstSeconds:     envIntOr("DISPATCH_INBOUND_BURST_SECONDS", 2),

		HandshakeTimeout: envDurationOr("DISPATCH_HANDSHAKE_TIMEOUT", 5*time.Second),
		WatchdogTimeout:  envDurationOr("DISPATCH_WATCHDOG_TIMEOUT", 30*time.Second),
		MaxCallDuration:  envDurationOr("DISPATCH_MAX_CALL_DURATION", 30*time.Minute),
		TurnTimeout:      envDurationOr("DISPATCH_TURN_TIMEOUT", 15*time.Second),
		WSPingInterval:   envDurationOr("DISPATCH_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:   envDurationOr("DISPATCH_WS_WRITE_TIMEOUT", 5*time.Second),

		ReadHeaderTimeout:   envDurationOr("DISPATCH_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("DISPATCH_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.VAD.MinSpeechDuration <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_VAD_MIN_SPEECH must be > 0")
	}
	if cfg.VAD.SilenceTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_VAD_SILENCE_TIMEOUT must be > 0")
	}
	if cfg.VAD.MaxSegmentDuration <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_VAD_MAX_SEGMENT must be > 0")
	}
	if cfg.VAD.MaxLongSegmentDuration < cfg.VAD.MaxSegmentDuration {
		return Config{}, fmt.Errorf("DISPATCH_VAD_MAX_LONG_SEGMENT must be >= DISPATCH_VAD_MAX_SEGMENT")
	}
	if cfg.VADEnergyThreshold <= 0 || cfg.VADEnergyThreshold >= 1 {
		return Config{}, fmt.Errorf("DISPATCH_VAD_ENERGY_THRESHOLD must be in (0,1)")
	}
	if cfg.Dialog.IntentConfidenceThreshold <= 0 || cfg.Dialog.IntentConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("DISPATCH_INTENT_CONFIDENCE_THRESHOLD must be in (0,1]")
	}
	if cfg.Dialog.TranscriptConfidenceThreshold < 0 || cfg.Dialog.TranscriptConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("DISPATCH_TRANSCRIPT_CONFIDENCE_THRESHOLD must be in [0,1]")
	}
	if cfg.Dialog.MaxClarifications <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_CLARIFICATIONS must be > 0")
	}
	if cfg.Dialog.MaxAmbiguousConfirms <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_AMBIGUOUS_CONFIRMS must be > 0")
	}
	if cfg.Dialog.IntentFailuresThreshold <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_CONSECUTIVE_INTENT_FAILURES_THRESHOLD must be > 0")
	}
	if cfg.Dialog.OverallFailuresThreshold <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_CONSECUTIVE_OVERALL_FAILURES_THRESHOLD must be > 0")
	}
	if cfg.Schedule.SlotStep <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_SLOT_STEP must be > 0")
	}
	if cfg.Schedule.Horizon <= cfg.Schedule.SlotStep {
		return Config{}, fmt.Errorf("DISPATCH_SLOT_HORIZON must be > DISPATCH_SLOT_STEP")
	}
	if cfg.Schedule.Buffer < 0 {
		return Config{}, fmt.Errorf("DISPATCH_SLOT_BUFFER must be >= 0")
	}
	if cfg.Schedule.JobDuration <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_JOB_DURATION must be > 0")
	}
	if cfg.GateCharsPerSecond <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_GATE_CHARS_PER_SECOND must be > 0")
	}
	if cfg.GateMaxDuration <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_GATE_MAX_DURATION must be > 0")
	}
	if cfg.GatePadding < 0 {
		return Config{}, fmt.Errorf("DISPATCH_GATE_PADDING must be >= 0")
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.MaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.MaxAudioFramesPerSecond < 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_AUDIO_FPS must be >= 0")
	}
	if cfg.MaxAudioBytesPerSecond < 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_AUDIO_BPS must be >= 0")
	}
	if (cfg.MaxAudioBytesPerSecond > 0 || cfg.MaxAudioFramesPerSecond > 0) && cfg.InboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("DISPATCH_INBOUND_BURST_SECONDS must be >= 1 when an inbound audio limit is enabled")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WatchdogTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_WATCHDOG_TIMEOUT must be > 0")
	}
	if cfg.MaxCallDuration <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_CALL_DURATION must be > 0")
	}
	if cfg.TurnTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_TURN_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if (cfg.TwilioAccountSID == "") != (cfg.TwilioAuthToken == "") {
		return Config{}, fmt.Errorf("DISPATCH_TWILIO_ACCOUNT_SID and DISPATCH_TWILIO_AUTH_TOKEN must be set together")
	}
	if cfg.TwilioAccountSID != "" && cfg.TransferNumber == "" {
		return Config{}, fmt.Errorf("DISPATCH_TRANSFER_NUMBER must be set when call control is enabled")
	}

	return cfg, nil
}

// parseFacts parses "hours=8-6 Mon-Sat;service_area=Travis County".
func parseFacts(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
