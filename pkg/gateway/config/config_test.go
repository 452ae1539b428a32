package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.VAD.MinSpeechDuration != 400*time.Millisecond {
		t.Errorf("VAD.MinSpeechDuration = %v, want 400ms", cfg.VAD.MinSpeechDuration)
	}
	if cfg.VAD.SilenceTimeout != 1500*time.Millisecond {
		t.Errorf("VAD.SilenceTimeout = %v, want 1.5s", cfg.VAD.SilenceTimeout)
	}
	if cfg.Dialog.IntentConfidenceThreshold != 0.55 {
		t.Errorf("Dialog.IntentConfidenceThreshold = %v, want 0.55", cfg.Dialog.IntentConfidenceThreshold)
	}
	if cfg.Dialog.IntentFailuresThreshold != 2 {
		t.Errorf("Dialog.IntentFailuresThreshold = %d, want 2", cfg.Dialog.IntentFailuresThreshold)
	}
	if cfg.Schedule.SlotStep != 15*time.Minute {
		t.Errorf("Schedule.SlotStep = %v, want 15m", cfg.Schedule.SlotStep)
	}
	if cfg.Schedule.Horizon != 72*time.Hour {
		t.Errorf("Schedule.Horizon = %v, want 72h", cfg.Schedule.Horizon)
	}
	if cfg.MaxCallDuration != 30*time.Minute {
		t.Errorf("MaxCallDuration = %v, want 30m", cfg.MaxCallDuration)
	}
	if cfg.TurnTimeout != 15*time.Second {
		t.Errorf("TurnTimeout = %v, want 15s", cfg.TurnTimeout)
	}
	if cfg.VADEnergyThreshold != 0.012 {
		t.Errorf("VADEnergyThreshold = %v, want 0.012", cfg.VADEnergyThreshold)
	}
	if cfg.CalendarBaseURL != "" {
		t.Errorf("CalendarBaseURL = %q, want empty", cfg.CalendarBaseURL)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_ADDR", ":9099")
	t.Setenv("DISPATCH_VAD_SILENCE_TIMEOUT", "2s")
	t.Setenv("DISPATCH_TURN_TIMEOUT", "20s")
	t.Setenv("DISPATCH_VAD_ENERGY_THRESHOLD", "0.02")
	t.Setenv("DISPATCH_INTENT_CONFIDENCE_THRESHOLD", "0.7")
	t.Setenv("DISPATCH_SLOT_STEP", "30m")
	t.Setenv("DISPATCH_BUSINESS_NAME", "Riverside Electric")
	t.Setenv("DISPATCH_TIMEZONE", "America/Chicago")
	t.Setenv("DISPATCH_BUSINESS_FACTS", "hours=8am to 6pm Monday through Saturday;service_area=Travis County")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":9099" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.VAD.SilenceTimeout != 2*time.Second {
		t.Errorf("VAD.SilenceTimeout = %v", cfg.VAD.SilenceTimeout)
	}
	if cfg.TurnTimeout != 20*time.Second {
		t.Errorf("TurnTimeout = %v", cfg.TurnTimeout)
	}
	if cfg.VADEnergyThreshold != 0.02 {
		t.Errorf("VADEnergyThreshold = %v", cfg.VADEnergyThreshold)
	}
	if cfg.Dialog.IntentConfidenceThreshold != 0.7 {
		t.Errorf("Dialog.IntentConfidenceThreshold = %v", cfg.Dialog.IntentConfidenceThreshold)
	}
	if cfg.Schedule.SlotStep != 30*time.Minute {
		t.Errorf("Schedule.SlotStep = %v", cfg.Schedule.SlotStep)
	}
	if cfg.Dialog.BusinessName != "Riverside Electric" {
		t.Errorf("Dialog.BusinessName = %q", cfg.Dialog.BusinessName)
	}
	if cfg.Dialog.Timezone == nil || cfg.Dialog.Timezone.String() != "America/Chicago" {
		t.Errorf("Dialog.Timezone = %v", cfg.Dialog.Timezone)
	}
	if got := cfg.Dialog.BusinessFacts["service_area"]; got != "Travis County" {
		t.Errorf("BusinessFacts[service_area] = %q", got)
	}
}

func TestLoadFromEnvInvalidValueFallsBackToDefault(t *testing.T) {
	t.Setenv("DISPATCH_VAD_SILENCE_TIMEOUT", "soon")
	t.Setenv("DISPATCH_MAX_CLARIFICATIONS", "two")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.VAD.SilenceTimeout != 1500*time.Millisecond {
		t.Errorf("VAD.SilenceTimeout = %v, want default 1.5s", cfg.VAD.SilenceTimeout)
	}
	if cfg.Dialog.MaxClarifications != 2 {
		t.Errorf("Dialog.MaxClarifications = %d, want default 2", cfg.Dialog.MaxClarifications)
	}
}

func TestLoadFromEnvValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"zero silence timeout", "DISPATCH_VAD_SILENCE_TIMEOUT", "0s", "DISPATCH_VAD_SILENCE_TIMEOUT"},
		{"negative min speech", "DISPATCH_VAD_MIN_SPEECH", "-1s", "DISPATCH_VAD_MIN_SPEECH"},
		{"long cap below segment cap", "DISPATCH_VAD_MAX_LONG_SEGMENT", "5s", "DISPATCH_VAD_MAX_LONG_SEGMENT"},
		{"intent threshold above one", "DISPATCH_INTENT_CONFIDENCE_THRESHOLD", "1.5", "DISPATCH_INTENT_CONFIDENCE_THRESHOLD"},
		{"zero clarifications", "DISPATCH_MAX_CLARIFICATIONS", "0", "DISPATCH_MAX_CLARIFICATIONS"},
		{"zero slot step", "DISPATCH_SLOT_STEP", "0s", "DISPATCH_SLOT_STEP"},
		{"horizon below slot step", "DISPATCH_SLOT_HORIZON", "10m", "DISPATCH_SLOT_HORIZON"},
		{"zero gate rate", "DISPATCH_GATE_CHARS_PER_SECOND", "0", "DISPATCH_GATE_CHARS_PER_SECOND"},
		{"zero frame limit", "DISPATCH_MAX_AUDIO_FRAME_BYTES", "0", "DISPATCH_MAX_AUDIO_FRAME_BYTES"},
		{"zero handshake timeout", "DISPATCH_HANDSHAKE_TIMEOUT", "0s", "DISPATCH_HANDSHAKE_TIMEOUT"},
		{"zero call cap", "DISPATCH_MAX_CALL_DURATION", "0s", "DISPATCH_MAX_CALL_DURATION"},
		{"zero turn timeout", "DISPATCH_TURN_TIMEOUT", "0s", "DISPATCH_TURN_TIMEOUT"},
		{"energy threshold at one", "DISPATCH_VAD_ENERGY_THRESHOLD", "1", "DISPATCH_VAD_ENERGY_THRESHOLD"},
		{"bad timezone", "DISPATCH_TIMEZONE", "Mars/Olympus", "DISPATCH_TIMEZONE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv succeeded, want error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnvTwilioPairing(t *testing.T) {
	t.Setenv("DISPATCH_TWILIO_ACCOUNT_SID", "AC123")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv succeeded with SID but no auth token")
	}

	t.Setenv("DISPATCH_TWILIO_AUTH_TOKEN", "secret")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv succeeded with call control enabled but no transfer number")
	}

	t.Setenv("DISPATCH_TRANSFER_NUMBER", "+15125550123")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.TwilioAccountSID != "AC123" || cfg.TransferNumber != "+15125550123" {
		t.Errorf("twilio fields = %q %q", cfg.TwilioAccountSID, cfg.TransferNumber)
	}
}

func TestParseFacts(t *testing.T) {
	got := parseFacts(" hours = 8am-6pm ; ; broken ; area=south austin ")
	if len(got) != 2 {
		t.Fatalf("parseFacts returned %v", got)
	}
	if got["hours"] != "8am-6pm" || got["area"] != "south austin" {
		t.Errorf("parseFacts = %v", got)
	}
	if parseFacts("") != nil {
		t.Error("parseFacts(\"\") should be nil")
	}
	if parseFacts("nonsense") != nil {
		t.Error("parseFacts with no pairs should be nil")
	}
}
