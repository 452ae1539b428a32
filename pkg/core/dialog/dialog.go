// Package dialog owns one call's conversation state: which stage the
// call is in, what has been understood so far, and what to say next.
package dialog

import "time"

// Stage is the conversation stage of one call.
type Stage int

const (
	StageGreeting Stage = iota
	StageCollectingName
	StageAwaitingIssue
	StageAwaitingClearIntent
	StageAwaitingProblemDetails
	StageAwaitingPathChoice
	StageAwaitingTime
	StageAwaitingTimeConfirm
	StageAwaitingOperatorConfirm
	StagePostBookingQA
	StageHandoffRequested
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageGreeting:
		return "greeting"
	case StageCollectingName:
		return "collecting_name"
	case StageAwaitingIssue:
		return "awaiting_issue"
	case StageAwaitingClearIntent:
		return "awaiting_clear_intent"
	case StageAwaitingProblemDetails:
		return "awaiting_problem_details"
	case StageAwaitingPathChoice:
		return "awaiting_path_choice"
	case StageAwaitingTime:
		return "awaiting_time"
	case StageAwaitingTimeConfirm:
		return "awaiting_time_confirm"
	case StageAwaitingOperatorConfirm:
		return "awaiting_operator_confirm"
	case StagePostBookingQA:
		return "post_booking_qa"
	case StageHandoffRequested:
		return "handoff_requested"
	case StageClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the stage accepts no further caller turns.
func (s Stage) Terminal() bool {
	return s == StageClosed || s == StageHandoffRequested
}

// Action is the call-control side of a transition.
type Action int

const (
	// ActionContinue keeps listening for the next caller turn.
	ActionContinue Action = iota
	// ActionHold keeps the line open while an external step completes.
	ActionHold
	// ActionTransfer routes the call to a human dispatcher.
	ActionTransfer
	// ActionEnd hangs up.
	ActionEnd
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionHold:
		return "hold"
	case ActionTransfer:
		return "transfer"
	case ActionEnd:
		return "end"
	default:
		return "unknown"
	}
}

// ConfirmationSMS is a booking confirmation text to send to the caller.
type ConfirmationSMS struct {
	To   string
	Body string
}

// Effect is what one transition asks the call layer to do. Every
// transition produces exactly one Effect: one prompt (possibly empty),
// one call-control action, and whether the media stream stays attached.
type Effect struct {
	Speak      string
	Action     Action
	KeepStream bool
	SMS        *ConfirmationSMS
}

// Config holds the dialog policy. Thresholds are tunable, not fixed.
type Config struct {
	// IntentConfidenceThreshold gates IntentRecord evaluations.
	IntentConfidenceThreshold float64 `json:"intentConfidenceThreshold"`

	// TranscriptConfidenceThreshold suppresses unreliable transcripts
	// unless they match a short high-value confirmation.
	TranscriptConfidenceThreshold float64 `json:"transcriptConfidenceThreshold"`

	// MaxClarifications bounds the unclear-intent loop before the
	// machine asks for transfer consent.
	MaxClarifications int `json:"maxClarifications"`

	// MaxAmbiguousConfirms bounds unclear yes/no replies on a slot
	// offer before the call goes to the dispatcher as-is.
	MaxAmbiguousConfirms int `json:"maxAmbiguousConfirms"`

	// IntentFailuresThreshold forces handoff after this many
	// consecutive below-threshold intent evaluations.
	IntentFailuresThreshold int `json:"intentFailuresThreshold"`

	// OverallFailuresThreshold forces handoff after this many
	// consecutive below-threshold evaluations of any kind.
	OverallFailuresThreshold int `json:"overallFailuresThreshold"`

	// BusinessName is spoken in the greeting and closing prompts.
	BusinessName string `json:"businessName"`

	// BusinessFacts grounds post-booking Q&A answers.
	BusinessFacts map[string]string `json:"businessFacts,omitempty"`

	// Timezone for spoken slot times. Nil means local time.
	Timezone *time.Location `json:"-"`
}

// DefaultConfig returns the stock dialog policy.
func DefaultConfig() Config {
	return Config{
		IntentConfidenceThreshold:     0.55,
		TranscriptConfidenceThreshold: 0.40,
		MaxClarifications:             2,
		MaxAmbiguousConfirms:          2,
		IntentFailuresThreshold:       2,
		OverallFailuresThreshold:      3,
		BusinessName:                  "Dispatch Plumbing and Repair",
	}
}
