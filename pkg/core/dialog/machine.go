package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispatchvoice/dispatchvoice/pkg/core/nlu"
	"github.com/dispatchvoice/dispatchvoice/pkg/core/schedule"
)

// Machine is one call's dialog state machine. It is not goroutine-safe;
// the call session serializes all access.
type Machine struct {
	cfg      Config
	nlu      nlu.Provider
	resolver *schedule.Resolver
	logger   *slog.Logger
	clock    func() time.Time

	stage  Stage
	intent nlu.IntentRecord

	suggestedSlot *time.Time
	bookingID     string

	problemDetailsCollected bool
	nameReprompted          bool
	pathReprompted          bool
	awaitingTransferConsent bool
	transferConsentDeclined bool

	clarificationAttempts      int
	ambiguousConfirms          int
	timeParseAttempts          int
	consecutiveIntentFailures  int
	consecutiveOverallFailures int
}

// NewMachine creates a dialog machine for one call.
func NewMachine(cfg Config, provider nlu.Provider, resolver *schedule.Resolver, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:      cfg,
		nlu:      provider,
		resolver: resolver,
		logger:   logger,
		clock:    time.Now,
		stage:    StageGreeting,
	}
}

// SetClock overrides the time source. Used by tests.
func (m *Machine) SetClock(clock func() time.Time) {
	m.clock = clock
}

// Stage returns the current conversation stage.
func (m *Machine) Stage() Stage {
	return m.stage
}

// Intent returns a copy of the accumulated understanding.
func (m *Machine) Intent() nlu.IntentRecord {
	return m.intent
}

// SetCallerPhone records the caller ID for booking and confirmation SMS.
func (m *Machine) SetCallerPhone(phone string) {
	if m.intent.Customer.Phone == "" {
		m.intent.Customer.Phone = phone
	}
}

// LongListening reports whether the current stage expects long
// free-form answers, widening the segmenter's forced-flush cap.
func (m *Machine) LongListening() bool {
	return m.stage == StageAwaitingProblemDetails
}

// Greeting produces the opening prompt and moves to name collection.
func (m *Machine) Greeting() Effect {
	m.stage = StageCollectingName
	return m.speak(fmt.Sprintf(
		"Thanks for calling %s. I can get a technician scheduled for you. Can I have your name, please?",
		m.cfg.BusinessName))
}

// Advance interprets one transcribed caller utterance and returns the
// single Effect for this transition.
func (m *Machine) Advance(ctx context.Context, transcript string, sttConfidence float64) Effect {
	text := normalize(transcript)

	// Unreliable transcripts are suppressed rather than guessed at,
	// except for short high-value confirmations.
	if sttConfidence > 0 && sttConfidence < m.cfg.TranscriptConfidenceThreshold && !IsShortConfirmation(text) {
		m.logger.Debug("suppressing low-confidence transcript",
			"confidence", sttConfidence, "stage", m.stage.String())
		return m.silent()
	}

	if isSafetyTrigger(text) {
		return m.handoff("That sounds like it could be dangerous. I'm connecting you with our dispatcher right now, please stay on the line.")
	}
	if isTransferRequest(text) && m.stage != StageHandoffRequested {
		return m.handoff("Of course. Let me get you over to a real person, one moment.")
	}

	switch m.stage {
	case StageGreeting:
		// A caller speaking before the greeting played: greet anyway.
		return m.Greeting()
	case StageCollectingName:
		return m.advanceCollectingName(ctx, transcript)
	case StageAwaitingIssue, StageAwaitingClearIntent:
		return m.advanceIssue(ctx, transcript, text)
	case StageAwaitingProblemDetails:
		return m.advanceProblemDetails(ctx, transcript, text)
	case StageAwaitingPathChoice:
		return m.advancePathChoice(ctx, text)
	case StageAwaitingTime:
		return m.advanceTime(ctx, transcript, text)
	case StageAwaitingTimeConfirm:
		return m.advanceTimeConfirm(ctx, text)
	case StageAwaitingOperatorConfirm:
		return Effect{
			Speak:      "Still with you. I'm just confirming that slot with our dispatcher, one moment.",
			Action:     ActionHold,
			KeepStream: true,
		}
	case StagePostBookingQA:
		return m.advancePostBookingQA(ctx, transcript, text)
	case StageHandoffRequested:
		return Effect{
			Speak:      "Transferring you now, please hold.",
			Action:     ActionTransfer,
			KeepStream: false,
		}
	default: // StageClosed
		return Effect{Action: ActionEnd}
	}
}

// RequestHandoff forces a transfer, e.g. when the caller presses zero.
func (m *Machine) RequestHandoff() Effect {
	return m.handoff("Connecting you with our dispatcher now, please hold.")
}

// ConfirmBooking finalizes the booking after the dispatcher approves
// the suggested slot. Driven by an external event, not caller speech.
func (m *Machine) ConfirmBooking(ctx context.Context) (Effect, error) {
	if m.stage != StageAwaitingOperatorConfirm || m.suggestedSlot == nil {
		return m.silent(), fmt.Errorf("no booking awaiting confirmation in stage %s", m.stage)
	}

	slot := *m.suggestedSlot
	id, err := m.resolver.Book(ctx, schedule.Booking{
		Start:        slot,
		JobType:      m.intent.JobType,
		Urgency:      string(m.intent.Urgency),
		CustomerName: m.intent.Customer.Name,
		Phone:        m.intent.Customer.Phone,
		Address:      m.intent.Location.RawAddress,
		Notes:        m.intent.Notes,
	})
	if err != nil {
		// Keep the caller informed; the dispatcher has the details.
		m.logger.Error("booking write failed", "error", err)
		return m.handoff("I'm having trouble writing that to our schedule. Our dispatcher will call you right back to lock it in."), nil
	}
	m.bookingID = id
	m.stage = StagePostBookingQA

	eff := m.speak(fmt.Sprintf(
		"You're all set for %s. Is there anything else I can help you with?",
		spokenTime(slot, m.cfg.Timezone)))
	if m.intent.Customer.Phone != "" {
		eff.SMS = &ConfirmationSMS{
			To: m.intent.Customer.Phone,
			Body: fmt.Sprintf("%s: your appointment is confirmed for %s. Reply or call us to reschedule.",
				m.cfg.BusinessName, spokenTime(slot, m.cfg.Timezone)),
		}
	}
	return eff, nil
}

// RejectBooking handles the dispatcher declining the suggested slot.
func (m *Machine) RejectBooking() Effect {
	if m.stage != StageAwaitingOperatorConfirm {
		return m.silent()
	}
	m.suggestedSlot = nil
	m.stage = StageAwaitingTime
	return m.speak("I'm sorry, that slot just filled up. What other day and time could work for you?")
}

// Hangup produces the final effect for a caller-initiated teardown.
func (m *Machine) Hangup() Effect {
	m.stage = StageClosed
	return Effect{Action: ActionEnd}
}

func (m *Machine) advanceCollectingName(ctx context.Context, transcript string) Effect {
	name := extractNameByRule(transcript)
	if name == "" && m.nlu != nil {
		extracted, conf, err := m.nlu.ExtractName(ctx, transcript)
		if err != nil {
			m.logger.Warn("name extraction failed", "error", err)
		} else if conf >= m.cfg.IntentConfidenceThreshold {
			name = extracted
		}
	}

	if name == "" {
		if !m.nameReprompted {
			m.nameReprompted = true
			return m.speak("Sorry, I didn't catch that. Could you tell me your name one more time?")
		}
		// Give up gracefully rather than loop.
		m.stage = StageAwaitingIssue
		return m.speak("No problem, we can sort that out later. What can we help you with today?")
	}

	m.intent.Customer.Name = name
	m.stage = StageAwaitingIssue
	return m.speak(fmt.Sprintf("Thanks, %s. What's going on at your place?", name))
}

func (m *Machine) advanceIssue(ctx context.Context, transcript, text string) Effect {
	if isFiller(text) {
		return m.speak("I'm here. Go ahead and tell me what's going on.")
	}
	if m.awaitingTransferConsent {
		return m.clarifyIntent(text)
	}

	update, err := m.extractIntent(ctx, transcript)
	if err != nil {
		m.logger.Warn("intent extraction failed", "error", err)
		return m.speak("Sorry, I had trouble with that. Could you describe the problem again?")
	}
	m.intent.Merge(update)

	pass := update.Confidence.Overall >= m.cfg.IntentConfidenceThreshold && m.intent.JobType != ""
	if eff, forced := m.recordIntentEval(pass); forced {
		return eff
	}

	if !pass {
		return m.clarifyIntent(text)
	}
	m.clarificationAttempts = 0
	m.awaitingTransferConsent = false
	return m.afterIntentUnderstood(ctx, text)
}

// clarifyIntent handles a below-threshold or job-type-less extraction,
// including the bounded transfer-consent exchange.
func (m *Machine) clarifyIntent(text string) Effect {
	if m.awaitingTransferConsent {
		switch ClassifyYesNo(text) {
		case VerdictYes:
			return m.handoff("Got it. Transferring you to our dispatcher now, please hold.")
		case VerdictNo:
			m.awaitingTransferConsent = false
			if m.transferConsentDeclined {
				// Second exhaustion after a declined transfer.
				return m.handoff("Let me get our dispatcher to help sort this out, one moment.")
			}
			m.transferConsentDeclined = true
			m.clarificationAttempts = 0
			m.stage = StageAwaitingClearIntent
			return m.speak("Okay, let's try once more. In a few words, what do you need help with?")
		default:
			return m.speak("Should I transfer you to a person? A simple yes or no is fine.")
		}
	}

	m.clarificationAttempts++
	if m.clarificationAttempts >= m.cfg.MaxClarifications {
		m.awaitingTransferConsent = true
		return m.speak("I'm having trouble understanding. Would you like me to transfer you to a person?")
	}
	m.stage = StageAwaitingClearIntent
	return m.speak("Just to make sure I get this right: what kind of problem are you having, for example a leak, a clog, or no hot water?")
}

// afterIntentUnderstood routes a clear intent toward scheduling.
func (m *Machine) afterIntentUnderstood(ctx context.Context, text string) Effect {
	if m.intent.Urgency == nlu.UrgencyEmergency || isEmergencyText(text) {
		m.intent.Urgency = nlu.UrgencyEmergency
		return m.offerSlot(ctx, m.clock(), true)
	}
	if !m.problemDetailsCollected {
		m.problemDetailsCollected = true
		m.stage = StageAwaitingProblemDetails
		return m.speak("Got it. How and when did this start?")
	}
	return m.askPathChoice()
}

func (m *Machine) advanceProblemDetails(ctx context.Context, transcript, text string) Effect {
	m.intent.Merge(&nlu.IntentRecord{Notes: transcript})

	// Details often carry the urgency signal the first utterance lacked.
	if update, err := m.extractIntent(ctx, transcript); err == nil {
		m.intent.Merge(update)
		pass := update.Confidence.Overall >= m.cfg.IntentConfidenceThreshold
		if eff, forced := m.recordIntentEval(pass); forced {
			return eff
		}
	}

	if m.intent.Urgency == nlu.UrgencyEmergency || isEmergencyText(text) {
		m.intent.Urgency = nlu.UrgencyEmergency
		return m.offerSlot(ctx, m.clock(), true)
	}
	return m.askPathChoice()
}

func (m *Machine) askPathChoice() Effect {
	m.stage = StageAwaitingPathChoice
	return m.speak("Is this an emergency that needs someone right away, or would you like to schedule a regular visit?")
}

func (m *Machine) advancePathChoice(ctx context.Context, text string) Effect {
	switch {
	case isEmergencyText(text):
		m.intent.Urgency = nlu.UrgencyEmergency
		return m.offerSlot(ctx, m.clock(), true)
	case isScheduleText(text) || ClassifyYesNo(text) == VerdictNo:
		if m.intent.Urgency == "" {
			m.intent.Urgency = nlu.UrgencyFlex
		}
		m.stage = StageAwaitingTime
		return m.speak("Sure. What day and time work best for you?")
	default:
		if !m.pathReprompted {
			m.pathReprompted = true
			return m.speak("Sorry, is this an emergency, or should we set up a scheduled visit?")
		}
		// Default to the scheduling path rather than looping.
		if m.intent.Urgency == "" {
			m.intent.Urgency = nlu.UrgencyFlex
		}
		m.stage = StageAwaitingTime
		return m.speak("Let's find a time. What day and time work best for you?")
	}
}

func (m *Machine) advanceTime(ctx context.Context, transcript, text string) Effect {
	now := m.clock()
	when, ok := parseWhenByRule(text, now)
	if !ok && m.nlu != nil {
		result, err := m.nlu.ResolveTime(ctx, transcript, now)
		if err != nil {
			m.logger.Warn("time resolution failed", "error", err)
		} else if result.Confidence >= m.cfg.IntentConfidenceThreshold && !result.Start.IsZero() {
			when, ok = result.Start, true
		}
	}

	if !ok {
		m.timeParseAttempts++
		if m.timeParseAttempts >= m.cfg.MaxClarifications {
			// Offer our earliest opening instead of asking again.
			return m.offerSlot(ctx, now, m.intent.Urgency == nlu.UrgencyEmergency)
		}
		return m.speak("Sorry, I didn't catch the time. Something like, tomorrow afternoon, or Thursday at two, works.")
	}
	m.timeParseAttempts = 0
	return m.offerSlot(ctx, when, m.intent.Urgency == nlu.UrgencyEmergency)
}

// offerSlot validates the requested time against the calendar and asks
// a literal yes/no question about the resolved slot.
func (m *Machine) offerSlot(ctx context.Context, earliest time.Time, emergency bool) Effect {
	now := m.clock()
	slot := m.resolver.Resolve(ctx, earliest, emergency, now)
	m.suggestedSlot = &slot
	m.stage = StageAwaitingTimeConfirm

	if emergency {
		return m.speak(fmt.Sprintf(
			"Okay, this is urgent. The soonest I can get a technician out is %s. Does that work?",
			spokenTime(slot, m.cfg.Timezone)))
	}
	return m.speak(fmt.Sprintf("I have %s available. Does that work for you?",
		spokenTime(slot, m.cfg.Timezone)))
}

func (m *Machine) advanceTimeConfirm(ctx context.Context, text string) Effect {
	verdict := ClassifyYesNo(text)
	if verdict == VerdictAmbiguous && m.nlu != nil {
		label, conf, err := m.nlu.Classify(ctx, text, []string{"affirm", "deny"})
		if err == nil && conf >= m.cfg.IntentConfidenceThreshold {
			switch label {
			case "affirm":
				verdict = VerdictYes
			case "deny":
				verdict = VerdictNo
			}
		}
	}

	switch verdict {
	case VerdictYes:
		m.ambiguousConfirms = 0
		m.stage = StageAwaitingOperatorConfirm
		return Effect{
			Speak:      "Great. Give me just a moment to confirm that with our dispatcher.",
			Action:     ActionHold,
			KeepStream: true,
		}
	case VerdictNo:
		m.ambiguousConfirms = 0
		m.suggestedSlot = nil
		m.stage = StageAwaitingTime
		return m.speak("No problem. What day and time would work better?")
	default:
		m.ambiguousConfirms++
		if m.ambiguousConfirms >= m.cfg.MaxAmbiguousConfirms {
			// Implicit handoff: let the dispatcher settle it.
			m.stage = StageAwaitingOperatorConfirm
			return Effect{
				Speak:      "Let me have our dispatcher double-check that time with you, one moment.",
				Action:     ActionHold,
				KeepStream: true,
			}
		}
		return m.speak(fmt.Sprintf("Sorry, just to confirm: does %s work for you, yes or no?",
			spokenTime(*m.suggestedSlot, m.cfg.Timezone)))
	}
}

func (m *Machine) advancePostBookingQA(ctx context.Context, transcript, text string) Effect {
	if isDoneText(text) {
		m.stage = StageClosed
		return Effect{
			Speak:  fmt.Sprintf("Thanks for calling %s. We'll see you soon. Goodbye.", m.cfg.BusinessName),
			Action: ActionEnd,
		}
	}

	answer := ""
	if m.nlu != nil {
		a, err := m.nlu.Answer(ctx, transcript, m.cfg.BusinessFacts)
		if err != nil {
			m.logger.Warn("answer generation failed", "error", err)
		} else {
			answer = a
		}
	}
	if answer == "" {
		answer = "That's a good question. Our dispatcher can follow up with the details. Anything else?"
	}
	return m.speak(answer)
}

// extractIntent calls the understanding collaborator with accumulated
// context.
func (m *Machine) extractIntent(ctx context.Context, transcript string) (*nlu.IntentRecord, error) {
	if m.nlu == nil {
		return nil, fmt.Errorf("no understanding provider configured")
	}
	prior := m.intent
	return m.nlu.ExtractIntent(ctx, transcript, &prior)
}

// recordIntentEval applies the cross-cutting confidence bookkeeping:
// counters reset on a pass, increment on a failure, and force a handoff
// exactly once when either threshold is reached.
func (m *Machine) recordIntentEval(pass bool) (Effect, bool) {
	if pass {
		m.consecutiveIntentFailures = 0
		m.consecutiveOverallFailures = 0
		return Effect{}, false
	}
	m.consecutiveIntentFailures++
	m.consecutiveOverallFailures++

	if m.consecutiveIntentFailures >= m.cfg.IntentFailuresThreshold ||
		m.consecutiveOverallFailures >= m.cfg.OverallFailuresThreshold {
		return m.handoff("I want to make sure you get the right help. Let me connect you with our dispatcher."), true
	}
	return Effect{}, false
}

func (m *Machine) handoff(prompt string) Effect {
	m.stage = StageHandoffRequested
	return Effect{
		Speak:      prompt,
		Action:     ActionTransfer,
		KeepStream: false,
	}
}

func (m *Machine) speak(prompt string) Effect {
	return Effect{
		Speak:      prompt,
		Action:     ActionContinue,
		KeepStream: true,
	}
}

func (m *Machine) silent() Effect {
	return Effect{Action: ActionContinue, KeepStream: true}
}

// spokenTime renders a slot the way a person would say it.
func spokenTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Monday, January 2 at 3:04 PM")
}
