package session

import (
	"time"
)

// turnGate tracks whether the bot is currently speaking. While armed,
// inbound caller audio is withheld from segmentation so the bot never
// transcribes its own prompt echoing down the line.
//
// The gate arms on an estimate derived from the prompt length and
// disarms early when the telephony side acknowledges playback with a
// mark. The estimate is a ceiling, not a clock: a lost mark cannot
// deafen the session forever.
type turnGate struct {
	charsPerSecond float64
	padding        time.Duration
	maxDuration    time.Duration

	deadline time.Time
	markName string
}

func newTurnGate(charsPerSecond float64, padding, maxDuration time.Duration) *turnGate {
	if charsPerSecond <= 0 {
		charsPerSecond = 15
	}
	if maxDuration <= 0 {
		maxDuration = 20 * time.Second
	}
	return &turnGate{
		charsPerSecond: charsPerSecond,
		padding:        padding,
		maxDuration:    maxDuration,
	}
}

// ArmForText arms the gate for a prompt of the given text, returning
// the estimated playback duration.
func (g *turnGate) ArmForText(text, markName string, now time.Time) time.Duration {
	est := time.Duration(float64(len(text))/g.charsPerSecond*float64(time.Second)) + g.padding
	if est > g.maxDuration {
		est = g.maxDuration
	}
	g.arm(est, markName, now)
	return est
}

// ArmForAudio arms the gate for synthesized audio of a known byte
// length at the given output rate (bytes per second on the wire).
func (g *turnGate) ArmForAudio(audioBytes, bytesPerSecond int, markName string, now time.Time) time.Duration {
	if bytesPerSecond <= 0 {
		bytesPerSecond = 8000
	}
	est := time.Duration(float64(audioBytes)/float64(bytesPerSecond)*float64(time.Second)) + g.padding
	if est > g.maxDuration {
		est = g.maxDuration
	}
	g.arm(est, markName, now)
	return est
}

func (g *turnGate) arm(d time.Duration, markName string, now time.Time) {
	deadline := now.Add(d)
	// Back-to-back prompts extend, never shorten.
	if deadline.After(g.deadline) {
		g.deadline = deadline
	}
	g.markName = markName
}

// OnMark disarms the gate if the mark matches the latest armed prompt.
// Marks for older prompts are ignored; a newer prompt is still playing.
func (g *turnGate) OnMark(name string, now time.Time) bool {
	if g.markName == "" || name != g.markName {
		return false
	}
	g.deadline = now
	g.markName = ""
	return true
}

func (g *turnGate) Disarm() {
	g.deadline = time.Time{}
	g.markName = ""
}

func (g *turnGate) Armed(now time.Time) bool {
	return now.Before(g.deadline)
}
