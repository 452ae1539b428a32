package session

import (
	"testing"
	"time"
)

func TestGateArmForText(t *testing.T) {
	g := newTurnGate(10, 500*time.Millisecond, 20*time.Second)
	now := time.Now()

	est := g.ArmForText("hello there caller", "prompt-1", now) // 18 chars
	want := 1800*time.Millisecond + 500*time.Millisecond
	if est != want {
		t.Errorf("estimate = %v, want %v", est, want)
	}
	if !g.Armed(now.Add(est - time.Millisecond)) {
		t.Error("gate should still be armed just before the estimate")
	}
	if g.Armed(now.Add(est)) {
		t.Error("gate should disarm at the estimate")
	}
}

func TestGateEstimateIsCapped(t *testing.T) {
	g := newTurnGate(1, 0, 3*time.Second)
	now := time.Now()

	est := g.ArmForText("a very long prompt that would otherwise gate for minutes on end", "p", now)
	if est != 3*time.Second {
		t.Errorf("estimate = %v, want the 3s cap", est)
	}
}

func TestGateMarkDisarmsOnlyLatestPrompt(t *testing.T) {
	g := newTurnGate(15, 0, 20*time.Second)
	now := time.Now()

	g.ArmForText("first prompt text goes here", "prompt-1", now)
	g.ArmForText("second prompt text, played right after", "prompt-2", now)

	if g.OnMark("prompt-1", now) {
		t.Error("stale mark must not disarm the gate")
	}
	if !g.Armed(now.Add(time.Second)) {
		t.Error("gate disarmed by stale mark")
	}

	if !g.OnMark("prompt-2", now.Add(time.Second)) {
		t.Error("current mark should disarm")
	}
	if g.Armed(now.Add(time.Second + time.Millisecond)) {
		t.Error("gate still armed after its mark")
	}
}

func TestGateBackToBackPromptsExtend(t *testing.T) {
	g := newTurnGate(10, 0, 20*time.Second)
	now := time.Now()

	g.ArmForText("0123456789012345678901234567890123456789", "prompt-1", now) // 4s
	g.ArmForText("0123456789", "prompt-2", now.Add(time.Second))              // 1s, ends earlier

	// The longer first prompt still owns the deadline.
	if !g.Armed(now.Add(3 * time.Second)) {
		t.Error("second shorter prompt shortened the gate")
	}
}

func TestGateArmForAudio(t *testing.T) {
	g := newTurnGate(15, 200*time.Millisecond, 20*time.Second)
	now := time.Now()

	// 16000 bytes of mu-law at 8kHz is two seconds.
	est := g.ArmForAudio(16000, 8000, "prompt-1", now)
	if est != 2*time.Second+200*time.Millisecond {
		t.Errorf("estimate = %v", est)
	}
}
