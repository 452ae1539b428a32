package dialog

import (
	"testing"
	"time"
)

func TestParseWhenByRule(t *testing.T) {
	// Tuesday morning.
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		text string
		want time.Time
	}{
		{"tomorrow at 2 pm", time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC)},
		{"tomorrow morning", time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)},
		{"today at 4:30 pm", time.Date(2026, 9, 1, 16, 30, 0, 0, time.UTC)},
		{"thursday at two", time.Date(2026, 9, 3, 14, 0, 0, 0, time.UTC)},
		{"friday at 10 am", time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)},
		{"next tuesday at noon", time.Date(2026, 9, 8, 12, 0, 0, 0, time.UTC)},
		{"in two hours", now.Add(2 * time.Hour)},
		{"in 30 minutes", now.Add(30 * time.Minute)},
		{"saturday afternoon", time.Date(2026, 9, 5, 14, 0, 0, 0, time.UTC)},
		{"at 5", time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)},
		{"tonight", time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, ok := parseWhenByRule(tc.text, now)
		if !ok {
			t.Errorf("parseWhenByRule(%q) failed", tc.text)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseWhenByRule(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestParseWhenByRuleFallsThrough(t *testing.T) {
	now := time.Date(2026, 9, 1, 21, 0, 0, 0, time.UTC)

	for _, text := range []string{
		"whenever the game isn't on",
		"after my shift ends",
		"",
		// Past times on an explicit day are unresolvable by rule.
		"today at 8 am",
	} {
		if _, ok := parseWhenByRule(text, now); ok {
			t.Errorf("parseWhenByRule(%q) resolved, want fall-through", text)
		}
	}
}
