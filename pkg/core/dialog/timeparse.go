package dialog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Spoken time parsing is layered: relative-date rules first, then
// explicit clock forms; whatever the rules cannot shape falls through
// to the language-model resolver.

var (
	inDurationRe = regexp.MustCompile(`\bin (?:about )?(a|an|\d+|` + numberWordAlt + `) (minute|minutes|hour|hours|day|days)\b`)
	clockRe      = regexp.MustCompile(`\b(?:at |around |by )?(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.|o'?clock)\b`)
	atHourRe     = regexp.MustCompile(`\b(?:at|around|by) (\d{1,2}|` + numberWordAlt + `)(?::(\d{2}))?\b`)
)

const numberWordAlt = `one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve`

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// dayparts give a default clock time when the caller names only a part
// of the day.
var dayparts = map[string]int{
	"morning": 9, "afternoon": 14, "evening": 17, "tonight": 18, "noon": 12,
}

// parseWhenByRule resolves a spoken time expression relative to now.
// Returns false when the rules cannot shape the text.
func parseWhenByRule(text string, now time.Time) (time.Time, bool) {
	t := normalize(text)
	if t == "" {
		return time.Time{}, false
	}

	if m := inDurationRe.FindStringSubmatch(t); m != nil {
		n := parseCount(m[1])
		switch {
		case strings.HasPrefix(m[2], "minute"):
			return now.Add(time.Duration(n) * time.Minute), true
		case strings.HasPrefix(m[2], "hour"):
			return now.Add(time.Duration(n) * time.Hour), true
		default:
			return now.AddDate(0, 0, n), true
		}
	}

	base, haveDay := dayFromText(t, now)
	hour, minute, haveClock := clockFromText(t)

	if !haveDay && !haveClock {
		return time.Time{}, false
	}
	if !haveDay {
		base = now
	}
	if !haveClock {
		hour = daypartHour(t)
		minute = 0
	}

	candidate := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, now.Location())
	if !candidate.After(now) {
		if haveDay {
			// "today at 8" after 8pm is unresolvable by rule.
			return time.Time{}, false
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, true
}

func dayFromText(t string, now time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(t, "day after tomorrow"):
		return now.AddDate(0, 0, 2), true
	case strings.Contains(t, "tomorrow"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(t, "today") || strings.Contains(t, "tonight"):
		return now, true
	}
	for word, wd := range weekdays {
		if !strings.Contains(t, word) {
			continue
		}
		days := (int(wd) - int(now.Weekday()) + 7) % 7
		if days == 0 || strings.Contains(t, "next "+word) {
			days += 7
		}
		return now.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

func clockFromText(t string) (hour, minute int, ok bool) {
	if m := clockRe.FindStringSubmatch(t); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		switch {
		case strings.HasPrefix(m[3], "p"):
			if hour < 12 {
				hour += 12
			}
		case strings.HasPrefix(m[3], "a"):
			if hour == 12 {
				hour = 0
			}
		default:
			hour = assumeBusinessHour(hour)
		}
		return hour, minute, hour < 24 && minute < 60
	}
	if m := atHourRe.FindStringSubmatch(t); m != nil {
		hour = parseCount(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		return assumeBusinessHour(hour), minute, hour >= 1 && hour <= 12 && minute < 60
	}
	return 0, 0, false
}

// assumeBusinessHour maps a bare 1-7 to the afternoon: callers booking
// a service visit rarely mean 3am.
func assumeBusinessHour(hour int) int {
	if hour >= 1 && hour <= 7 {
		return hour + 12
	}
	return hour
}

func daypartHour(t string) int {
	for word, h := range dayparts {
		if strings.Contains(t, word) {
			return h
		}
	}
	return 9
}

func parseCount(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, _ := strconv.Atoi(s)
	return n
}
