package dialog

import (
	"regexp"
	"strings"
)

// Name extraction runs pattern rules first and leaves the language
// model as a fallback for replies the rules cannot shape.

var nameIntroPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?)`),
	regexp.MustCompile(`(?i)\bthis is ([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?)`),
	regexp.MustCompile(`(?i)\bit's ([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?)`),
	regexp.MustCompile(`(?i)\bi'?m ([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?)`),
	regexp.MustCompile(`(?i)\b([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?) speaking\b`),
	regexp.MustCompile(`(?i)\b(?:name'?s|call me) ([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?)`),
}

// nameStopwords are words the intro patterns can capture that are not
// names ("I'm calling about...").
var nameStopwords = map[string]bool{
	"calling": true, "trying": true, "looking": true, "having": true,
	"sorry": true, "here": true, "not": true, "just": true, "good": true,
	"the": true, "a": true, "an": true, "no": true, "yes": true,
}

// extractNameByRule applies the intro patterns and, for a bare one- or
// two-word reply, takes the reply itself as the name.
func extractNameByRule(text string) string {
	trimmed := strings.TrimSpace(text)
	for _, p := range nameIntroPatterns {
		if m := p.FindStringSubmatch(trimmed); m != nil {
			if name := cleanName(m[1]); name != "" {
				return name
			}
		}
	}

	// "Dana." or "Dana Whitfield" with no intro phrase.
	words := strings.Fields(strings.Trim(trimmed, ".!?,"))
	if len(words) >= 1 && len(words) <= 2 {
		if name := cleanName(strings.Join(words, " ")); name != "" && !isFiller(normalize(trimmed)) {
			return name
		}
	}
	return ""
}

func cleanName(raw string) string {
	words := strings.Fields(strings.ToLower(raw))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".!?,")
		if w == "" || nameStopwords[w] {
			return ""
		}
		out = append(out, strings.ToUpper(w[:1])+w[1:])
	}
	return strings.Join(out, " ")
}
