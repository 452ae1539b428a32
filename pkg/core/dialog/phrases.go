package dialog

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of the flexible yes/no classifier.
type Verdict int

const (
	VerdictAmbiguous Verdict = iota
	VerdictYes
	VerdictNo
)

// Pattern tables are ordered rule lists with a fallback, not per-case
// heuristics. First match wins.

var affirmPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(yes|yeah|yep|yup|sure|correct|right|absolutely|definitely|of course|sounds good|that works|works for me|perfect|please do|go ahead|ok(ay)?|fine)\b`),
	regexp.MustCompile(`^(y|uh huh|mm hmm|mhm)$`),
}

var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(no|nope|nah|negative|don't|do not|doesn't work|does not work|won't work|can't do|cannot do|not really|rather not|something else|different time)\b`),
	regexp.MustCompile(`^n$`),
}

var emergencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(emergency|urgent|urgently|right away|right now|immediately|asap|as soon as possible|flooding|burst|gushing|overflowing|sewage|no heat|no hot water|gas leak)\b`),
	regexp.MustCompile(`\b(can't wait|cannot wait|today please)\b`),
}

var schedulePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(schedule|appointment|book|booking|set up|sometime|whenever|not urgent|no rush|next week|later this week|regular visit)\b`),
}

var donePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(that's all|that's it|that is all|nothing else|no more questions|i'm good|im good|all set|we're done|we are done|goodbye|bye|thank you,? that's everything)\b`),
	regexp.MustCompile(`^(no|nope|nothing)[.!]?$`),
}

var transferPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(real person|human|operator|representative|speak to someone|talk to someone|talk to a person|transfer me|dispatcher)\b`),
}

// safetyPatterns force an immediate handoff regardless of stage.
var safetyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(gas leak|smell gas|carbon monoxide|sparking|sparks|smoke|fire|electrical burning|shocked|electrocuted)\b`),
	regexp.MustCompile(`\b(someone is hurt|injured|bleeding|911)\b`),
}

// fillerPatterns match non-substantive utterances that should not be
// treated as an answer.
var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(um+|uh+|er+|hmm+|hello\??|hi|hey|are you there\??|can you hear me\??)[.!?]?$`),
}

// shortConfirmations are accepted even below the transcript confidence
// threshold: a clipped "yes" is too valuable to drop.
var shortConfirmations = []*regexp.Regexp{
	regexp.MustCompile(`^(yes|yeah|yep|yup|no|nope|nah|ok(ay)?|sure|correct|right)[.!?]?$`),
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ClassifyYesNo runs the flexible affirmative/negative classifier over
// a confirmation reply. Deny wins over affirm when both match ("no,
// that works... actually no").
func ClassifyYesNo(text string) Verdict {
	t := normalize(text)
	if t == "" {
		return VerdictAmbiguous
	}
	deny := matchAny(denyPatterns, t)
	affirm := matchAny(affirmPatterns, t)
	switch {
	case deny:
		return VerdictNo
	case affirm:
		return VerdictYes
	default:
		return VerdictAmbiguous
	}
}

// IsShortConfirmation reports whether the text is a high-value short
// reply accepted even at low transcript confidence.
func IsShortConfirmation(text string) bool {
	return matchAny(shortConfirmations, normalize(text))
}

func isEmergencyText(text string) bool {
	return matchAny(emergencyPatterns, text)
}

func isScheduleText(text string) bool {
	return matchAny(schedulePatterns, text)
}

func isDoneText(text string) bool {
	return matchAny(donePatterns, text)
}

func isTransferRequest(text string) bool {
	return matchAny(transferPatterns, text)
}

func isSafetyTrigger(text string) bool {
	return matchAny(safetyPatterns, text)
}

func isFiller(text string) bool {
	return matchAny(fillerPatterns, text)
}
