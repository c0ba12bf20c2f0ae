package intent

import "regexp"

// MemoryType classifies what kind of durable instruction a user message
// carries.
type MemoryType string

const (
	// MemoryCorrection records that a previous answer was wrong.
	MemoryCorrection MemoryType = "correction"

	// MemoryPreference records how the user likes data presented.
	MemoryPreference MemoryType = "preference"

	// MemoryInstruction records a standing rule for future answers.
	MemoryInstruction MemoryType = "instruction"
)

// correctionRule maps one keyword family to a memory type. Families are
// evaluated in order; the first match classifies the message.
type correctionRule struct {
	pattern *regexp.Regexp
	kind    MemoryType
}

var correctionRules = []correctionRule{
	// Direct contradiction of a previous answer.
	{regexp.MustCompile(`(?i)\b(that'?s|that is|this is)\s+(wrong|incorrect|not right)\b|\bwrong answer\b|\byou'?re mistaken\b`), MemoryCorrection},
	// Clarification of what was actually asked.
	{regexp.MustCompile(`(?i)\bi meant\b|\bi was asking\b|\byou misunderstood\b|\bnot what i asked\b`), MemoryCorrection},
	// Presentation preferences.
	{regexp.MustCompile(`(?i)\bi('?d)? prefer\b|\bi'?d rather\b|\brather see\b|\binstead of\b`), MemoryPreference},
	// Standing rules going forward.
	{regexp.MustCompile(`(?i)\balways\b|\bnever\b|\bfrom now on\b|\bgoing forward\b|\bremember (that|to)\b`), MemoryInstruction},
}

// DetectUserCorrection reports whether the message carries a memory-worthy
// instruction and, if so, which kind. Most messages match nothing — plain
// questions carry no instruction.
func DetectUserCorrection(message string) (MemoryType, bool) {
	for _, rule := range correctionRules {
		if rule.pattern.MatchString(message) {
			return rule.kind, true
		}
	}
	return "", false
}
