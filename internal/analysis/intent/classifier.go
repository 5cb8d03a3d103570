// Package intent routes the latest user message to a dialogue phase using
// fixed keyword sets.
package intent

import (
	"strings"

	"github.com/zhouzirui/serene/backend/internal/model/dialogue"
)

var crisisKeywords = []string{
	"kill myself",
	"suicide",
	"hurt myself",
	"end it all",
	"don't want to live",
}

var therapyKeywords = []string{
	"anxious",
	"depressed",
	"stuck",
	"overwhelmed",
	"hopeless",
}

var exitKeywords = []string{"stop", "exit"}

// Classify maps the latest message and the phase handed in by the caller to
// the phase that answers this turn. Crisis keywords always win, even inside a
// structured therapy session.
func Classify(latest string, current dialogue.Phase) dialogue.Phase {
	if IsCrisis(latest) {
		return dialogue.PhaseCrisis
	}

	text := normalize(latest)

	if current == dialogue.PhaseStructuredTherapy {
		if containsAny(text, exitKeywords) {
			return dialogue.PhaseGeneral
		}
		return dialogue.PhaseStructuredTherapy
	}

	if containsAny(text, therapyKeywords) {
		return dialogue.PhaseStructuredTherapy
	}

	return dialogue.PhaseGeneral
}

// IsCrisis reports whether text contains a crisis keyword.
func IsCrisis(text string) bool {
	return containsAny(normalize(text), crisisKeywords)
}

func normalize(text string) string {
	// Typographic apostrophes come from mobile keyboards.
	text = strings.ReplaceAll(text, "’", "'")
	return strings.ToLower(text)
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
