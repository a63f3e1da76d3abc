package cortex

import "strings"

// uncertaintyMarkers are phrases that suggest a draft answer from the
// fast model is hedging and the turn deserves the stronger model.
var uncertaintyMarkers = []string{
	"i'm not sure",
	"i don't know",
	"unclear",
	"it depends",
	"difficult to say",
}

// ShouldEscalate reports whether a Flash draft should be retried on Pro.
// Reserved for the retry_count escalation policy in the turn graph.
func ShouldEscalate(response string, complexity, threshold float64) bool {
	if complexity >= threshold {
		return true
	}
	lower := strings.ToLower(response)
	for _, marker := range uncertaintyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
