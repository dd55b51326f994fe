package analysis

import "strings"

// Severity markers the model is instructed to put at the very start of its
// answer.
const (
	MarkerSafe        = "✅"
	MarkerNeedsReview = "⚠️"
	MarkerCritical    = "❌"
)

type Severity int

const (
	SeveritySafe Severity = iota
	SeverityNeedsReview
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNeedsReview:
		return "needs_review"
	case SeverityCritical:
		return "critical"
	default:
		return "safe"
	}
}

// Escalates reports whether the severity warrants a voice call.
func (s Severity) Escalates() bool {
	return s == SeverityNeedsReview || s == SeverityCritical
}

// ClassifySeverity reads the leading marker of a model answer. The check is a
// literal prefix match: whitespace or markup before the marker, or a marker
// missing its variation selector, classifies as safe.
func ClassifySeverity(text string) Severity {
	switch {
	case strings.HasPrefix(text, MarkerCritical):
		return SeverityCritical
	case strings.HasPrefix(text, MarkerNeedsReview):
		return SeverityNeedsReview
	default:
		return SeveritySafe
	}
}
