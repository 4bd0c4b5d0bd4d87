package conversation

import (
	"regexp"
	"strings"
)

// escalationMarkers are the phrases the persona is instructed to use when
// handing off. Matching is case-insensitive and whitespace-tolerant, and it
// depends entirely on the model following that wording.
var escalationMarkers = []string{
	strings.ToLower(EscalationTag),
	"connecting you with a member of our team",
	"connect you with a member of our team",
	"a team member will reach out shortly",
	"escalating this to our team",
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// DetectEscalation reports the first marker found in reply, if any.
func DetectEscalation(reply string) (string, bool) {
	if escalationTagPattern.MatchString(reply) {
		return strings.ToLower(EscalationTag), true
	}
	normalized := whitespaceRun.ReplaceAllString(strings.ToLower(reply), " ")
	normalized = strings.NewReplacer("’", "'", "‘", "'").Replace(normalized)
	for _, marker := range escalationMarkers {
		if strings.Contains(normalized, marker) {
			return marker, true
		}
	}
	return "", false
}

var escalationTagPattern = regexp.MustCompile(`(?i)\[\s*escalate\s*\]`)

// stripEscalationTag removes the machine tag so customers never see it.
func stripEscalationTag(reply string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(escalationTagPattern.ReplaceAllString(reply, " "), " "))
}
