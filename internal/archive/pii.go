package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// 13 to 19 digits, optionally grouped by spaces or dashes.
	cardRe  = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	phoneRe = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// HashPhone keys archived conversations by caller without storing the
// number. Formatting is ignored, so "+1 (719) 555-1234" and "+17195551234"
// hash alike.
func HashPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) == 10 {
		digits = "1" + digits
	}
	sum := sha256.Sum256([]byte("+" + digits))
	return hex.EncodeToString(sum[:])
}

// ScrubPII redacts what callers read out in texts and voicemail
// transcripts before a thread is archived. Card numbers go first so their
// digit groups are not mistaken for phone numbers.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = cardRe.ReplaceAllString(text, "[CARD]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}
