package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d`)

// countryCode is the North American calling code prepended to 10 digit numbers.
const countryCode = "1"

// NormalizeE164 converts a raw caller number to E.164. Ten digits get the
// country code, eleven digits starting with it get a "+", and anything else
// gets a bare "+" prefix with ok=false so the caller can flag it. Numbers are
// never rejected: the voicemail path must keep working with odd caller IDs.
func NormalizeE164(raw string) (e164 string, ok bool) {
	digits := sanitizePhone(raw)
	switch {
	case digits == "":
		return "", false
	case len(digits) == 10:
		return "+" + countryCode + digits, true
	case len(digits) == 11 && strings.HasPrefix(digits, countryCode):
		return "+" + digits, true
	default:
		return "+" + digits, false
	}
}

// MustE164 is NormalizeE164 without the flag, for numbers that come from
// configuration or the provider's own To field.
func MustE164(raw string) string {
	e164, _ := NormalizeE164(raw)
	return e164
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}
