package missedcall

import (
	"fmt"
	"strings"
)

// GreetingMessage is the fixed text sent after a missed or after-hours call.
// It never depends on the AI engine so the caller always hears back.
func GreetingMessage(businessName, bookingURL string) string {
	name := strings.TrimSpace(businessName)
	var b strings.Builder
	if name == "" {
		b.WriteString("Hi there! Sorry we missed your call.")
	} else {
		fmt.Fprintf(&b, "Hi there! Sorry we missed your call to %s.", name)
	}
	b.WriteString(" How can we help - booking an appointment or a quick question? Just reply here.")
	if url := strings.TrimSpace(bookingURL); url != "" {
		fmt.Fprintf(&b, " You can also book online: %s", url)
	}
	b.WriteString(" Reply STOP to opt out.")
	return b.String()
}
