package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Dial outcome values reported by the provider on the Dial action callback.
const (
	DialCompleted = "completed"
	DialBusy      = "busy"
	DialNoAnswer  = "no-answer"
	DialFailed    = "failed"
	DialCanceled  = "canceled"
)

// VoiceWebhook is the union of the fields the provider posts on voice,
// dial-status, recording and transcription callbacks.
type VoiceWebhook struct {
	CallSid             string
	AccountSid          string
	From                string
	To                  string
	CallStatus          string
	DialCallStatus      string
	DialCallDuration    int
	RecordingSid        string
	RecordingURL        string
	RecordingDuration   int
	TranscriptionSid    string
	TranscriptionText   string
	TranscriptionStatus string
}

// ParseVoiceForm reads a form-encoded voice callback.
func ParseVoiceForm(r *http.Request) (VoiceWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceWebhook{}, fmt.Errorf("telephony: parse voice form: %w", err)
	}
	get := func(key string) string { return strings.TrimSpace(r.PostFormValue(key)) }
	wh := VoiceWebhook{
		CallSid:             get("CallSid"),
		AccountSid:          get("AccountSid"),
		From:                get("From"),
		To:                  get("To"),
		CallStatus:          strings.ToLower(get("CallStatus")),
		DialCallStatus:      strings.ToLower(get("DialCallStatus")),
		DialCallDuration:    atoi(get("DialCallDuration")),
		RecordingSid:        get("RecordingSid"),
		RecordingURL:        get("RecordingUrl"),
		RecordingDuration:   atoi(get("RecordingDuration")),
		TranscriptionSid:    get("TranscriptionSid"),
		TranscriptionText:   get("TranscriptionText"),
		TranscriptionStatus: strings.ToLower(get("TranscriptionStatus")),
	}
	if wh.CallSid == "" {
		return wh, fmt.Errorf("telephony: missing CallSid")
	}
	return wh, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
