package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-dispatch/internal/routing"
)

func TestRenderDialDecision(t *testing.T) {
	d := routing.Decision{
		Kind:           routing.KindDial,
		TimeoutSeconds: 25,
		DialStatusURL:  "https://dispatch.example.com/webhooks/twilio/voice/dial-status",
		Targets: []routing.DialTarget{
			{Type: routing.TargetSIP, Address: "sip:frontdesk@pbx.example.com"},
			{Type: routing.TargetNumber, Address: "+17195550100"},
			{Type: routing.TargetClient, Address: "ipad"},
		},
	}
	out, err := RenderDecision(d, VoicemailOptions{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<Dial action="https://dispatch.example.com/webhooks/twilio/voice/dial-status" method="POST" timeout="25">`)
	assert.Contains(t, out, `<Sip>sip:frontdesk@pbx.example.com</Sip>`)
	assert.Contains(t, out, `<Number>+17195550100</Number>`)
	assert.Contains(t, out, `<Client>ipad</Client>`)
	assert.NotContains(t, out, "<Record")
}

func TestRenderDivertDecision(t *testing.T) {
	d := routing.Decision{
		Kind:             routing.KindDivert,
		RecordingURL:     "https://dispatch.example.com/webhooks/twilio/voice/recording",
		TranscriptionURL: "https://dispatch.example.com/webhooks/twilio/voice/transcription",
	}
	out, err := RenderDecision(d, VoicemailOptions{Prompt: "We're closed & away.", MaxLengthSeconds: 90})
	require.NoError(t, err)

	assert.Contains(t, out, `<Say voice="Polly.Joanna">We&#39;re closed &amp; away.</Say>`)
	assert.Contains(t, out, `maxLength="90"`)
	assert.Contains(t, out, `transcribe="true"`)
	assert.Contains(t, out, `transcribeCallback="https://dispatch.example.com/webhooks/twilio/voice/transcription"`)
	assert.Contains(t, out, `<Hangup></Hangup>`)
	assert.NotContains(t, out, "<Dial")
}

func TestRenderDialWithoutTargetsFails(t *testing.T) {
	_, err := RenderDecision(routing.Decision{Kind: routing.KindDial}, VoicemailOptions{})
	assert.Error(t, err)
}

func TestRenderVoicemailDefaultPrompt(t *testing.T) {
	out, err := RenderVoicemail("", "", VoicemailOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "Sorry we missed your call.")
	assert.Contains(t, out, `transcribe="false"`)
}

func TestRenderHangupAndEmpty(t *testing.T) {
	assert.Contains(t, RenderHangup(), "<Response><Hangup></Hangup></Response>")
	assert.Contains(t, RenderEmpty(), "<Response></Response>")
}

func TestParseVoiceForm(t *testing.T) {
	form := url.Values{
		"CallSid":           {"CA123"},
		"From":              {"+17195551234"},
		"To":                {"+17195550000"},
		"CallStatus":        {"In-Progress"},
		"DialCallStatus":    {"no-answer"},
		"RecordingUrl":      {"https://api.twilio.com/rec/RE1"},
		"RecordingDuration": {"42"},
		"TranscriptionText": {" please call me back "},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	wh, err := ParseVoiceForm(req)
	require.NoError(t, err)
	assert.Equal(t, "CA123", wh.CallSid)
	assert.Equal(t, "in-progress", wh.CallStatus)
	assert.Equal(t, DialNoAnswer, wh.DialCallStatus)
	assert.Equal(t, 42, wh.RecordingDuration)
	assert.Equal(t, "please call me back", wh.TranscriptionText)
}

func TestParseVoiceFormRequiresCallSid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/voice", strings.NewReader("From=%2B1719"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err := ParseVoiceForm(req)
	assert.Error(t, err)
}
