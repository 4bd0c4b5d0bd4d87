// Package telephony is the boundary to the voice provider: it renders routing
// decisions as TwiML and parses the provider's voice webhooks.
package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"github.com/wolfman30/frontdesk-dispatch/internal/routing"
)

const (
	// DefaultVoicemailPrompt is spoken before recording when no custom text is set.
	DefaultVoicemailPrompt = "Sorry we missed your call. We just sent you a text message. You can also leave a voicemail after the tone."
	defaultVoice           = "Polly.Joanna"
)

type response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type recordVerb struct {
	XMLName            xml.Name `xml:"Record"`
	Action             string   `xml:"action,attr,omitempty"`
	MaxLength          int      `xml:"maxLength,attr,omitempty"`
	PlayBeep           bool     `xml:"playBeep,attr"`
	Transcribe         bool     `xml:"transcribe,attr"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type dialVerb struct {
	XMLName xml.Name `xml:"Dial"`
	Action  string   `xml:"action,attr,omitempty"`
	Method  string   `xml:"method,attr,omitempty"`
	Timeout int      `xml:"timeout,attr,omitempty"`
	Nouns   []any    `xml:",any"`
}

type sipNoun struct {
	XMLName xml.Name `xml:"Sip"`
	URI     string   `xml:",chardata"`
}

type numberNoun struct {
	XMLName xml.Name `xml:"Number"`
	Number  string   `xml:",chardata"`
}

type clientNoun struct {
	XMLName  xml.Name `xml:"Client"`
	Identity string   `xml:",chardata"`
}

// VoicemailOptions controls the diverted branch.
type VoicemailOptions struct {
	Prompt           string
	MaxLengthSeconds int
}

// RenderDecision turns a routing decision into TwiML. Dial decisions ring
// every target in parallel and report the outcome to DialStatusURL; divert
// decisions play the prompt and record a voicemail.
func RenderDecision(d routing.Decision, vm VoicemailOptions) (string, error) {
	switch d.Kind {
	case routing.KindDial:
		if len(d.Targets) == 0 {
			return "", errors.New("telephony: dial decision without targets")
		}
		dial := dialVerb{Action: d.DialStatusURL, Timeout: d.TimeoutSeconds}
		if d.DialStatusURL != "" {
			dial.Method = "POST"
		}
		for _, target := range d.Targets {
			switch target.Type {
			case routing.TargetNumber:
				dial.Nouns = append(dial.Nouns, numberNoun{Number: target.Address})
			case routing.TargetClient:
				dial.Nouns = append(dial.Nouns, clientNoun{Identity: target.Address})
			default:
				dial.Nouns = append(dial.Nouns, sipNoun{URI: target.Address})
			}
		}
		return encode(response{Verbs: []any{dial}})
	case routing.KindDivert:
		return RenderVoicemail(d.RecordingURL, d.TranscriptionURL, vm)
	default:
		return "", errors.New("telephony: unknown routing decision")
	}
}

// RenderVoicemail plays the prompt and records with transcription.
func RenderVoicemail(recordingURL, transcriptionURL string, vm VoicemailOptions) (string, error) {
	prompt := strings.TrimSpace(vm.Prompt)
	if prompt == "" {
		prompt = DefaultVoicemailPrompt
	}
	rec := recordVerb{
		Action:             recordingURL,
		MaxLength:          vm.MaxLengthSeconds,
		PlayBeep:           true,
		Transcribe:         transcriptionURL != "",
		TranscribeCallback: transcriptionURL,
	}
	return encode(response{Verbs: []any{sayVerb{Voice: defaultVoice, Text: prompt}, rec, hangupVerb{}}})
}

// RenderHangup ends the call.
func RenderHangup() string {
	out, _ := encode(response{Verbs: []any{hangupVerb{}}})
	return out
}

// RenderEmpty acknowledges a webhook without instructing the provider.
func RenderEmpty() string {
	out, _ := encode(response{})
	return out
}

func encode(r response) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
