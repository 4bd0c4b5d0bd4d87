// Package routing decides whether an inbound call rings live staff or is
// diverted to the automated missed-call flow.
package routing

import (
	"fmt"
	"strings"
)

// Kind is the routing outcome.
type Kind string

const (
	KindDial   Kind = "dial"
	KindDivert Kind = "divert"
)

// Reasons are carried into logs and metrics.
const (
	ReasonBusinessHours = "business_hours"
	ReasonAfterHours    = "after_hours"
	ReasonNoDialTargets = "no_dial_targets"
)

// TargetType tells the provider adapter which dial noun to emit.
type TargetType string

const (
	TargetSIP    TargetType = "sip"
	TargetNumber TargetType = "number"
	TargetClient TargetType = "client"
)

// DialTarget is one live endpoint rung in parallel with the others.
type DialTarget struct {
	Type    TargetType `json:"type"`
	Address string     `json:"address"`
}

// Callbacks are the absolute URLs the telephony provider calls back on.
type Callbacks struct {
	DialStatusURL    string
	RecordingURL     string
	TranscriptionURL string
}

// Decision is the provider-agnostic output of the router. The telephony
// package turns it into TwiML.
type Decision struct {
	Kind           Kind         `json:"kind"`
	Targets        []DialTarget `json:"targets,omitempty"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty"`

	// DialStatusURL receives the dial outcome when nobody answers.
	DialStatusURL    string `json:"dial_status_url,omitempty"`
	RecordingURL     string `json:"recording_url,omitempty"`
	TranscriptionURL string `json:"transcription_url,omitempty"`

	Reason          string `json:"reason"`
	SettingsVersion int    `json:"settings_version"`
	LocalWeekday    string `json:"local_weekday,omitempty"`
	LocalHour       int    `json:"local_hour"`
}

// Diverted reports whether the call goes straight to the automated flow.
func (d Decision) Diverted() bool {
	return d.Kind == KindDivert
}

// ExpandTarget qualifies a configured dial target. SIP URIs and client
// identities pass through, "+digits" dials the PSTN and bare names become
// sip:<name>@<domain>.
func ExpandTarget(raw, domain string) DialTarget {
	target := strings.TrimSpace(raw)
	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, "sip:"):
		return DialTarget{Type: TargetSIP, Address: target}
	case strings.HasPrefix(lower, "client:"):
		return DialTarget{Type: TargetClient, Address: strings.TrimSpace(target[len("client:"):])}
	case strings.HasPrefix(target, "+"):
		return DialTarget{Type: TargetNumber, Address: target}
	case strings.Contains(target, "@"):
		return DialTarget{Type: TargetSIP, Address: "sip:" + target}
	default:
		return DialTarget{Type: TargetSIP, Address: fmt.Sprintf("sip:%s@%s", target, strings.TrimSpace(domain))}
	}
}
