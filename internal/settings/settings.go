// Package settings owns the phone routing configuration: business hours, the
// live dial targets and the dial timeout. Exactly one version is active at a time.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/frontdesk-dispatch/internal/businesshours"
)

var (
	// ErrNotConfigured means no active settings row exists.
	ErrNotConfigured = errors.New("settings: no active phone settings")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("settings: invalid phone settings")
)

const (
	DefaultStartHour      = 9
	DefaultEndHour        = 17
	DefaultDialTimeout    = 20
	DefaultDialDomain     = "frontdesk.sip.twilio.com"
	DefaultTimezone       = "America/Denver"
	minDialTimeoutSeconds = 5
	maxDialTimeoutSeconds = 120
)

// PhoneSettings is one immutable version of the routing configuration.
type PhoneSettings struct {
	Version            int       `json:"version"`
	BusinessStartHour  int       `json:"business_start_hour"`
	BusinessEndHour    int       `json:"business_end_hour"`
	ActiveWeekdays     []string  `json:"active_weekdays"`
	DialTargets        []string  `json:"dial_targets"`
	DialDomain         string    `json:"dial_domain"`
	DialTimeoutSeconds int       `json:"dial_timeout_seconds"`
	Timezone           string    `json:"timezone"`
	UpdatedBy          string    `json:"updated_by,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Provider supplies the currently active settings.
type Provider interface {
	Current(ctx context.Context) (PhoneSettings, error)
}

// Saver persists a new settings version and returns it with its assigned version.
type Saver interface {
	Save(ctx context.Context, s PhoneSettings) (PhoneSettings, error)
}

// Store is a Provider that can also be written by operators.
type Store interface {
	Provider
	Saver
}

// Defaults is the compiled-in configuration used when nothing is persisted or
// the settings backend is unreachable.
func Defaults() PhoneSettings {
	return PhoneSettings{
		Version:            0,
		BusinessStartHour:  DefaultStartHour,
		BusinessEndHour:    DefaultEndHour,
		ActiveWeekdays:     []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		DialTargets:        []string{"frontdesk"},
		DialDomain:         DefaultDialDomain,
		DialTimeoutSeconds: DefaultDialTimeout,
		Timezone:           DefaultTimezone,
	}
}

// Normalize trims list entries, title-cases weekdays and fills empty optional fields.
func (s PhoneSettings) Normalize() PhoneSettings {
	out := s
	out.ActiveWeekdays = nil
	seen := map[string]struct{}{}
	for _, d := range s.ActiveWeekdays {
		name := businesshours.CanonicalWeekday(d)
		if name == "" {
			name = strings.TrimSpace(d)
		}
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out.ActiveWeekdays = append(out.ActiveWeekdays, name)
	}
	out.DialTargets = nil
	for _, target := range s.DialTargets {
		if trimmed := strings.TrimSpace(target); trimmed != "" {
			out.DialTargets = append(out.DialTargets, trimmed)
		}
	}
	out.DialDomain = strings.TrimSpace(s.DialDomain)
	out.Timezone = strings.TrimSpace(s.Timezone)
	if out.Timezone == "" {
		out.Timezone = DefaultTimezone
	}
	if out.DialTimeoutSeconds == 0 {
		out.DialTimeoutSeconds = DefaultDialTimeout
	}
	return out
}

// Validate checks the invariants operators must respect when saving.
func (s PhoneSettings) Validate() error {
	var problems []string
	if s.BusinessStartHour < 0 || s.BusinessStartHour > 23 {
		problems = append(problems, "business_start_hour must be between 0 and 23")
	}
	if s.BusinessEndHour < 0 || s.BusinessEndHour > 23 {
		problems = append(problems, "business_end_hour must be between 0 and 23")
	}
	if s.BusinessEndHour <= s.BusinessStartHour {
		problems = append(problems, "business_end_hour must be after business_start_hour (overnight hours are not supported)")
	}
	if len(s.ActiveWeekdays) == 0 {
		problems = append(problems, "at least one active weekday is required")
	}
	for _, d := range s.ActiveWeekdays {
		if !businesshours.ValidWeekday(d) {
			problems = append(problems, fmt.Sprintf("unknown weekday %q", d))
		}
	}
	if s.DialTimeoutSeconds < minDialTimeoutSeconds || s.DialTimeoutSeconds > maxDialTimeoutSeconds {
		problems = append(problems, fmt.Sprintf("dial_timeout_seconds must be between %d and %d", minDialTimeoutSeconds, maxDialTimeoutSeconds))
	}
	for _, target := range s.DialTargets {
		if needsDomain(target) && s.DialDomain == "" {
			problems = append(problems, fmt.Sprintf("dial target %q needs a dial_domain", target))
			break
		}
	}
	if _, err := businesshours.LoadLocation(s.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", s.Timezone))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// needsDomain reports whether a bare target name must be qualified with the dial domain.
func needsDomain(target string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	switch {
	case strings.HasPrefix(t, "sip:"), strings.HasPrefix(t, "client:"), strings.HasPrefix(t, "+"):
		return false
	case strings.Contains(t, "@"):
		return false
	default:
		return true
	}
}
