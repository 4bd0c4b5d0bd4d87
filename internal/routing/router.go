package routing

import (
	"context"
	"time"

	"github.com/wolfman30/frontdesk-dispatch/internal/businesshours"
	"github.com/wolfman30/frontdesk-dispatch/internal/settings"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// Route is a pure function of its inputs: the same caller, instant and
// settings version always produce the same decision.
func Route(caller string, now time.Time, s settings.PhoneSettings, cb Callbacks) Decision {
	d := Decision{
		SettingsVersion:  s.Version,
		RecordingURL:     cb.RecordingURL,
		TranscriptionURL: cb.TranscriptionURL,
	}
	if weekday, hour, err := businesshours.LocalMoment(now, s.Timezone); err == nil {
		d.LocalWeekday = weekday
		d.LocalHour = hour
	}

	if !businesshours.IsBusinessMoment(now, s.Timezone, s.BusinessStartHour, s.BusinessEndHour, s.ActiveWeekdays) {
		d.Kind = KindDivert
		d.Reason = ReasonAfterHours
		return d
	}

	targets := make([]DialTarget, 0, len(s.DialTargets))
	for _, raw := range s.DialTargets {
		if raw == "" {
			continue
		}
		targets = append(targets, ExpandTarget(raw, s.DialDomain))
	}
	if len(targets) == 0 {
		d.Kind = KindDivert
		d.Reason = ReasonNoDialTargets
		return d
	}

	timeout := s.DialTimeoutSeconds
	if timeout <= 0 {
		timeout = settings.DefaultDialTimeout
	}
	d.Kind = KindDial
	d.Reason = ReasonBusinessHours
	d.Targets = targets
	d.TimeoutSeconds = timeout
	d.DialStatusURL = cb.DialStatusURL
	return d
}

// Router loads the active settings and routes calls against them.
type Router struct {
	provider  settings.Provider
	callbacks Callbacks
	fallback  settings.PhoneSettings
	logger    *logging.Logger
}

func NewRouter(provider settings.Provider, callbacks Callbacks, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{provider: provider, callbacks: callbacks, fallback: settings.Defaults(), logger: logger}
}

// WithFallback replaces the settings used when the provider has nothing.
func (r *Router) WithFallback(s settings.PhoneSettings) *Router {
	r.fallback = s.Normalize()
	return r
}

// Decide never fails. When settings cannot be loaded the fallback (the
// compiled-in defaults unless replaced) is used and the substitution is logged.
func (r *Router) Decide(ctx context.Context, caller string, now time.Time) Decision {
	current := r.currentSettings(ctx)
	d := Route(caller, now, current, r.callbacks)
	r.logger.Info("call routed",
		"caller", caller,
		"decision", string(d.Kind),
		"reason", d.Reason,
		"settings_version", d.SettingsVersion,
		"local_weekday", d.LocalWeekday,
		"local_hour", d.LocalHour,
	)
	return d
}

func (r *Router) currentSettings(ctx context.Context) settings.PhoneSettings {
	if r.provider == nil {
		r.logger.Warn("phone settings unavailable; using defaults", "error", "no provider")
		return r.fallback
	}
	current, err := r.provider.Current(ctx)
	if err != nil {
		r.logger.Warn("phone settings unavailable; using defaults", "error", err)
		return r.fallback
	}
	return current
}
