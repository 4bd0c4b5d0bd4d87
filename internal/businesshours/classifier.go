// Package businesshours decides whether a moment falls inside the configured
// operating window in the business's local timezone.
//
// Windows are half-open on the hour: [start, end). A window that crosses
// midnight (start >= end) never matches; overnight hours are not supported.
package businesshours

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// LoadLocation resolves an IANA zone name, caching successful lookups.
// Conversion always goes through the tz database so DST transitions are honored.
func LoadLocation(timezone string) (*time.Location, error) {
	name := strings.TrimSpace(timezone)
	if name == "" {
		return nil, fmt.Errorf("businesshours: timezone required")
	}
	locMu.RLock()
	loc, ok := locCache[name]
	locMu.RUnlock()
	if ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("businesshours: load location %q: %w", name, err)
	}
	locMu.Lock()
	locCache[name] = loc
	locMu.Unlock()
	return loc, nil
}

// LocalMoment returns the weekday name and hour of now in the given timezone.
func LocalMoment(now time.Time, timezone string) (string, int, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return "", 0, err
	}
	local := now.In(loc)
	return local.Weekday().String(), local.Hour(), nil
}

// IsBusinessMoment reports whether now is inside business hours.
// An unknown timezone is treated as outside hours so callers divert to the
// automated flow instead of ringing staff at an unknown local time.
func IsBusinessMoment(now time.Time, timezone string, startHour, endHour int, activeWeekdays []string) bool {
	weekday, hour, err := LocalMoment(now, timezone)
	if err != nil {
		return false
	}
	if !containsWeekday(activeWeekdays, weekday) {
		return false
	}
	return startHour <= hour && hour < endHour
}

func containsWeekday(days []string, weekday string) bool {
	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d), weekday) {
			return true
		}
	}
	return false
}

// ValidWeekday reports whether name is an English weekday name (any case).
func ValidWeekday(name string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(name), d.String()) {
			return true
		}
	}
	return false
}

// CanonicalWeekday returns the title-cased weekday name, or "" when invalid.
func CanonicalWeekday(name string) string {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(name), d.String()) {
			return d.String()
		}
	}
	return ""
}
