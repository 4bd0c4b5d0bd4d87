package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Health reports "ok" when every check passes and "degraded" otherwise.
// The status code is always 200.
func Health(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = "degraded"
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		payload := map[string]any{"status": status}
		if len(results) > 0 {
			payload["checks"] = results
		}
		writeJSON(w, http.StatusOK, payload)
	}
}
