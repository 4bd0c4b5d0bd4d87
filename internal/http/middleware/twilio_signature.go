package middleware

import (
	"net/http"

	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// TwilioSignature rejects provider webhooks whose X-Twilio-Signature does not
// match. An empty auth token disables the check (local development).
func TwilioSignature(authToken, publicBaseURL string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if authToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			url := messaging.WebhookURL(r, publicBaseURL)
			if !messaging.ValidateTwilioSignature(r, authToken, url) {
				logger.Warn("rejected webhook with bad signature", "path", r.URL.Path)
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
