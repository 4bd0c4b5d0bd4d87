package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

var twilioSendTracer = otel.Tracer("frontdesk.internal.messaging.twilio_send")

const (
	twilioAPIBase  = "https://api.twilio.com"
	maxSendAttempt = 3
)

// TwilioSender posts SMS messages using Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
	logger     *logging.Logger
}

// NewTwilioSender builds a sender with sane defaults.
func NewTwilioSender(accountSID, authToken, defaultFrom string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       defaultFrom,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    jitterBackoff,
		logger:     logger,
	}
}

var _ Sender = (*TwilioSender)(nil)

// SendSMS dispatches a single SMS, retrying transient failures. 4xx
// responses other than 429 are not retried.
func (s *TwilioSender) SendSMS(ctx context.Context, msg OutboundSMS) (SendResult, error) {
	if s.accountSID == "" || s.authToken == "" {
		return SendResult{}, errors.New("messaging: twilio credentials missing")
	}
	msg, err := msg.validate(s.from)
	if err != nil {
		return SendResult{}, err
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("frontdesk.to", msg.To),
		attribute.String("frontdesk.message_kind", msg.Kind),
	)

	payload := url.Values{}
	payload.Set("To", msg.To)
	payload.Set("From", msg.From)
	payload.Set("Body", msg.Body)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempt; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID    string `json:"sid"`
					Status string `json:"status"`
				}
				_ = json.Unmarshal(body, &parsed)
				s.logger.Info("twilio sms sent", "to", msg.To, "kind", msg.Kind, "provider_message_id", parsed.SID)
				return SendResult{Provider: SMSProviderTwilio, ProviderMessageID: parsed.SID, Status: parsed.Status}, nil
			}
			lastErr = fmt.Errorf("messaging: twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < maxSendAttempt {
			if err := waitBackoff(ctx, s.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	span.RecordError(lastErr)
	return SendResult{}, lastErr
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

func jitterBackoff(int) time.Duration {
	return time.Duration(200+rand.Intn(300)) * time.Millisecond
}

// waitBackoff sleeps unless ctx ends first.
func waitBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
