package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

var telnyxSendTracer = otel.Tracer("frontdesk.internal.messaging.telnyx_send")

const telnyxAPIBase = "https://api.telnyx.com"

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	from               string
	baseURL            string
	httpClient         *http.Client
	backoff            func(attempt int) time.Duration
	logger             *logging.Logger
}

// NewTelnyxSender builds a sender for Telnyx V2 API.
func NewTelnyxSender(apiKey, messagingProfileID, defaultFrom string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		from:               defaultFrom,
		baseURL:            telnyxAPIBase,
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		backoff:            jitterBackoff,
		logger:             logger,
	}
}

var _ Sender = (*TelnyxSender)(nil)

type telnyxMessage struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Text               string `json:"text"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty"`
}

// SendSMS dispatches a single SMS via Telnyx, retrying transient failures.
func (s *TelnyxSender) SendSMS(ctx context.Context, msg OutboundSMS) (SendResult, error) {
	if s.apiKey == "" {
		return SendResult{}, errors.New("messaging: telnyx api key missing")
	}
	msg, err := msg.validate(s.from)
	if err != nil {
		return SendResult{}, err
	}

	ctx, span := telnyxSendTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("frontdesk.to", msg.To),
		attribute.String("frontdesk.from", msg.From),
		attribute.String("frontdesk.message_kind", msg.Kind),
	)

	bodyBytes, err := json.Marshal(telnyxMessage{
		From:               msg.From,
		To:                 msg.To,
		Text:               msg.Body,
		MessagingProfileID: s.messagingProfileID,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("messaging: marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempt; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/messages", bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					Data struct {
						ID string `json:"id"`
						To []struct {
							Status string `json:"status"`
						} `json:"to"`
					} `json:"data"`
				}
				_ = json.Unmarshal(body, &parsed)
				status := ""
				if len(parsed.Data.To) > 0 {
					status = parsed.Data.To[0].Status
				}
				s.logger.Info("telnyx sms sent", "to", msg.To, "kind", msg.Kind, "provider_message_id", parsed.Data.ID)
				return SendResult{Provider: SMSProviderTelnyx, ProviderMessageID: parsed.Data.ID, Status: status}, nil
			}
			lastErr = fmt.Errorf("messaging: telnyx send failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
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
	s.logger.Error("failed to send telnyx sms", "error", lastErr, "to", msg.To)
	return SendResult{}, lastErr
}
