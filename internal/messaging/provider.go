package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

const (
	// SMSProviderAuto tries Telnyx first, then Twilio.
	SMSProviderAuto = "auto"
	// SMSProviderTelnyx forces the Telnyx sender when credentials exist.
	SMSProviderTelnyx = "telnyx"
	// SMSProviderTwilio forces the Twilio sender when credentials exist.
	SMSProviderTwilio = "twilio"
	// SMSProviderLog only logs; used in local development.
	SMSProviderLog = "log"
)

// ProviderSelectionConfig captures the credentials required to build outbound senders.
type ProviderSelectionConfig struct {
	Preference       string
	FromNumber       string
	TelnyxAPIKey     string
	TelnyxProfileID  string
	TwilioAccountSID string
	TwilioAuthToken  string
}

// BuildSender instantiates a Sender based on the preferred provider.
// It returns the sender, the provider that was selected, and a reason when no provider could be initialized.
func BuildSender(cfg ProviderSelectionConfig, logger *logging.Logger) (Sender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}
	if preference == SMSProviderLog {
		return NewLogSender(logger), SMSProviderLog, ""
	}

	missing := map[string]string{}
	var telnyx, twilio Sender

	if cfg.TelnyxAPIKey != "" && cfg.TelnyxProfileID != "" {
		telnyx = NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, cfg.FromNumber, logger)
	} else {
		var reasons []string
		if cfg.TelnyxAPIKey == "" {
			reasons = append(reasons, "TELNYX_API_KEY missing")
		}
		if cfg.TelnyxProfileID == "" {
			reasons = append(reasons, "TELNYX_MESSAGING_PROFILE_ID missing")
		}
		missing[SMSProviderTelnyx] = strings.Join(reasons, ", ")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilio = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.FromNumber, logger)
	} else {
		var reasons []string
		if cfg.TwilioAccountSID == "" {
			reasons = append(reasons, "TWILIO_ACCOUNT_SID missing")
		}
		if cfg.TwilioAuthToken == "" {
			reasons = append(reasons, "TWILIO_AUTH_TOKEN missing")
		}
		missing[SMSProviderTwilio] = strings.Join(reasons, ", ")
	}

	if preference != SMSProviderAuto {
		if preference == SMSProviderTelnyx && telnyx != nil {
			return telnyx, SMSProviderTelnyx, ""
		}
		if preference == SMSProviderTwilio && twilio != nil {
			return twilio, SMSProviderTwilio, ""
		}
		reason := missing[preference]
		if reason == "" {
			reason = fmt.Sprintf("%s sender not configured", preference)
		}
		return nil, "", reason
	}

	switch {
	case telnyx != nil && twilio != nil:
		return NewFailoverSender(telnyx, SMSProviderTelnyx, twilio, SMSProviderTwilio, logger), SMSProviderTelnyx + "+" + SMSProviderTwilio, ""
	case telnyx != nil:
		return telnyx, SMSProviderTelnyx, ""
	case twilio != nil:
		return twilio, SMSProviderTwilio, ""
	}

	var reasons []string
	for _, provider := range []string{SMSProviderTelnyx, SMSProviderTwilio} {
		if msg := missing[provider]; msg != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", provider, msg))
		}
	}
	return nil, "", strings.Join(reasons, "; ")
}

// LogSender pretends to send and only logs the message.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

var _ Sender = (*LogSender)(nil)

func (s *LogSender) SendSMS(ctx context.Context, msg OutboundSMS) (SendResult, error) {
	msg, err := msg.validate("+10000000000")
	if err != nil {
		return SendResult{}, err
	}
	id := "log-" + uuid.NewString()
	s.logger.Info("sms send (log only)", "to", msg.To, "from", msg.From, "kind", msg.Kind, "body", msg.Body, "provider_message_id", id)
	return SendResult{Provider: SMSProviderLog, ProviderMessageID: id, Status: "logged"}, nil
}
