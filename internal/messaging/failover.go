package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// FailoverSender attempts a primary send, then falls back to a secondary provider on error.
type FailoverSender struct {
	primary       Sender
	secondary     Sender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverSender builds a failover sender with named providers.
func NewFailoverSender(primary Sender, primaryName string, secondary Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Sender = (*FailoverSender)(nil)

// SendSMS tries the primary provider first. The secondary is skipped when
// the context is already done.
func (f *FailoverSender) SendSMS(ctx context.Context, msg OutboundSMS) (SendResult, error) {
	if f == nil || f.primary == nil {
		return SendResult{}, errors.New("messaging: failover primary sender not configured")
	}
	res, err := f.primary.SendSMS(ctx, msg)
	if err == nil {
		return res, nil
	}
	if f.secondary == nil || ctx.Err() != nil {
		return SendResult{}, err
	}
	f.logger.Warn("primary sms send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"to", msg.To,
	)
	res, fallbackErr := f.secondary.SendSMS(ctx, msg)
	if fallbackErr != nil {
		f.logger.Error("fallback sms send failed",
			"provider", f.secondaryName,
			"error", fallbackErr,
			"to", msg.To,
		)
		return SendResult{}, errors.Join(err, fallbackErr)
	}
	return res, nil
}
