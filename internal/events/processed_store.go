// Package events tracks provider webhook deliveries that were already handled
// so retried deliveries become no-ops.
package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Providers used as the first half of the dedupe key.
const (
	ProviderTwilioSMS   = "twilio_sms"
	ProviderTwilioVoice = "twilio_voice"
)

// Tracker marks an event as processed exactly once.
type Tracker interface {
	// MarkProcessed returns true only for the first caller with this key.
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ProcessedStore records handled events in Postgres.
type ProcessedStore struct {
	pool execer
}

// NewProcessedStore accepts a *pgxpool.Pool or anything with the same Exec
// method.
func NewProcessedStore(pool execer) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

var _ Tracker = (*ProcessedStore)(nil)

// MarkProcessed inserts an event id for the provider, returning false if it already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
