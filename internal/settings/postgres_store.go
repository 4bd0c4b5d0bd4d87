package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// saveLockKey serializes concurrent Save calls so only one row stays active.
const saveLockKey int64 = 7_240_001

// PgxPool is the subset of pgxpool.Pool used by the store.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists versioned phone settings. A partial unique index on
// (active) WHERE active guarantees a single active row.
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("settings: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Current returns the active settings row.
func (s *PostgresStore) Current(ctx context.Context) (PhoneSettings, error) {
	query := `
		SELECT version, business_start_hour, business_end_hour, active_weekdays,
			dial_targets, dial_domain, dial_timeout_seconds, timezone,
			COALESCE(updated_by, ''), updated_at
		FROM phone_settings
		WHERE active
		ORDER BY version DESC
		LIMIT 1
	`
	var out PhoneSettings
	err := s.pool.QueryRow(ctx, query).Scan(
		&out.Version, &out.BusinessStartHour, &out.BusinessEndHour, &out.ActiveWeekdays,
		&out.DialTargets, &out.DialDomain, &out.DialTimeoutSeconds, &out.Timezone,
		&out.UpdatedBy, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PhoneSettings{}, ErrNotConfigured
		}
		return PhoneSettings{}, fmt.Errorf("settings: load current: %w", err)
	}
	return out, nil
}

// Save deactivates the current row and inserts the new version in one transaction.
func (s *PostgresStore) Save(ctx context.Context, in PhoneSettings) (PhoneSettings, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return PhoneSettings{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PhoneSettings{}, fmt.Errorf("settings: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, saveLockKey); err != nil {
		return PhoneSettings{}, fmt.Errorf("settings: lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE phone_settings SET active = false WHERE active`); err != nil {
		return PhoneSettings{}, fmt.Errorf("settings: deactivate previous: %w", err)
	}
	query := `
		INSERT INTO phone_settings (
			active, business_start_hour, business_end_hour, active_weekdays,
			dial_targets, dial_domain, dial_timeout_seconds, timezone, updated_by
		)
		VALUES (true, $1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING version, updated_at
	`
	out := in
	if err := tx.QueryRow(ctx, query,
		in.BusinessStartHour, in.BusinessEndHour, in.ActiveWeekdays,
		in.DialTargets, in.DialDomain, in.DialTimeoutSeconds, in.Timezone, in.UpdatedBy,
	).Scan(&out.Version, &out.UpdatedAt); err != nil {
		return PhoneSettings{}, fmt.Errorf("settings: insert version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return PhoneSettings{}, fmt.Errorf("settings: commit: %w", err)
	}
	return out, nil
}
