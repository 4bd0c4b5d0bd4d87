package deliverylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultListLimit = 100

// SQLStore writes the log to Postgres through database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("deliverylog: db required")
	}
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

// Record inserts the entry. IDs and timestamps are filled when missing.
func (s *SQLStore) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("deliverylog: encode metadata: %w", err)
		}
		metadata = encoded
	}

	query := `
		INSERT INTO delivery_log (
			id, recipient, message_type, body, provider_id, status,
			error, call_sid, conversation_id, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Recipient,
		string(e.Type),
		e.Body,
		nullString(e.ProviderID),
		string(e.Status),
		nullString(e.Error),
		nullString(e.CallSid),
		nullString(e.ConversationID),
		metadata,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("deliverylog: insert entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (s *SQLStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, recipient, message_type, body, provider_id, status,
			error, call_sid, conversation_id, metadata, created_at
		FROM delivery_log
		WHERE 1=1
	`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if filter.Recipient != "" {
		add("recipient =", filter.Recipient)
	}
	if filter.ConversationID != "" {
		add("conversation_id =", filter.ConversationID)
	}
	if filter.CallSid != "" {
		add("call_sid =", filter.CallSid)
	}
	if filter.Type != "" {
		add("message_type =", string(filter.Type))
	}
	if !filter.Since.IsZero() {
		add("created_at >=", filter.Since)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deliverylog: query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                    Entry
			msgType, status                      string
			providerID, errText, callSid, convID sql.NullString
			metadata                             []byte
		)
		if err := rows.Scan(&e.ID, &e.Recipient, &msgType, &e.Body, &providerID, &status,
			&errText, &callSid, &convID, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("deliverylog: scan entry: %w", err)
		}
		e.Type = Type(msgType)
		e.Status = Status(status)
		e.ProviderID = providerID.String
		e.Error = errText.String
		e.CallSid = callSid.String
		e.ConversationID = convID.String
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deliverylog: iterate entries: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
