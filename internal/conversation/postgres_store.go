package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PgxPool is the subset of pgxpool.Pool used by the store.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one row per conversation and one row per message.
// Uniqueness of the active conversation is enforced by a partial unique
// index on (phone, channel) WHERE status = 'active'.
type PostgresStore struct {
	pool PgxPool
	now  func() time.Time
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

var _ Store = (*PostgresStore)(nil)

const conversationColumns = `id, phone, channel, status, metadata, created_at, updated_at`

func (s *PostgresStore) FindOrCreateActive(ctx context.Context, p FindOrCreateParams) (Conversation, FindOrCreateOutcome, error) {
	if err := p.validate(); err != nil {
		return Conversation{}, "", err
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, "", fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if p.Ref != "" {
		// A concurrent claim of the same ref blocks here until the other
		// transaction commits, then reports zero rows.
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversation_refs (phone, channel, ref, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (phone, channel, ref) DO NOTHING
		`, p.Phone, p.Channel, p.Ref, s.now())
		if err != nil {
			return Conversation{}, "", fmt.Errorf("conversation: claim ref: %w", err)
		}
		if tag.RowsAffected() == 0 {
			conv, err := scanConversation(tx.QueryRow(ctx, `
				SELECT c.id, c.phone, c.channel, c.status, c.metadata, c.created_at, c.updated_at
				FROM conversation_refs r
				JOIN conversations c ON c.id = r.conversation_id
				WHERE r.phone = $1 AND r.channel = $2 AND r.ref = $3
			`, p.Phone, p.Channel, p.Ref))
			if err != nil {
				return Conversation{}, "", fmt.Errorf("conversation: load duplicate ref: %w", err)
			}
			return conv, OutcomeDuplicate, nil
		}
	}

	now := s.now()
	if p.JoinEscalated {
		conv, err := scanConversation(tx.QueryRow(ctx, `
			UPDATE conversations SET metadata = conversations.metadata || $2, updated_at = $3
			WHERE id = (
				SELECT id FROM conversations
				WHERE phone = $1 AND status = 'escalated'
				ORDER BY updated_at DESC
				LIMIT 1
				FOR UPDATE
			)
			RETURNING `+conversationColumns, p.Phone, metadata, now))
		switch {
		case err == nil:
			if err := bindRef(ctx, tx, p, conv.ID); err != nil {
				return Conversation{}, "", err
			}
			if err := tx.Commit(ctx); err != nil {
				return Conversation{}, "", fmt.Errorf("conversation: commit: %w", err)
			}
			return conv, OutcomeEscalated, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return Conversation{}, "", fmt.Errorf("conversation: join escalated: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO conversations (id, phone, channel, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', $4, $5, $5)
		ON CONFLICT (phone, channel) WHERE status = 'active'
		DO UPDATE SET metadata = conversations.metadata || EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING `+conversationColumns+`, (xmax = 0) AS inserted
	`, uuid.NewString(), p.Phone, p.Channel, metadata, now)

	var (
		conv     Conversation
		status   string
		inserted bool
	)
	if err := row.Scan(&conv.ID, &conv.Phone, &conv.Channel, &status, &conv.Metadata,
		&conv.CreatedAt, &conv.UpdatedAt, &inserted); err != nil {
		return Conversation{}, "", fmt.Errorf("conversation: upsert active: %w", err)
	}
	conv.Status = Status(status)

	if err := bindRef(ctx, tx, p, conv.ID); err != nil {
		return Conversation{}, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, "", fmt.Errorf("conversation: commit: %w", err)
	}

	if inserted {
		return conv, OutcomeCreated, nil
	}
	return conv, OutcomeExisting, nil
}

func bindRef(ctx context.Context, tx pgx.Tx, p FindOrCreateParams, conversationID string) error {
	if p.Ref == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE conversation_refs SET conversation_id = $4
		WHERE phone = $1 AND channel = $2 AND ref = $3
	`, p.Phone, p.Channel, p.Ref, conversationID); err != nil {
		return fmt.Errorf("conversation: bind ref: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindOpenByPhone(ctx context.Context, phone string) (Conversation, bool, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE phone = $1 AND status IN ('active', 'escalated')
		ORDER BY (status = 'escalated') DESC, updated_at DESC
		LIMIT 1
	`, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("conversation: find open: %w", err)
	}
	return conv, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation: get: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		query += fmt.Sprintf(" AND phone = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC, id LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list rows: %w", err)
	}
	return out, nil
}

// AppendMessage inserts one message row and bumps updated_at in the same
// statement. Messages are never rewritten, so concurrent appends cannot
// lose each other.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID string, msg Message) (Message, error) {
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	msg.ID = uuid.NewString()
	msg.ConversationID = conversationID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	err := s.pool.QueryRow(ctx, `
		WITH touched AS (
			UPDATE conversations SET updated_at = $7 WHERE id = $2 RETURNING id
		)
		INSERT INTO conversation_messages (id, conversation_id, role, body, provider_message_id, sent_by, created_at)
		SELECT $1, touched.id, $3, $4, $5, $6, $7 FROM touched
		RETURNING seq
	`, msg.ID, conversationID, msg.Role, msg.Body, nullIfEmpty(msg.ProviderMessageID), nullIfEmpty(msg.SentBy), msg.CreatedAt).Scan(&msg.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	if err != nil {
		return Message{}, fmt.Errorf("conversation: append message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, body, COALESCE(provider_message_id, ''),
			COALESCE(sent_by, ''), created_at, seq
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at, seq
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Body, &m.ProviderMessageID,
			&m.SentBy, &m.CreatedAt, &m.Seq); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: message rows: %w", err)
	}
	if len(out) == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("conversation: check exists: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
	}
	return out, nil
}

// SetStatus is last-write-wins. Reopening fails with ErrActiveConflict when
// another conversation already holds the active slot.
func (s *PostgresStore) SetStatus(ctx context.Context, conversationID string, status Status) (Conversation, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Conversation{}, err
	}
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		UPDATE conversations SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+conversationColumns, conversationID, string(status), s.now()))
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Conversation{}, ErrNotFound
		case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
			return Conversation{}, ErrActiveConflict
		}
		return Conversation{}, fmt.Errorf("conversation: set status: %w", err)
	}
	return conv, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		conv   Conversation
		status string
	)
	if err := row.Scan(&conv.ID, &conv.Phone, &conv.Channel, &status, &conv.Metadata,
		&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	conv.Status = Status(status)
	if conv.Metadata == nil {
		conv.Metadata = map[string]string{}
	}
	return conv, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
