package conversation

import "context"

const defaultListLimit = 50

// Store persists conversations and their messages. Implementations must
// make FindOrCreateActive idempotent per (phone, channel, ref) across
// processes and must append messages atomically without rewriting the log.
type Store interface {
	FindOrCreateActive(ctx context.Context, p FindOrCreateParams) (Conversation, FindOrCreateOutcome, error)
	// FindOpenByPhone returns the phone's open conversation on any channel.
	// An escalated conversation wins over an active one; ties go to the most
	// recently updated.
	FindOpenByPhone(ctx context.Context, phone string) (Conversation, bool, error)
	Get(ctx context.Context, id string) (Conversation, error)
	List(ctx context.Context, filter ListFilter) ([]Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg Message) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	SetStatus(ctx context.Context, conversationID string, status Status) (Conversation, error)
}
