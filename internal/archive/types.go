package archive

import "time"

// VoicemailRecord is the archived form of a voicemail callback.
type VoicemailRecord struct {
	CallSid         string    `json:"call_sid"`
	Phone           string    `json:"phone"`
	DurationSeconds int       `json:"duration_seconds"`
	Transcript      string    `json:"transcript,omitempty"`
	RecordingURL    string    `json:"recording_url,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// Message is one transcript line in a ConversationRecord.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	SentBy  string    `json:"sent_by,omitempty"`
	At      time.Time `json:"at"`
}

// ConversationRecord is the archived transcript of a closed conversation.
// The phone number is hashed and message bodies are scrubbed.
type ConversationRecord struct {
	ConversationID string    `json:"conversation_id"`
	PhoneHash      string    `json:"phone_hash"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	Messages       []Message `json:"messages"`
	MessageCount   int       `json:"message_count"`
	StartedAt      time.Time `json:"started_at"`
	ArchivedAt     time.Time `json:"archived_at"`
}

// ManifestEntry is one JSONL line in a monthly manifest.
type ManifestEntry struct {
	Kind         string `json:"kind"`
	ID           string `json:"id"`
	S3Key        string `json:"s3_key"`
	ArchivedAt   string `json:"archived_at"`
	MessageCount int    `json:"message_count,omitempty"`
}
