// Package archive copies voicemails and closed conversation transcripts to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes JSON objects to one bucket. With no bucket every call is a no-op.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveVoicemail stores the voicemail record and returns its key.
func (s *Store) ArchiveVoicemail(ctx context.Context, rec VoicemailRecord) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	at := rec.ReceivedAt
	if at.IsZero() {
		at = s.now().UTC()
		rec.ReceivedAt = at
	}
	key := fmt.Sprintf("voicemails/v1/by-date/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), rec.CallSid)
	if err := s.putJSON(ctx, key, rec); err != nil {
		return "", err
	}
	s.logger.Info("archived voicemail to S3", "call_sid", rec.CallSid, "s3_key", key)
	s.appendManifestBestEffort(ctx, ManifestEntry{Kind: "voicemail", ID: rec.CallSid, S3Key: key, ArchivedAt: at.Format(time.RFC3339)})
	return key, nil
}

// ArchiveConversation stores a scrubbed transcript and returns its key.
func (s *Store) ArchiveConversation(ctx context.Context, rec ConversationRecord) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = s.now().UTC()
	}
	for i := range rec.Messages {
		rec.Messages[i].Content = ScrubPII(rec.Messages[i].Content)
	}
	rec.MessageCount = len(rec.Messages)
	at := rec.ArchivedAt
	key := fmt.Sprintf("conversations/v1/by-date/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), rec.ConversationID)
	if err := s.putJSON(ctx, key, rec); err != nil {
		return "", err
	}
	s.logger.Info("archived conversation to S3", "conversation_id", rec.ConversationID, "s3_key", key, "message_count", rec.MessageCount)
	s.appendManifestBestEffort(ctx, ManifestEntry{
		Kind:         "conversation",
		ID:           rec.ConversationID,
		S3Key:        key,
		ArchivedAt:   at.Format(time.RFC3339),
		MessageCount: rec.MessageCount,
	})
	return key, nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("archive: marshal %s: %w", key, err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	return nil
}

func (s *Store) appendManifestBestEffort(ctx context.Context, entry ManifestEntry) {
	if err := s.AppendManifest(ctx, entry); err != nil {
		s.logger.Warn("failed to append manifest", "error", err, "id", entry.ID)
	}
}

// AppendManifest appends a JSONL line to the monthly manifest. S3 has no
// append, so concurrent writers can drop lines; the objects themselves are
// unaffected.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	now := s.now().UTC()
	manifestKey := fmt.Sprintf("manifests/v1/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}
