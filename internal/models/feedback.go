package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceChannel is the channel a feedback item was ingested from.
type SourceChannel string

// Source channels produced by the upstream extractors.
const (
	SourceChatMessage         SourceChannel = "chat_message"
	SourceIssueTracker        SourceChannel = "issue_tracker"
	SourceDocumentChunk       SourceChannel = "document_chunk"
	SourceCallTranscriptChunk SourceChannel = "call_transcript_chunk"
	SourceUpload              SourceChannel = "upload"
)

var validSourceChannels = map[SourceChannel]struct{}{
	SourceChatMessage:         {},
	SourceIssueTracker:        {},
	SourceDocumentChunk:       {},
	SourceCallTranscriptChunk: {},
	SourceUpload:              {},
}

// IsValid reports whether s is a known source channel.
func (s SourceChannel) IsValid() bool {
	_, ok := validSourceChannels[s]

	return ok
}

// ParseSourceChannel converts a string to a SourceChannel.
func ParseSourceChannel(s string) (SourceChannel, error) {
	sc := SourceChannel(s)
	if !sc.IsValid() {
		return "", fmt.Errorf("invalid source channel: %q", s)
	}

	return sc, nil
}

// FeedbackItem is one unit of customer input as read by the clustering pipeline.
// Text is immutable once ingested; Embedding is nil until the pipeline computes it.
type FeedbackItem struct {
	ID               uuid.UUID       `json:"id"`
	Source           SourceChannel   `json:"source"`
	Text             string          `json:"text"`
	Account          *string         `json:"account,omitempty"`
	Embedding        []float32       `json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	SourceConfidence float64         `json:"source_confidence"`
	SentimentScore   *float64        `json:"sentiment_score,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// AccountKey returns the account name used for distinct-account counting.
// Items without an account share the "unknown" bucket.
func (f *FeedbackItem) AccountKey() string {
	if f.Account == nil || *f.Account == "" {
		return UnknownAccount
	}

	return *f.Account
}

// UnknownAccount groups feedback whose account could not be resolved.
const UnknownAccount = "unknown"
