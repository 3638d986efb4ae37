package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// ConversationRecord is the durable projection of a session.
type ConversationRecord struct {
	ID           string
	UserID       string
	Title        string
	MessageCount int
	Metadata     json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type StoredMessage struct {
	ID             int64
	ConversationID string
	Seq            int
	Role           string
	Content        string
	ToolCalls      string // raw JSON, stored verbatim
	ToolCallID     string
	CreatedAt      time.Time
}

// ScoredMessage is a message row joined with its vector distance.
type ScoredMessage struct {
	StoredMessage
	Distance float32
}

// KnowledgeChunk is a fixed-window slice of an ingested document.
// Chunks are immutable; re-ingesting a source replaces its chunk set
// wholesale.
type KnowledgeChunk struct {
	ID        int64
	Source    string
	Ord       int
	Content   string
	CreatedAt time.Time
}

type ScoredChunk struct {
	KnowledgeChunk
	Distance float32
}

// EmbeddedChunk pairs chunk content with its vector for ingestion.
type EmbeddedChunk struct {
	Ord       int
	Content   string
	Embedding []float32
}

type ConversationsRepository interface {
	// Upsert inserts the conversation or, on conflict, refreshes title,
	// message count, metadata and the updated timestamp.
	Upsert(ctx context.Context, rec ConversationRecord) error
	Get(ctx context.Context, id string) (ConversationRecord, error)
}

type MessagesRepository interface {
	// UpsertBySeq inserts the message when the (conversation, seq) pair is
	// absent and leaves the existing row untouched otherwise. It returns
	// the row id either way.
	UpsertBySeq(ctx context.Context, msg StoredMessage) (id int64, inserted bool, err error)
	List(ctx context.Context, conversationID string) ([]StoredMessage, error)
	HasVector(ctx context.Context, id int64) (bool, error)
	StoreVector(ctx context.Context, id int64, vec []float32) error
	// SearchSimilar runs a cosine nearest-neighbor query over message
	// vectors, excluding system messages.
	SearchSimilar(ctx context.Context, vec []float32, limit int) ([]ScoredMessage, error)
}

type KnowledgeRepository interface {
	// ReplaceSource deletes any chunks previously stored for the source
	// and inserts the given set. Full replacement, never a merge.
	ReplaceSource(ctx context.Context, source string, chunks []EmbeddedChunk) error
	SearchSimilar(ctx context.Context, vec []float32, limit int) ([]ScoredChunk, error)
}
