// Package persist projects in-memory sessions to durable conversation
// rows and reconstructs them on demand. Saving is idempotent: messages
// are addressed by their position in the history, and a row that already
// exists is never rewritten.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/service/retrieval"
	"github.com/sandevgo/chorus/internal/session"
	"github.com/sandevgo/chorus/pkg/log"
)

const (
	titleMaxLen      = 80
	placeholderTitle = "New conversation"
)

// metadata is the JSON blob stored on the conversation row. It carries
// what the message rows cannot: the session configuration and the plan.
type metadata struct {
	Persona      string          `json:"persona,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Plan         []core.PlanStep `json:"plan,omitempty"`
}

type Persistor struct {
	conversations core.ConversationsRepository
	messages      core.MessagesRepository
	index         *retrieval.Index
	store         *session.Store
}

func NewPersistor(conversations core.ConversationsRepository, messages core.MessagesRepository, index *retrieval.Index, store *session.Store) *Persistor {
	return &Persistor{
		conversations: conversations,
		messages:      messages,
		index:         index,
		store:         store,
	}
}

// Save writes the session's conversation row and message history. Message
// rows are keyed by (conversation, position): re-saving a longer history
// appends the new tail and leaves every existing row untouched. Messages
// that still lack a vector are queued for background embedding.
func (p *Persistor) Save(ctx context.Context, s *session.Session) error {
	meta, err := json.Marshal(metadata{
		Persona:      s.Persona,
		SystemPrompt: s.Config.SystemPrompt,
		Plan:         s.Plan(),
	})
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	err = p.conversations.Upsert(ctx, core.ConversationRecord{
		ID:           s.ID,
		UserID:       s.UserID,
		Title:        titleFor(s.Messages),
		MessageCount: len(s.Messages),
		Metadata:     meta,
	})
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", s.ID, err)
	}

	logger := log.FromCtx(ctx)
	for i, m := range s.Messages {
		stored := core.StoredMessage{
			ConversationID: s.ID,
			Seq:            i + 1,
			Role:           m.Role,
			Content:        m.Content,
			ToolCallID:     m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			raw, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("marshal tool calls at seq %d: %w", i+1, err)
			}
			stored.ToolCalls = string(raw)
		}

		id, _, err := p.messages.UpsertBySeq(ctx, stored)
		if err != nil {
			return fmt.Errorf("save message seq %d: %w", i+1, err)
		}

		if !indexable(m) {
			continue
		}
		has, err := p.messages.HasVector(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Int64("message_id", id).Msg("vector lookup failed, skipping backfill")
			continue
		}
		if !has {
			p.index.IndexMessage(id, m.Content)
		}
	}
	return nil
}

// Load reconstructs the session from storage, including tool calls and
// tool result linkage, and registers it with the live store. Returns
// core.ErrNotFound when no conversation exists under the id.
func (p *Persistor) Load(ctx context.Context, id string) (*session.Session, error) {
	rec, err := p.conversations.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var meta metadata
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}

	stored, err := p.messages.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", id, err)
	}

	messages := make([]core.Message, 0, len(stored))
	for _, sm := range stored {
		m := core.Message{
			Role:       sm.Role,
			Content:    sm.Content,
			ToolCallID: sm.ToolCallID,
		}
		if sm.ToolCalls != "" {
			if err := json.Unmarshal([]byte(sm.ToolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls at seq %d: %w", sm.Seq, err)
			}
		}
		messages = append(messages, m)
	}

	s := &session.Session{
		ID:       id,
		UserID:   rec.UserID,
		Persona:  meta.Persona,
		Messages: messages,
		Config:   session.Config{SystemPrompt: meta.SystemPrompt},
	}
	s.SetPlan(meta.Plan)
	p.store.Register(s)

	log.FromCtx(ctx).Info().
		Str("conversation_id", id).
		Int("messages", len(messages)).
		Msg("restored conversation")
	return s, nil
}

// titleFor derives the conversation title from the first user message,
// truncated on a rune boundary.
func titleFor(messages []core.Message) string {
	for _, m := range messages {
		if m.Role != core.RoleUser || m.Content == "" {
			continue
		}
		title := m.Content
		if utf8.RuneCountInString(title) > titleMaxLen {
			runes := []rune(title)
			title = string(runes[:titleMaxLen]) + "…"
		}
		return title
	}
	return placeholderTitle
}

func indexable(m core.Message) bool {
	return m.Role == core.RoleUser || m.Role == core.RoleAssistant
}
