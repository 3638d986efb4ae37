package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sandevgo/chorus/internal/core"
)

type ConversationsRepo struct {
	db *sql.DB
}

func NewConversationsRepo(db *sql.DB) *ConversationsRepo {
	return &ConversationsRepo{db: db}
}

func (r *ConversationsRepo) Upsert(ctx context.Context, rec core.ConversationRecord) error {
	metadata := string(rec.Metadata)
	if metadata == "" {
		metadata = "{}"
	}

	query := `
		INSERT INTO conversations (id, user_id, title, message_count, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			message_count = excluded.message_count,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.UserID, rec.Title, rec.MessageCount, metadata)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func (r *ConversationsRepo) Get(ctx context.Context, id string) (core.ConversationRecord, error) {
	query := `
		SELECT id, user_id, title, message_count, metadata, created_at, updated_at
		FROM conversations WHERE id = ?`

	var rec core.ConversationRecord
	var metadata string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.UserID, &rec.Title, &rec.MessageCount, &metadata, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ConversationRecord{}, core.ErrNotFound
	}
	if err != nil {
		return core.ConversationRecord{}, fmt.Errorf("get conversation: %w", err)
	}
	rec.Metadata = []byte(metadata)
	return rec, nil
}
