package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sandevgo/chorus/internal/core"
)

type MessagesRepo struct {
	db *sql.DB
}

func NewMessagesRepo(db *sql.DB) *MessagesRepo {
	return &MessagesRepo{db: db}
}

// UpsertBySeq inserts the message at its (conversation, seq) slot. An
// existing row is left untouched (content is immutable once written) and
// its id is returned so the caller can check for a missing vector.
func (r *MessagesRepo) UpsertBySeq(ctx context.Context, msg core.StoredMessage) (int64, bool, error) {
	insert := `
		INSERT INTO messages (conversation_id, seq, role, content, tool_calls, tool_call_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, seq) DO NOTHING`

	res, err := r.db.ExecContext(ctx, insert,
		msg.ConversationID, msg.Seq, msg.Role, msg.Content, msg.ToolCalls, msg.ToolCallID)
	if err != nil {
		return 0, false, fmt.Errorf("insert message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE conversation_id = ? AND seq = ?`,
		msg.ConversationID, msg.Seq,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("lookup message id: %w", err)
	}
	return id, false, nil
}

func (r *MessagesRepo) List(ctx context.Context, conversationID string) ([]core.StoredMessage, error) {
	query := `
		SELECT id, conversation_id, seq, role, content, tool_calls, tool_call_id, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []core.StoredMessage
	for rows.Next() {
		var m core.StoredMessage
		var content, toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &content, &toolCalls, &toolCallID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Content = content.String
		m.ToolCalls = toolCalls.String
		m.ToolCallID = toolCallID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *MessagesRepo) HasVector(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages_vec WHERE rowid = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check message vector: %w", err)
	}
	return exists, nil
}

func (r *MessagesRepo) StoreVector(ctx context.Context, id int64, vec []float32) error {
	blob, err := serializeVector(vec)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages_vec WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("clear message vector: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO messages_vec (rowid, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return fmt.Errorf("insert message vector: %w", err)
	}
	return tx.Commit()
}

// SearchSimilar runs a cosine nearest-neighbor query over message vectors.
// System messages never come back.
func (r *MessagesRepo) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]core.ScoredMessage, error) {
	blob, err := serializeVector(vec)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT m.id, m.conversation_id, m.seq, m.role, m.content, m.created_at, v.distance
		FROM messages_vec v
		JOIN messages m ON m.id = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ? AND m.role != 'system'
		ORDER BY v.distance`

	rows, err := r.db.QueryContext(ctx, query, blob, limit)
	if err != nil {
		return nil, fmt.Errorf("message search: %w", err)
	}
	defer rows.Close()

	var results []core.ScoredMessage
	for rows.Next() {
		var m core.ScoredMessage
		var content sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &content, &m.CreatedAt, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan scored message: %w", err)
		}
		m.Content = content.String
		results = append(results, m)
	}
	return results, rows.Err()
}
