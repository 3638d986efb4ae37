package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sandevgo/chorus/internal/core"
)

type KnowledgeRepo struct {
	db *sql.DB
}

func NewKnowledgeRepo(db *sql.DB) *KnowledgeRepo {
	return &KnowledgeRepo{db: db}
}

// ReplaceSource swaps a source's chunk set in one transaction: prior
// chunks and their vectors go away, the new set comes in. Never a merge.
func (r *KnowledgeRepo) ReplaceSource(ctx context.Context, source string, chunks []core.EmbeddedChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_vec WHERE rowid IN (SELECT id FROM knowledge_chunks WHERE source = ?)`,
		source,
	); err != nil {
		return fmt.Errorf("delete prior vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_chunks WHERE source = ?`, source,
	); err != nil {
		return fmt.Errorf("delete prior chunks: %w", err)
	}

	for _, c := range chunks {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_chunks (source, ord, content) VALUES (?, ?, ?)`,
			source, c.Ord, c.Content,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Ord, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		blob, err := serializeVector(c.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_vec (rowid, embedding) VALUES (?, ?)`, id, blob,
		); err != nil {
			return fmt.Errorf("insert chunk vector %d: %w", c.Ord, err)
		}
	}

	return tx.Commit()
}

func (r *KnowledgeRepo) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]core.ScoredChunk, error) {
	blob, err := serializeVector(vec)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT k.id, k.source, k.ord, k.content, k.created_at, v.distance
		FROM knowledge_vec v
		JOIN knowledge_chunks k ON k.id = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance`

	rows, err := r.db.QueryContext(ctx, query, blob, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer rows.Close()

	var results []core.ScoredChunk
	for rows.Next() {
		var c core.ScoredChunk
		if err := rows.Scan(&c.ID, &c.Source, &c.Ord, &c.Content, &c.CreatedAt, &c.Distance); err != nil {
			return nil, fmt.Errorf("scan scored chunk: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// CountBySource reports how many chunks a source currently has. Used by
// tests and the ingest report.
func (r *KnowledgeRepo) CountBySource(ctx context.Context, source string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE source = ?`, source,
	).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return n, nil
}
