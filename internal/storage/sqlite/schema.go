package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/sandevgo/chorus/pkg/log"
)

var vecTables = []string{"messages_vec", "knowledge_vec"}

var vecWidthRe = regexp.MustCompile(`float\[(\d+)\]`)

// ReconcileVectorSchema compares each vec0 table's declared width against
// the embedding provider's width. Missing tables are created; a mismatched
// table is dropped and recreated, which DISCARDS every vector stored in
// it; they must be regenerated by later backfill. One-way and destructive,
// so it runs once at startup before traffic and logs loudly.
func ReconcileVectorSchema(ctx context.Context, db *sql.DB, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	logger := log.FromCtx(ctx)

	for _, table := range vecTables {
		declared, err := declaredVectorWidth(ctx, db, table)
		if errors.Is(err, sql.ErrNoRows) {
			logger.Info().Str("table", table).Int("dim", dim).Msg("creating vector table")
			if err := createVecTable(ctx, db, table, dim); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("introspect %s: %w", table, err)
		}

		if declared == dim {
			continue
		}

		logger.Warn().
			Str("table", table).
			Int("declared", declared).
			Int("provider", dim).
			Msg("VECTOR WIDTH MISMATCH: rebuilding table and discarding all stored vectors")

		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
		if err := createVecTable(ctx, db, table, dim); err != nil {
			return err
		}
	}
	return nil
}

// declaredVectorWidth reads the CREATE VIRTUAL TABLE statement from
// sqlite_master and parses the float[N] column width out of it.
func declaredVectorWidth(ctx context.Context, db *sql.DB, table string) (int, error) {
	var ddl string
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&ddl)
	if err != nil {
		return 0, err
	}

	m := vecWidthRe.FindStringSubmatch(ddl)
	if m == nil {
		return 0, fmt.Errorf("no float[N] column in %s ddl: %s", table, ddl)
	}
	var width int
	if _, err := fmt.Sscanf(m[1], "%d", &width); err != nil {
		return 0, err
	}
	return width, nil
}

func createVecTable(ctx context.Context, db *sql.DB, table string, dim int) error {
	stmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE %s USING vec0(embedding float[%d] distance_metric=cosine)`,
		table, dim,
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}
