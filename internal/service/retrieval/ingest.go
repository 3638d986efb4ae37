package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/providers/rag"
	"github.com/sandevgo/chorus/pkg/log"
)

// FileReport is the per-file outcome of an ingestion run.
type FileReport struct {
	Source string
	Chunks int
	Err    error
}

// IngestDir walks the directory's regular files, chunks each one, embeds
// the chunks in a batch and replaces the file's stored knowledge
// atomically. One failing file does not abort the run; its error lands in
// the report instead.
func (ix *Index) IngestDir(ctx context.Context, dir string) ([]FileReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}

	logger := log.FromCtx(ctx)
	cfg := rag.DefaultChunkerConfig()

	var reports []FileReport
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		source := e.Name()
		n, err := ix.ingestFile(ctx, filepath.Join(dir, source), source, cfg)
		if err != nil {
			logger.Warn().Err(err).Str("source", source).Msg("failed to ingest file")
		} else {
			logger.Info().Str("source", source).Int("chunks", n).Msg("ingested file")
		}
		reports = append(reports, FileReport{Source: source, Chunks: n, Err: err})
	}
	return reports, nil
}

func (ix *Index) ingestFile(ctx context.Context, path, source string, cfg rag.ChunkerConfig) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	chunks := rag.ChunkText(string(data), cfg)
	if len(chunks) == 0 {
		// Empty files still clear any previously stored chunks.
		return 0, ix.knowledge.ReplaceSource(ctx, source, nil)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	embedded := make([]core.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = core.EmbeddedChunk{
			Ord:       c.Index,
			Content:   c.Text,
			Embedding: normalize(vecs[i]),
		}
	}

	if err := ix.knowledge.ReplaceSource(ctx, source, embedded); err != nil {
		return 0, fmt.Errorf("replace source: %w", err)
	}
	return len(embedded), nil
}
