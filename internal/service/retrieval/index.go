// Package retrieval embeds, stores and searches vectors over message
// history and ingested knowledge. Search failures degrade to empty
// results; a turn never fails because retrieval did.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/worker"
	"github.com/sandevgo/chorus/pkg/log"
)

// MinIndexableLen is the content length, in characters, below which a
// message is not worth a vector.
const MinIndexableLen = 5

type Index struct {
	embedder  core.Embedder
	messages  core.MessagesRepository
	knowledge core.KnowledgeRepository
	pool      *worker.Pool
}

func NewIndex(embedder core.Embedder, messages core.MessagesRepository, knowledge core.KnowledgeRepository, pool *worker.Pool) *Index {
	return &Index{
		embedder:  embedder,
		messages:  messages,
		knowledge: knowledge,
		pool:      pool,
	}
}

// Embed delegates to the embedding provider and L2-normalizes the result
// so stored vectors compare on direction only. A zero-norm vector comes
// back unchanged.
func (ix *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return normalize(vec), nil
}

// SearchContext finds non-system messages whose cosine similarity to the
// query exceeds threshold, best first, at most limit. Any failure is
// logged and degrades to an empty result.
func (ix *Index) SearchContext(ctx context.Context, query string, limit int, threshold float32) []core.ContextItem {
	logger := log.FromCtx(ctx)

	vec, err := ix.Embed(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to embed retrieval query")
		return nil
	}

	scored, err := ix.messages.SearchSimilar(ctx, vec, limit)
	if err != nil {
		logger.Warn().Err(err).Msg("message retrieval failed")
		return nil
	}

	var items []core.ContextItem
	for _, m := range scored {
		sim := 1 - m.Distance
		if sim <= threshold {
			continue
		}
		items = append(items, core.ContextItem{
			ID:        m.ID,
			Content:   fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content),
			Type:      "message",
			Score:     sim,
			Source:    "history",
			CreatedAt: m.CreatedAt,
		})
	}
	return items
}

// SearchKnowledge runs the same mechanics over knowledge chunks, querying
// with the joined topic list.
func (ix *Index) SearchKnowledge(ctx context.Context, topics []string, limit int, threshold float32) []core.ContextItem {
	logger := log.FromCtx(ctx)

	query := strings.TrimSpace(strings.Join(topics, " "))
	if query == "" {
		return nil
	}

	vec, err := ix.Embed(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to embed knowledge query")
		return nil
	}

	scored, err := ix.knowledge.SearchSimilar(ctx, vec, limit)
	if err != nil {
		logger.Warn().Err(err).Msg("knowledge retrieval failed")
		return nil
	}

	var items []core.ContextItem
	for _, c := range scored {
		sim := 1 - c.Distance
		if sim <= threshold {
			continue
		}
		items = append(items, core.ContextItem{
			ID:        c.ID,
			Content:   c.Content,
			Type:      "knowledge",
			Score:     sim,
			Source:    c.Source,
			CreatedAt: c.CreatedAt,
		})
	}
	return items
}

// IndexMessage submits a best-effort background job that embeds the
// content and stores the vector against the message id. Short content is
// skipped entirely, as is everything when the index was wired without a
// pool. Failures are logged by the pool and never reach the triggering
// turn.
func (ix *Index) IndexMessage(id int64, content string) {
	if ix.pool == nil {
		return
	}
	if utf8.RuneCountInString(content) < MinIndexableLen {
		return
	}

	ix.pool.Submit(func(ctx context.Context) error {
		vec, err := ix.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("index message %d: %w", id, err)
		}
		if err := ix.messages.StoreVector(ctx, id, vec); err != nil {
			return fmt.Errorf("store vector for message %d: %w", id, err)
		}
		return nil
	})
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
