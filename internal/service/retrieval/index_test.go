package retrieval

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec      []float32
	err      error
	batchErr error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.vec...), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), f.vec...)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension(ctx context.Context) (int, error) {
	return len(f.vec), nil
}

type fakeMessages struct {
	mu      sync.Mutex
	scored  []core.ScoredMessage
	err     error
	vectors map[int64][]float32
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{vectors: make(map[int64][]float32)}
}

func (f *fakeMessages) UpsertBySeq(ctx context.Context, m core.StoredMessage) (int64, bool, error) {
	return 0, false, nil
}

func (f *fakeMessages) List(ctx context.Context, conversationID string) ([]core.StoredMessage, error) {
	return nil, nil
}

func (f *fakeMessages) HasVector(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vectors[id]
	return ok, nil
}

func (f *fakeMessages) StoreVector(ctx context.Context, id int64, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[id] = vec
	return nil
}

func (f *fakeMessages) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]core.ScoredMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scored, nil
}

type fakeKnowledge struct {
	scored  []core.ScoredChunk
	err     error
	sources map[string][]core.EmbeddedChunk
}

func newFakeKnowledge() *fakeKnowledge {
	return &fakeKnowledge{sources: make(map[string][]core.EmbeddedChunk)}
}

func (f *fakeKnowledge) ReplaceSource(ctx context.Context, source string, chunks []core.EmbeddedChunk) error {
	if f.err != nil {
		return f.err
	}
	f.sources[source] = chunks
	return nil
}

func (f *fakeKnowledge) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]core.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scored, nil
}

func TestEmbedNormalizes(t *testing.T) {
	ix := NewIndex(&fakeEmbedder{vec: []float32{3, 4}}, newFakeMessages(), newFakeKnowledge(), nil)

	vec, err := ix.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestEmbedZeroVectorPassesThrough(t *testing.T) {
	ix := NewIndex(&fakeEmbedder{vec: []float32{0, 0, 0}}, newFakeMessages(), newFakeKnowledge(), nil)

	vec, err := ix.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, vec)
}

func TestSearchContextFiltersByThreshold(t *testing.T) {
	msgs := newFakeMessages()
	msgs.scored = []core.ScoredMessage{
		{StoredMessage: core.StoredMessage{ID: 1, Role: core.RoleUser, Content: "close match", CreatedAt: time.Now()}, Distance: 0.1},
		{StoredMessage: core.StoredMessage{ID: 2, Role: core.RoleAssistant, Content: "far match", CreatedAt: time.Now()}, Distance: 0.9},
	}
	ix := NewIndex(&fakeEmbedder{vec: []float32{1, 0}}, msgs, newFakeKnowledge(), nil)

	items := ix.SearchContext(context.Background(), "query", 5, 0.6)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, "message", items[0].Type)
	assert.Contains(t, items[0].Content, "USER:")
	assert.InDelta(t, 0.9, items[0].Score, 1e-6)
}

func TestSearchContextDegradesToEmptyOnFailure(t *testing.T) {
	// Embedding failure.
	ix := NewIndex(&fakeEmbedder{err: errors.New("provider down")}, newFakeMessages(), newFakeKnowledge(), nil)
	assert.Empty(t, ix.SearchContext(context.Background(), "query", 5, 0.6))

	// Storage failure.
	msgs := newFakeMessages()
	msgs.err = errors.New("db gone")
	ix = NewIndex(&fakeEmbedder{vec: []float32{1, 0}}, msgs, newFakeKnowledge(), nil)
	assert.Empty(t, ix.SearchContext(context.Background(), "query", 5, 0.6))
}

func TestSearchKnowledgeJoinsTopics(t *testing.T) {
	kn := newFakeKnowledge()
	kn.scored = []core.ScoredChunk{
		{KnowledgeChunk: core.KnowledgeChunk{ID: 7, Source: "notes.txt", Content: "a fact"}, Distance: 0.2},
	}
	ix := NewIndex(&fakeEmbedder{vec: []float32{1, 0}}, newFakeMessages(), kn, nil)

	items := ix.SearchKnowledge(context.Background(), []string{"jazz", "piano"}, 5, 0.6)
	require.Len(t, items, 1)
	assert.Equal(t, "knowledge", items[0].Type)
	assert.Equal(t, "notes.txt", items[0].Source)

	assert.Empty(t, ix.SearchKnowledge(context.Background(), nil, 5, 0.6))
}

func TestIndexMessageSkipsShortContent(t *testing.T) {
	pool := worker.NewPool(1, 4)
	msgs := newFakeMessages()
	ix := NewIndex(&fakeEmbedder{vec: []float32{1, 0}}, msgs, newFakeKnowledge(), pool)

	ctx, cancel := context.WithCancel(context.Background())
	go pool.Start(ctx)

	ix.IndexMessage(1, "hi") // below the minimum, never submitted
	ix.IndexMessage(2, "long enough to index")
	ix.IndexMessage(3, "日本語") // 9 bytes but 3 characters, still short

	cancel()
	require.NoError(t, pool.Shutdown(context.Background()))

	has, _ := msgs.HasVector(context.Background(), 1)
	assert.False(t, has)
	has, _ = msgs.HasVector(context.Background(), 2)
	assert.True(t, has)
	has, _ = msgs.HasVector(context.Background(), 3)
	assert.False(t, has)
}

func TestIndexMessageWithoutPoolIsNoOp(t *testing.T) {
	msgs := newFakeMessages()
	ix := NewIndex(&fakeEmbedder{vec: []float32{1, 0}}, msgs, newFakeKnowledge(), nil)

	ix.IndexMessage(1, "long enough to index")

	has, _ := msgs.HasVector(context.Background(), 1)
	assert.False(t, has)
}

func TestIngestDirReplacesPerFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha beta gamma"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("delta"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	kn := newFakeKnowledge()
	ix := NewIndex(&fakeEmbedder{vec: []float32{1, 0}}, newFakeMessages(), kn, nil)

	reports, err := ix.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, reports, 2, "directories are skipped")

	for _, r := range reports {
		assert.NoError(t, r.Err)
		assert.Equal(t, 1, r.Chunks)
	}
	assert.Len(t, kn.sources["a.txt"], 1)
	assert.Len(t, kn.sources["b.txt"], 1)
}

func TestIngestDirReportsFailuresWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("beta"), 0o644))

	ix := NewIndex(&fakeEmbedder{vec: []float32{1, 0}, batchErr: errors.New("embedder down")}, newFakeMessages(), newFakeKnowledge(), nil)

	reports, err := ix.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Error(t, r.Err)
	}
}
