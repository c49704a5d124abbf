package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/store"
)

func TestQueryJoinsSemanticAndRelational(t *testing.T) {
	ctx := context.Background()
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(16)

	now := time.Now()
	require.NoError(t, chunks.PutChunk(ctx, model.Chunk{ChunkID: "c1", Summary: "discussed the launch plan", CreatedAt: now}))
	require.NoError(t, vectors.Upsert(ctx, model.VectorPoint{
		ID:        "c1",
		Vector:    embed.DummyEmbedding("launch plan", 16),
		CreatedAt: now,
	}))
	require.NoError(t, graph.UpsertChunkNode(ctx, "c1", "discussed the launch plan", now))
	require.NoError(t, graph.UpsertEntity(ctx, model.Entity{Name: "LaunchPlan", Type: "artifact"}))
	require.NoError(t, graph.MentionsEdge(ctx, "c1", "LaunchPlan"))

	coord := New(chunks, vectors, graph, embedder, 5, 5, 0.0)
	res, stats, err := coord.Query(ctx, "launch plan")
	require.NoError(t, err)

	assert.NotEmpty(t, res.Relational)
	assert.GreaterOrEqual(t, stats.LastQueryDuration, time.Duration(0))
}

func TestQueryMissingChunkSkipsGracefully(t *testing.T) {
	ctx := context.Background()
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(8)

	require.NoError(t, vectors.Upsert(ctx, model.VectorPoint{ID: "orphan", Vector: embed.DummyEmbedding("q", 8), CreatedAt: time.Now()}))

	coord := New(chunks, vectors, graph, embedder, 5, 5, 0.0)
	res, _, err := coord.Query(ctx, "q")
	require.NoError(t, err)
	assert.Empty(t, res.Semantic, "a vector hit with no corresponding chunk must be dropped, not errored")
}
