package coldpath

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/statemachine"
	"github.com/elevend0g/vicw/internal/store"
)

func TestSummarizeShortTextPassesThrough(t *testing.T) {
	out := Summarize("A single short sentence.", 2, 1, 256)
	assert.Equal(t, "A single short sentence.", out)
}

func TestSummarizeLeadTail(t *testing.T) {
	text := "One. Two. Three. Four. Five. Six."
	out := Summarize(text, 2, 1, 256)
	assert.Contains(t, out, "One")
	assert.Contains(t, out, "Two")
	assert.Contains(t, out, "Six")
	assert.NotContains(t, out, "Four")
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embed backend down")
}
func (failingEmbedder) Dim() int { return 4 }

func TestProcessJobIsolatesStepErrors(t *testing.T) {
	ctx := context.Background()
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	extractor := statemachine.New(statemachine.DefaultCatalog())

	m := New(chunks, vectors, graph, failingEmbedder{}, extractor, 2, 1, 256, zerolog.Nop())

	job := model.OffloadJob{
		ChunkID:   "chunk_1",
		CreatedAt: time.Now(),
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "We need to ship the release."},
			{Role: model.RoleAssistant, Content: "Understood, starting now."},
		},
	}

	res := m.ProcessJob(ctx, job)
	assert.False(t, res.Success, "embed failure should mark the job unsuccessful")
	require.Contains(t, res.StepErrors, "embed")

	// The chunk store and graph steps must still have succeeded despite the embed failure.
	_, ok, err := chunks.GetChunk(ctx, "chunk_1")
	require.NoError(t, err)
	assert.True(t, ok, "chunk store write must not be blocked by an embedding failure")

	active, err := graph.ActiveStates(ctx, model.StateTask, 10)
	require.NoError(t, err)
	assert.Len(t, active, 1, "state extraction must still run despite the embedding failure")
}

func TestProcessJobFullSuccess(t *testing.T) {
	ctx := context.Background()
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(8)
	extractor := statemachine.New(statemachine.DefaultCatalog())

	m := New(chunks, vectors, graph, embedder, extractor, 2, 1, 256, zerolog.Nop())

	job := model.OffloadJob{
		ChunkID:   "chunk_2",
		CreatedAt: time.Now(),
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "Let's plan the launch."},
		},
	}

	res := m.ProcessJob(ctx, job)
	assert.True(t, res.Success)
	assert.Empty(t, res.StepErrors)

	wantSummary := Summarize(renderJobText(job), 2, 1, 256)
	hits, err := vectors.Search(ctx, embed.DummyEmbedding(wantSummary, 8), 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk_2", hits[0].ID)
}

func TestProcessJobEmbedsSummaryNotFullText(t *testing.T) {
	ctx := context.Background()
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(8)
	extractor := statemachine.New(statemachine.DefaultCatalog())

	// Lead/tail of 1/1 sentence over a long multi-sentence transcript guarantees the summary is a
	// strict subset of the full text, so embedding the summary produces a different vector than
	// embedding the full text would.
	m := New(chunks, vectors, graph, embedder, extractor, 1, 1, 256, zerolog.Nop())

	job := model.OffloadJob{
		ChunkID:   "chunk_3",
		CreatedAt: time.Now(),
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."},
		},
	}

	res := m.ProcessJob(ctx, job)
	require.True(t, res.Success)

	summaryVec := embed.DummyEmbedding(res.Summary, 8)
	fullTextVec := embed.DummyEmbedding(renderJobText(job), 8)
	require.NotEqual(t, summaryVec, fullTextVec, "summary and full text must differ for this fixture")

	hits, err := vectors.Search(ctx, summaryVec, 1, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk_3", hits[0].ID, "vector index must be keyed on the summary embedding, not the full-text embedding")
}

func TestProcessJobSkipsStateExtractionForIngestJobs(t *testing.T) {
	ctx := context.Background()
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(8)
	extractor := statemachine.New(statemachine.DefaultCatalog())

	m := New(chunks, vectors, graph, embedder, extractor, 2, 1, 256, zerolog.Nop())

	job := model.OffloadJob{
		ChunkID:      "chunk_ingest",
		CreatedAt:    time.Now(),
		SkipShedPath: true,
		IngestMeta:   map[string]string{"source": "backfill"},
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "We need to ship the release."},
		},
	}

	res := m.ProcessJob(ctx, job)
	assert.True(t, res.Success)
	assert.Zero(t, res.StatesFound, "ingested text bypasses the live shed path and must not feed state extraction")

	active, err := graph.ActiveStates(ctx, model.StateTask, 10)
	require.NoError(t, err)
	assert.Empty(t, active)

	chunk, ok, err := chunks.GetChunk(ctx, "chunk_ingest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "backfill", chunk.Meta["source"])
}

func TestProcessJobExtractsAndWiresEntities(t *testing.T) {
	ctx := context.Background()
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(8)
	extractor := statemachine.New(statemachine.DefaultCatalog())

	m := New(chunks, vectors, graph, embedder, extractor, 2, 1, 256, zerolog.Nop())

	job := model.OffloadJob{
		ChunkID:   "chunk_4",
		CreatedAt: time.Now(),
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "Sarah Connor is meeting John Smith in New York City tomorrow."},
		},
	}

	res := m.ProcessJob(ctx, job)
	require.True(t, res.Success)

	hits, err := graph.RelationalSearch(ctx, "sarah connor", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits, "entity extraction must wire MENTIONS edges so relational search finds this chunk")
}
