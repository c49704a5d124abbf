package coldpath

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/statemachine"
	"github.com/elevend0g/vicw/internal/store"
)

// Result is the outcome of processing one offload job, mirroring
// original_source/app/data_models.py's OffloadResult, extended with per-step error detail since
// this implementation isolates failures per step rather than collapsing them into one try/except.
type Result struct {
	ChunkID     string
	Summary     string
	Success     bool
	StepErrors  map[string]error
	StatesFound int
}

// Manager is the Semantic Manager (C7): turns an offload job into a summary, embedding, graph
// node, and extracted states, grounded on original_source/app/semantic_manager.py's process_job.
//
// Unlike process_job's single enclosing try/except, each storage step here runs independently and
// records its own error: a Redis outage must not prevent the Qdrant upsert or the Neo4j update
// from being attempted, since each backend serves a different retrieval path (spec §4.4/§9).
type Manager struct {
	chunks   store.ChunkStore
	vectors  store.VectorIndex
	graph    store.Graph
	embedder embed.Embedder
	extract  *statemachine.Extractor

	leadSentences int
	tailSentences int
	maxTokens     int

	logger zerolog.Logger
}

// New constructs a Semantic Manager over the three backend stores, an embedder, and a state
// extractor, with the lead/tail/max-token summarization parameters from config (s_lead, s_tail,
// L_sum).
func New(chunks store.ChunkStore, vectors store.VectorIndex, graph store.Graph, embedder embed.Embedder,
	extractor *statemachine.Extractor, leadSentences, tailSentences, maxTokens int, logger zerolog.Logger) *Manager {
	return &Manager{
		chunks:        chunks,
		vectors:       vectors,
		graph:         graph,
		embedder:      embedder,
		extract:       extractor,
		leadSentences: leadSentences,
		tailSentences: tailSentences,
		maxTokens:     maxTokens,
		logger:        logger,
	}
}

// ProcessJob summarizes and embeds the job's text, then persists it across the chunk store,
// vector index, and graph independently, and extracts/upserts any conversational state found in
// the job's text. Returns a Result describing what succeeded; a step failure does not prevent
// subsequent steps from being attempted, except that the vector upsert is skipped when embedding
// fails and entity wiring is skipped when the graph chunk-node upsert fails.
func (m *Manager) ProcessJob(ctx context.Context, job model.OffloadJob) Result {
	start := time.Now()
	fullText := renderJobText(job)

	summary := Summarize(fullText, m.leadSentences, m.tailSentences, m.maxTokens)
	vector, embedErr := m.embedder.Embed(ctx, summary)

	res := Result{ChunkID: job.ChunkID, Summary: summary, StepErrors: make(map[string]error), Success: true}
	if embedErr != nil {
		res.StepErrors["embed"] = embedErr
		res.Success = false
	}

	chunk := model.Chunk{
		ChunkID:    job.ChunkID,
		Messages:   job.Messages,
		FullText:   fullText,
		Summary:    summary,
		TokenCount: tokenCountOf(job.Messages),
		CreatedAt:  job.CreatedAt,
		Meta:       job.IngestMeta,
	}
	if err := m.chunks.PutChunk(ctx, chunk); err != nil {
		res.StepErrors["chunk_store"] = err
		res.Success = false
	}

	if embedErr == nil {
		point := model.VectorPoint{ID: job.ChunkID, Vector: vector, CreatedAt: job.CreatedAt, TokenCt: chunk.TokenCount}
		if err := m.vectors.Upsert(ctx, point); err != nil {
			res.StepErrors["vector_index"] = err
			res.Success = false
		}
	}

	if err := m.graph.UpsertChunkNode(ctx, job.ChunkID, summary, job.CreatedAt); err != nil {
		res.StepErrors["graph_chunk_node"] = err
		res.Success = false
	} else if err := m.upsertEntities(ctx, job.ChunkID, summary); err != nil {
		res.StepErrors["entity_extraction"] = err
		res.Success = false
	}

	// Ingested backfill text (job.SkipShedPath) never went through a live conversational turn, so
	// there is no goal/task/decision to track it against; state extraction only runs for jobs shed
	// off the hot path.
	if m.extract != nil && !job.SkipShedPath {
		states, err := m.extract.ProcessTurn(ctx, m.graph, fullText)
		if err != nil {
			res.StepErrors["state_extraction"] = err
			res.Success = false
		}
		res.StatesFound = len(states)
	}

	m.logger.Info().
		Str("chunk_id", job.ChunkID).
		Dur("duration", time.Since(start)).
		Int("step_errors", len(res.StepErrors)).
		Msg("offload job processed")

	return res
}

// upsertEntities runs opportunistic capitalized-phrase entity extraction over the chunk's summary
// and wires each hit into the graph as an Entity node plus a MENTIONS edge from the chunk, so the
// relational arm of the retrieval coordinator (C10) has data to search over. Grounded on
// original_source/app/neo4j_knowledge_graph.py's _extract_entities, which runs on the summary for
// the same reason: the summary is what gets searched at retrieval time, not the raw transcript.
func (m *Manager) upsertEntities(ctx context.Context, chunkID, summary string) error {
	entities := extractEntities(summary)
	for _, e := range entities {
		if err := m.graph.UpsertEntity(ctx, e); err != nil {
			return err
		}
		if err := m.graph.MentionsEdge(ctx, chunkID, e.Name); err != nil {
			return err
		}
	}
	return nil
}

func renderJobText(job model.OffloadJob) string {
	var b strings.Builder
	for i, msg := range job.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

func tokenCountOf(msgs []model.Message) int {
	n := 0
	for _, m := range msgs {
		n += m.TokenCount
	}
	return n
}
