// Package retrieval implements the Retrieval Coordinator (C10): hybrid
// semantic + relational lookup fired whenever a turn needs memory beyond the
// live context window, grounded on
// original_source/app/semantic_manager.py's query_memory.
package retrieval

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/store"
)

// Coordinator embeds the query, then runs the semantic vector search and the relational graph
// search in parallel and joins the results into a single RAGResult (spec §4.9, I8: "semantic and relational
// retrieval run concurrently, never serially").
type Coordinator struct {
	chunks   store.ChunkStore
	vectors  store.VectorIndex
	graph    store.Graph
	embedder embed.Embedder

	topKSemantic   int
	topKRelational int
	simMinimum     float64
}

// New constructs a Coordinator with the retrieval parameters from config (k_sem, k_rel,
// sigma_min).
func New(chunks store.ChunkStore, vectors store.VectorIndex, graph store.Graph, embedder embed.Embedder,
	topKSemantic, topKRelational int, simMinimum float64) *Coordinator {
	return &Coordinator{
		chunks:         chunks,
		vectors:        vectors,
		graph:          graph,
		embedder:       embedder,
		topKSemantic:   topKSemantic,
		topKRelational: topKRelational,
		simMinimum:     simMinimum,
	}
}

// Query embeds queryText, then runs semantic and relational search concurrently, and returns the
// joined RAGResult. Either half silently contributing nothing (no hits above sigma_min, no
// relational matches) still returns the other half: a missing backend must not suppress results
// available from the other. A failing search contributes nothing; an error is returned only when
// the embedding fails or both searches fail.
func (c *Coordinator) Query(ctx context.Context, queryText string) (model.RAGResult, Stats, error) {
	start := time.Now()
	vector, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return model.RAGResult{}, Stats{}, err
	}

	g, gctx := errgroup.WithContext(ctx)

	var semantic []model.SemanticHit
	var relational []string
	var semErr, relErr error

	g.Go(func() error {
		hits, err := c.vectors.Search(gctx, vector, c.topKSemantic, c.simMinimum)
		if err != nil {
			semErr = err
			return nil
		}
		semantic = make([]model.SemanticHit, 0, len(hits))
		for _, h := range hits {
			chunk, ok, err := c.chunks.GetChunk(gctx, h.ID)
			if err != nil {
				semantic, semErr = nil, err
				return nil
			}
			if !ok {
				continue
			}
			semantic = append(semantic, model.SemanticHit{
				ChunkID:   h.ID,
				Summary:   chunk.Summary,
				Score:     h.Score,
				CreatedAt: h.CreatedAt,
			})
		}
		return nil
	})

	g.Go(func() error {
		facts, err := c.graph.RelationalSearch(gctx, queryText, c.topKRelational)
		if err != nil {
			relErr = err
			return nil
		}
		relational = facts
		return nil
	})

	_ = g.Wait()
	if semErr != nil && relErr != nil {
		return model.RAGResult{}, Stats{}, semErr
	}

	stats := Stats{LastQueryDuration: time.Since(start)}
	return model.RAGResult{Semantic: semantic, Relational: relational}, stats, nil
}

// Stats is the §6 /stats "retrieval" payload shape.
type Stats struct {
	LastQueryDuration time.Duration
}
