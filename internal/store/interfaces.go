// Package store defines the three backend interfaces (ChunkStore, VectorIndex,
// Graph) that the core talks to, following the teacher's abstraction in
// src/memory/store/vector_store.go: small interfaces (ChunkStore and
// VectorIndex have three methods each, Graph has eight), so the core stays
// testable with in-memory fakes (spec §9, §8).
package store

import (
	"context"
	"time"

	"github.com/elevend0g/vicw/internal/model"
)

// ChunkStore is the durable key→record store for offloaded chunks (C1).
type ChunkStore interface {
	PutChunk(ctx context.Context, c model.Chunk) error
	GetChunk(ctx context.Context, chunkID string) (model.Chunk, bool, error)
	DeleteChunk(ctx context.Context, chunkID string) error
}

// VectorIndex is the approximate-nearest-neighbor store over chunk-summary
// embeddings (C2).
type VectorIndex interface {
	Upsert(ctx context.Context, p model.VectorPoint) error
	Search(ctx context.Context, query model.Embedding, topK int, minScore float64) ([]ScoredPoint, error)
	Delete(ctx context.Context, id string) error
}

// ScoredPoint is a single vector-search hit.
type ScoredPoint struct {
	ID        string
	Score     float64
	CreatedAt time.Time
	TokenCt   int
}

// Graph is the labeled property graph of Chunk, Entity, and State nodes (C3).
type Graph interface {
	UpsertChunkNode(ctx context.Context, chunkID, summary string, createdAt time.Time) error
	RelationalSearch(ctx context.Context, query string, limit int) ([]string, error)

	CreateOrTransitionState(ctx context.Context, candidate StateCandidate) (model.State, error)
	ActiveStates(ctx context.Context, t model.StateType, limit int) ([]model.State, error)
	CompletedStates(ctx context.Context, limit int) ([]model.State, error)
	TouchStates(ctx context.Context, stateIDs []string, now time.Time) error

	UpsertEntity(ctx context.Context, e model.Entity) error
	MentionsEdge(ctx context.Context, chunkID, entityName string) error
}

// StateCandidate is a pattern-extracted candidate state to upsert (C5 output).
type StateCandidate struct {
	Type        model.StateType
	Status      model.StateStatus
	Description string
}
