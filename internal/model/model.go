// Package model defines the data types shared across the context manager,
// cold path, retrieval coordinator, and stores.
package model

import (
	"time"

	"github.com/elevend0g/vicw/internal/tokenizer"
)

// Role identifies the origin of a Message within a context window.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleState     Role = "state"
	RoleRAG       Role = "rag"
)

// Message is an ordered record in a context window. Roles state and rag are
// synthetic: inserted by the hot path, ephemeral, and never persisted as
// part of a Chunk.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokenCount int       `json:"token_count"`
}

// Persistable reports whether the message belongs inside an offloaded Chunk.
func (m Message) Persistable() bool {
	return m.Role == RoleUser || m.Role == RoleAssistant
}

// Chunk is an immutable offloaded unit of conversation.
type Chunk struct {
	ChunkID     string            `json:"chunk_id"`
	Messages    []Message         `json:"messages"`
	FullText    string            `json:"full_text"`
	Summary     string            `json:"summary"`
	EmbeddingID string            `json:"embedding_id"`
	TokenCount  int               `json:"token_count"`
	CreatedAt   time.Time         `json:"created_at"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Embedding is a fixed-dimension dense vector.
type Embedding []float32

// VectorPoint is what gets written to the vector index.
type VectorPoint struct {
	ID        string    `json:"id"`
	Vector    Embedding `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
	TokenCt   int       `json:"token_count"`
}

// StateType is the category of a tracked conversational state.
type StateType string

const (
	StateGoal     StateType = "goal"
	StateTask     StateType = "task"
	StateDecision StateType = "decision"
	StateFact     StateType = "fact"
)

// StateStatus is the lifecycle stage of a State node.
type StateStatus string

const (
	StatusActive    StateStatus = "active"
	StatusCompleted StateStatus = "completed"
	StatusInvalid   StateStatus = "invalid"
)

// State is a first-class record of a goal/task/decision/fact, used by the
// state machine to detect and interrupt conversational loops.
type State struct {
	StateID     string      `json:"state_id"`
	Type        StateType   `json:"type"`
	Description string      `json:"description"`
	Status      StateStatus `json:"status"`
	VisitCount  int         `json:"visit_count"`
	LastVisited time.Time   `json:"last_visited"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Entity is an opportunistically-created graph node mentioned by a chunk.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EchoEntry is one slot in the echo-history ring.
type EchoEntry struct {
	Embedding Embedding `json:"embedding"`
	TextHash  string    `json:"text_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// OffloadJob is the payload carried through the offload queue to the cold path.
type OffloadJob struct {
	ChunkID       string    `json:"chunk_id"`
	Messages      []Message `json:"messages"`
	PinnedHeader  string    `json:"pinned_header_snapshot"`
	CreatedAt     time.Time `json:"created_at"`
	SkipShedPath  bool      `json:"skip_shed_path"`
	IngestMeta    map[string]string
}

// PinnedHeader is the immutable prefix of every prompt in a session.
type PinnedHeader struct {
	Goals           []string `json:"goals"`
	Constraints     []string `json:"constraints"`
	Definitions     []string `json:"definitions"`
	Plan            []string `json:"plan"`
	ActiveEntities  []string `json:"active_entities"`
	ActiveArtifacts []string `json:"active_artifacts"`
	Raw             string   `json:"raw"`
}

// Empty reports whether the header carries no structured or raw content.
func (p PinnedHeader) Empty() bool {
	return p.Raw == "" && len(p.Goals) == 0 && len(p.Constraints) == 0 &&
		len(p.Definitions) == 0 && len(p.Plan) == 0 && len(p.ActiveEntities) == 0 &&
		len(p.ActiveArtifacts) == 0
}

// ToMessage renders the pinned header as the single verbatim system message
// placed at the top of every prompt.
func (p PinnedHeader) ToMessage() (Message, bool) {
	if p.Empty() {
		return Message{}, false
	}
	content := p.Raw
	if content == "" {
		content = renderPinnedHeader(p)
	}
	return Message{Role: RoleSystem, Content: content}, true
}

func renderPinnedHeader(p PinnedHeader) string {
	b := "[PINNED STATE]\n"
	appendSection := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		b += label + ": "
		for i, it := range items {
			if i > 0 {
				b += "; "
			}
			b += it
		}
		b += "\n"
	}
	appendSection("Goals", p.Goals)
	appendSection("Constraints", p.Constraints)
	appendSection("Definitions", p.Definitions)
	appendSection("Plan", p.Plan)
	appendSection("Active entities", p.ActiveEntities)
	appendSection("Active artifacts", p.ActiveArtifacts)
	b += "[END PINNED STATE]"
	return b
}

// SemanticHit is a single semantic-search result resolved against the chunk store.
type SemanticHit struct {
	ChunkID   string
	Summary   string
	Score     float64
	CreatedAt time.Time
}

// RAGResult is the combined output of the retrieval coordinator.
type RAGResult struct {
	Semantic   []SemanticHit
	Relational []string
}

// TotalItems is the number of semantic plus relational hits.
func (r RAGResult) TotalItems() int {
	return len(r.Semantic) + len(r.Relational)
}

// IsEmpty reports whether the result carries nothing to inject.
func (r RAGResult) IsEmpty() bool {
	return r.TotalItems() == 0
}

// ToMessage renders the RAG result as the single synthetic injection message.
func (r RAGResult) ToMessage() (Message, bool) {
	if r.IsEmpty() {
		return Message{}, false
	}
	content := "[CONTEXT FROM MEMORY]\n"
	for _, s := range r.Semantic {
		content += "- " + s.Summary + "\n"
	}
	for _, t := range r.Relational {
		content += "- " + t + "\n"
	}
	return Message{Role: RoleRAG, Content: content, TokenCount: tokenizer.Estimate(content)}, true
}

// OffloadEvent reports the result of a shed triggered by add_message.
type OffloadEvent struct {
	ChunkID      string
	TokensBefore int
	TokensAfter  int
	Duration     time.Duration
}
