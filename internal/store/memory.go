package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/elevend0g/vicw/internal/model"
)

// InMemoryChunkStore is a ChunkStore backed by a map, used as the default
// fake for tests and as the teacher's "default memory factory" equivalent
// (pkg/runtime/runtime.go defaultMemoryFactory falls back to an in-memory
// store when no DSN is configured).
type InMemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]model.Chunk
}

func NewInMemoryChunkStore() *InMemoryChunkStore {
	return &InMemoryChunkStore{chunks: make(map[string]model.Chunk)}
}

func (s *InMemoryChunkStore) PutChunk(_ context.Context, c model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[c.ChunkID] = c
	return nil
}

func (s *InMemoryChunkStore) GetChunk(_ context.Context, chunkID string) (model.Chunk, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	return c, ok, nil
}

func (s *InMemoryChunkStore) DeleteChunk(_ context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, chunkID)
	return nil
}

// InMemoryVectorIndex is a VectorIndex fake doing brute-force cosine search.
type InMemoryVectorIndex struct {
	mu     sync.RWMutex
	points map[string]model.VectorPoint
}

func NewInMemoryVectorIndex() *InMemoryVectorIndex {
	return &InMemoryVectorIndex{points: make(map[string]model.VectorPoint)}
}

func (v *InMemoryVectorIndex) Upsert(_ context.Context, p model.VectorPoint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.points[p.ID] = p
	return nil
}

func (v *InMemoryVectorIndex) Delete(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.points, id)
	return nil
}

func (v *InMemoryVectorIndex) Search(_ context.Context, query model.Embedding, topK int, minScore float64) ([]ScoredPoint, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	hits := make([]ScoredPoint, 0, len(v.points))
	for _, p := range v.points {
		sc := cosineSimilarity(query, p.Vector)
		if sc < minScore {
			continue
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: sc, CreatedAt: p.CreatedAt, TokenCt: p.TokenCt})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func cosineSimilarity(a, b model.Embedding) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// InMemoryGraph is a Graph fake supporting chunk nodes, entity upserts, and
// the state machine's fuzzy upsert rule (spec §4.5 I3/I4).
type InMemoryGraph struct {
	mu       sync.RWMutex
	chunks   map[string]chunkNode
	entities map[string]model.Entity
	states   map[string]model.State
	mentions map[string][]string // chunkID -> entity names
}

type chunkNode struct {
	summary   string
	createdAt time.Time
}

func NewInMemoryGraph() *InMemoryGraph {
	return &InMemoryGraph{
		chunks:   make(map[string]chunkNode),
		entities: make(map[string]model.Entity),
		states:   make(map[string]model.State),
		mentions: make(map[string][]string),
	}
}

func (g *InMemoryGraph) UpsertChunkNode(_ context.Context, chunkID, summary string, createdAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunks[chunkID] = chunkNode{summary: summary, createdAt: createdAt}
	return nil
}

func (g *InMemoryGraph) RelationalSearch(_ context.Context, query string, limit int) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []string
	for chunkID, edges := range g.mentions {
		cn, ok := g.chunks[chunkID]
		if !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(cn.summary), q) {
			continue
		}
		for _, name := range edges {
			out = append(out, "(Chunk:"+chunkID+")-[:MENTIONS]->("+name+")")
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (g *InMemoryGraph) UpsertEntity(_ context.Context, e model.Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[e.Name] = e
	return nil
}

func (g *InMemoryGraph) MentionsEdge(_ context.Context, chunkID, entityName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.mentions[chunkID] {
		if n == entityName {
			return nil
		}
	}
	g.mentions[chunkID] = append(g.mentions[chunkID], entityName)
	return nil
}

// normalizeDescription lowercases, trims, and strips one leading "to",
// "that", or article, per spec §4.5's normalization rule.
func normalizeDescription(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, article := range []string{"to ", "that ", "the ", "a ", "an "} {
		if strings.HasPrefix(s, article) {
			s = strings.TrimPrefix(s, article)
			break
		}
	}
	return strings.TrimSpace(s)
}

// fuzzyMatch implements the I3 fuzzy-match rule: Levenshtein distance ≤ 2 or
// one string contains the other, grounded on the Levenshtein-distance
// requirement in spec §4.5 and the substring-containment behavior observed
// in original_source/app/neo4j_knowledge_graph.py's find_similar_state.
func fuzzyMatch(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return levenshtein.ComputeDistance(a, b) <= 2
}

// CreateOrTransitionState implements spec §4.5's upsert rule and invariant
// I4 (visit_count resets to 0 on any transition out of active).
func (g *InMemoryGraph) CreateOrTransitionState(_ context.Context, cand StateCandidate) (model.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	norm := normalizeDescription(cand.Description)
	now := time.Now()

	for id, st := range g.states {
		if st.Type != cand.Type {
			continue
		}
		if !fuzzyMatch(normalizeDescription(st.Description), norm) {
			continue
		}
		if st.Status == model.StatusActive && cand.Status != model.StatusActive {
			st.Status = cand.Status
			st.VisitCount = 0
			st.UpdatedAt = now
			g.states[id] = st
			return st, nil
		}
		if st.Status == cand.Status {
			st.UpdatedAt = now
			g.states[id] = st
			return st, nil
		}
		// Existing inactive state re-affirmed as active: treat as a fresh
		// activation cycle.
		if st.Status != model.StatusActive && cand.Status == model.StatusActive {
			st.Status = model.StatusActive
			st.VisitCount = 0
			st.UpdatedAt = now
			g.states[id] = st
			return st, nil
		}
		st.UpdatedAt = now
		g.states[id] = st
		return st, nil
	}

	st := model.State{
		StateID:     uuid.NewString(),
		Type:        cand.Type,
		Description: norm,
		Status:      cand.Status,
		VisitCount:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.states[st.StateID] = st
	return st, nil
}

func (g *InMemoryGraph) ActiveStates(_ context.Context, t model.StateType, limit int) ([]model.State, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []model.State
	for _, st := range g.states {
		if st.Status == model.StatusActive && st.Type == t {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *InMemoryGraph) CompletedStates(_ context.Context, limit int) ([]model.State, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []model.State
	for _, st := range g.states {
		if st.Status == model.StatusCompleted {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TouchStates increments visit_count and sets last_visited for each given
// state, implementing the injection-time side effect of spec §4.5.
func (g *InMemoryGraph) TouchStates(_ context.Context, stateIDs []string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range stateIDs {
		st, ok := g.states[id]
		if !ok {
			continue
		}
		st.VisitCount++
		st.LastVisited = now
		g.states[id] = st
	}
	return nil
}
