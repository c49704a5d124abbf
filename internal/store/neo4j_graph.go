package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/elevend0g/vicw/internal/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session configuration required here.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver, neo4jSession, neo4jTransaction, neo4jResult, and neo4jRecord abstract the real
// Neo4j driver so the store is testable without the driver and so the real dependency can be
// wired behind a build tag, following the teacher's src/memory/store/neo4j_store.go pattern.
type neo4jDriver interface {
	NewSession(ctx context.Context, cfg Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	BeginTransaction(ctx context.Context) (neo4jTransaction, error)
	Close(ctx context.Context) error
}

type neo4jTransaction interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// ErrNeo4jUnavailable is returned when graph operations are attempted without a configured driver.
var ErrNeo4jUnavailable = errors.New("store: neo4j driver not configured")

// Neo4jGraph implements Graph (C3) against a Neo4j database, with constraints mirrored from
// original_source/app/neo4j_knowledge_graph.py's initialize_constraints.
type Neo4jGraph struct {
	driver   neo4jDriver
	database string
	nowFn    func() time.Time
}

var _ Graph = (*Neo4jGraph)(nil)

// NewNeo4jGraph constructs a graph store over the given driver abstraction.
func NewNeo4jGraph(driver neo4jDriver, database string) (*Neo4jGraph, error) {
	if driver == nil {
		return nil, errors.New("store: neo4j driver is nil")
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jGraph{driver: driver, database: database, nowFn: time.Now}, nil
}

// EnsureConstraints creates the uniqueness constraints and indexes the graph relies on.
func (g *Neo4jGraph) EnsureConstraints(ctx context.Context) error {
	queries := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (c:Chunk) REQUIRE c.chunk_id IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (e:Entity) REQUIRE e.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (s:State) REQUIRE s.state_id IS UNIQUE",
		"CREATE INDEX IF NOT EXISTS FOR (s:State) ON (s.state_type, s.status)",
	}
	return g.withWriteTx(ctx, func(tx neo4jTransaction) error {
		for _, q := range queries {
			if _, err := tx.Run(ctx, q, nil); err != nil {
				return fmt.Errorf("neo4j constraint: %w", err)
			}
		}
		return nil
	})
}

func (g *Neo4jGraph) withWriteTx(ctx context.Context, fn func(neo4jTransaction) error) error {
	if g.driver == nil {
		return ErrNeo4jUnavailable
	}
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: g.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("neo4j begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("neo4j commit: %w", err)
	}
	return nil
}

// UpsertChunkNode implements spec §4.3 step 5: MERGE Chunk {chunk_id} SET summary, created_at.
func (g *Neo4jGraph) UpsertChunkNode(ctx context.Context, chunkID, summary string, createdAt time.Time) error {
	return g.withWriteTx(ctx, func(tx neo4jTransaction) error {
		_, err := tx.Run(ctx, `
MERGE (c:Chunk {chunk_id: $chunk_id})
SET c.summary = $summary, c.created_at = $created_at
`, map[string]any{
			"chunk_id":   chunkID,
			"summary":    summary,
			"created_at": createdAt.UTC().Format(time.RFC3339Nano),
		})
		return err
	})
}

// UpsertEntity creates or refreshes an opportunistic Entity node.
func (g *Neo4jGraph) UpsertEntity(ctx context.Context, e model.Entity) error {
	return g.withWriteTx(ctx, func(tx neo4jTransaction) error {
		_, err := tx.Run(ctx, `
MERGE (e:Entity {name: $name})
SET e.type = $type
`, map[string]any{"name": e.Name, "type": e.Type})
		return err
	})
}

// MentionsEdge creates (:Chunk)-[:MENTIONS]->(:Entity).
func (g *Neo4jGraph) MentionsEdge(ctx context.Context, chunkID, entityName string) error {
	return g.withWriteTx(ctx, func(tx neo4jTransaction) error {
		_, err := tx.Run(ctx, `
MATCH (c:Chunk {chunk_id: $chunk_id})
MATCH (e:Entity {name: $name})
MERGE (c)-[:MENTIONS]->(e)
`, map[string]any{"chunk_id": chunkID, "name": entityName})
		return err
	})
}

// RelationalSearch implements spec §4.4 step 3: a case-insensitive substring match over Chunk
// summaries (entity names are not searched), returning each matching chunk's MENTIONS edges
// formatted as (A)-[:TYPE]->(B) triples, grounded on
// original_source/app/neo4j_knowledge_graph.py's relational_query.
func (g *Neo4jGraph) RelationalSearch(ctx context.Context, query string, limit int) ([]string, error) {
	if g.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: g.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j begin tx: %w", err)
	}
	defer tx.Close(ctx)

	res, err := tx.Run(ctx, `
MATCH (a:Chunk)-[r:MENTIONS]->(b:Entity)
WHERE toLower(a.summary) CONTAINS toLower($term)
RETURN a.chunk_id AS from_name, type(r) AS rel_type, b.name AS to_name
LIMIT $limit
`, map[string]any{"term": query, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j relational search: %w", err)
	}
	var out []string
	for res.Next(ctx) {
		rec := res.Record()
		from, _ := rec.Get("from_name")
		relType, _ := rec.Get("rel_type")
		to, _ := rec.Get("to_name")
		triple := fmt.Sprintf("(%v)-[:%v]->(%v)", from, relType, to)
		if len(triple) > 50 {
			triple = triple[:50]
		}
		out = append(out, triple)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateOrTransitionState implements spec §4.5's upsert rule via MERGE + fuzzy substring match.
func (g *Neo4jGraph) CreateOrTransitionState(ctx context.Context, cand StateCandidate) (model.State, error) {
	norm := normalizeDescription(cand.Description)
	existing, err := g.findSimilarState(ctx, cand.Type, norm)
	if err != nil {
		return model.State{}, err
	}
	now := g.now()
	if existing != nil {
		st := *existing
		if st.Status == model.StatusActive && cand.Status != model.StatusActive {
			st.Status = cand.Status
			st.VisitCount = 0
			st.UpdatedAt = now
		} else if st.Status != model.StatusActive && cand.Status == model.StatusActive {
			st.Status = model.StatusActive
			st.VisitCount = 0
			st.UpdatedAt = now
		} else {
			st.UpdatedAt = now
		}
		if err := g.writeState(ctx, st); err != nil {
			return model.State{}, err
		}
		return st, nil
	}

	st := model.State{
		StateID:     newStateID(),
		Type:        cand.Type,
		Description: norm,
		Status:      cand.Status,
		VisitCount:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.writeState(ctx, st); err != nil {
		return model.State{}, err
	}
	return st, nil
}

func (g *Neo4jGraph) writeState(ctx context.Context, st model.State) error {
	return g.withWriteTx(ctx, func(tx neo4jTransaction) error {
		_, err := tx.Run(ctx, `
MERGE (s:State {state_id: $state_id})
SET s.state_type = $state_type,
    s.description = $description,
    s.status = $status,
    s.visit_count = $visit_count,
    s.last_visited = $last_visited,
    s.created_at = $created_at,
    s.updated_at = $updated_at
`, map[string]any{
			"state_id":     st.StateID,
			"state_type":   string(st.Type),
			"description":  st.Description,
			"status":       string(st.Status),
			"visit_count":  st.VisitCount,
			"last_visited": formatTimeOrZero(st.LastVisited),
			"created_at":   formatTimeOrZero(st.CreatedAt),
			"updated_at":   formatTimeOrZero(st.UpdatedAt),
		})
		return err
	})
}

func (g *Neo4jGraph) findSimilarState(ctx context.Context, t model.StateType, normDesc string) (*model.State, error) {
	if g.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: g.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j begin tx: %w", err)
	}
	defer tx.Close(ctx)

	res, err := tx.Run(ctx, `
MATCH (s:State {state_type: $state_type})
RETURN s.state_id AS state_id, s.description AS description, s.status AS status,
       s.visit_count AS visit_count, s.last_visited AS last_visited,
       s.created_at AS created_at, s.updated_at AS updated_at
`, map[string]any{"state_type": string(t)})
	if err != nil {
		return nil, fmt.Errorf("neo4j find similar state: %w", err)
	}
	for res.Next(ctx) {
		rec := res.Record()
		desc, _ := rec.Get("description")
		descStr, _ := desc.(string)
		if !fuzzyMatch(normalizeDescription(descStr), normDesc) {
			continue
		}
		return recordToState(t, rec), nil
	}
	return nil, res.Err()
}

// ActiveStates returns currently active states of the given type, most recently updated first.
func (g *Neo4jGraph) ActiveStates(ctx context.Context, t model.StateType, limit int) ([]model.State, error) {
	return g.queryStatesByStatus(ctx, t, model.StatusActive, "updated_at", limit)
}

// CompletedStates returns recently completed states of any type, most recently updated first.
func (g *Neo4jGraph) CompletedStates(ctx context.Context, limit int) ([]model.State, error) {
	return g.queryStatesByStatus(ctx, "", model.StatusCompleted, "updated_at", limit)
}

func (g *Neo4jGraph) queryStatesByStatus(ctx context.Context, t model.StateType, status model.StateStatus, orderBy string, limit int) ([]model.State, error) {
	if g.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: g.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j begin tx: %w", err)
	}
	defer tx.Close(ctx)

	query := "MATCH (s:State {status: $status}"
	params := map[string]any{"status": string(status), "limit": limit}
	if t != "" {
		query = "MATCH (s:State {status: $status, state_type: $state_type}"
		params["state_type"] = string(t)
	}
	query += `)
RETURN s.state_id AS state_id, s.state_type AS state_type, s.description AS description,
       s.status AS status, s.visit_count AS visit_count, s.last_visited AS last_visited,
       s.created_at AS created_at, s.updated_at AS updated_at
ORDER BY s.` + orderBy + ` DESC
LIMIT $limit`

	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j query states: %w", err)
	}
	var out []model.State
	for res.Next(ctx) {
		rec := res.Record()
		typ, _ := rec.Get("state_type")
		typStr, _ := typ.(string)
		out = append(out, *recordToState(model.StateType(typStr), rec))
	}
	if len(out) > limit && limit > 0 {
		out = out[:limit]
	}
	return out, res.Err()
}

// TouchStates increments visit_count and sets last_visited for the given states.
func (g *Neo4jGraph) TouchStates(ctx context.Context, stateIDs []string, now time.Time) error {
	if len(stateIDs) == 0 {
		return nil
	}
	return g.withWriteTx(ctx, func(tx neo4jTransaction) error {
		_, err := tx.Run(ctx, `
UNWIND $state_ids AS sid
MATCH (s:State {state_id: sid})
SET s.visit_count = s.visit_count + 1, s.last_visited = $now
`, map[string]any{"state_ids": stateIDs, "now": now.UTC().Format(time.RFC3339Nano)})
		return err
	})
}

func (g *Neo4jGraph) now() time.Time {
	if g.nowFn == nil {
		return time.Now().UTC()
	}
	return g.nowFn().UTC()
}

func recordToState(t model.StateType, rec neo4jRecord) *model.State {
	st := &model.State{Type: t}
	if v, ok := rec.Get("state_id"); ok {
		st.StateID, _ = v.(string)
	}
	if v, ok := rec.Get("description"); ok {
		st.Description, _ = v.(string)
	}
	if v, ok := rec.Get("status"); ok {
		s, _ := v.(string)
		st.Status = model.StateStatus(s)
	}
	if v, ok := rec.Get("visit_count"); ok {
		st.VisitCount = toInt(v)
	}
	if v, ok := rec.Get("last_visited"); ok {
		st.LastVisited = parseTimeOrZero(v)
	}
	if v, ok := rec.Get("created_at"); ok {
		st.CreatedAt = parseTimeOrZero(v)
	}
	if v, ok := rec.Get("updated_at"); ok {
		st.UpdatedAt = parseTimeOrZero(v)
	}
	return st
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}

func parseTimeOrZero(v any) time.Time {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func formatTimeOrZero(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func newStateID() string {
	return "state_" + uuid.NewString()
}
