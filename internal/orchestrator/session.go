// Package orchestrator implements the Orchestrator (C12): per-turn driving
// of C9 -> C10 -> C11 -> C9 plus the echo-guard retry loop, and the session
// registry, grounded on pkg/runtime/session_manager.go's sessionManager and
// pkg/runtime/runtime.go's functional-options Runtime.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/elevend0g/vicw/internal/coldpath"
	"github.com/elevend0g/vicw/internal/config"
	"github.com/elevend0g/vicw/internal/contextwindow"
	"github.com/elevend0g/vicw/internal/echoguard"
	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/queue"
	"github.com/elevend0g/vicw/internal/retrieval"
	"github.com/elevend0g/vicw/internal/statemachine"
	"github.com/elevend0g/vicw/internal/store"
)

// LLMClient is the subset of *llm.Client the orchestrator depends on, kept as an interface so
// tests can substitute a fake completion backend.
type LLMClient interface {
	Complete(ctx context.Context, messages []model.Message) (string, error)
}

// Deps bundles the shared, process-wide components every Session wires against: the three
// backend stores, embedder, LLM client, and the single cold-path worker (spec §5: "a single
// cold-path worker runs concurrently in the background" shared across sessions).
type Deps struct {
	Chunks    store.ChunkStore
	Vectors   store.VectorIndex
	Graph     store.Graph
	Embedder  embed.Embedder
	LLM       LLMClient
	Queue     *queue.Queue
	Worker    *coldpath.Worker
	Extractor *statemachine.Extractor
	Config    *config.Config
	Logger    zerolog.Logger
}

// TurnResult is the §6 POST /chat response shape.
type TurnResult struct {
	Response          string
	TokensInContext   int
	RAGItemsInjected  int
	EchoGuardExhausted bool
}

// Session is one conversation's explicit handle: its own Context Manager, echo guard ring, and
// reference to the shared Deps. No global mutable session state exists outside this struct (spec
// §9's "Global mutable session state" re-architecture guidance).
type Session struct {
	id   string
	deps *Deps

	ctxWindow *contextwindow.Manager
	echo      *echoguard.Guard

	lastRetrievalNanos atomic.Int64
}

func newSession(id string, deps *Deps, header model.PinnedHeader) *Session {
	cfg := deps.Config
	th := contextwindow.Thresholds{Trigger: cfg.ThetaTrigger, Target: cfg.ThetaTarget, Resume: cfg.ThetaResume}
	return &Session{
		id:        id,
		deps:      deps,
		ctxWindow: contextwindow.New(cfg.MaxContextTokens, th, header),
		echo:      echoguard.New(cfg.EchoRingSize, cfg.EchoSimThreshold, cfg.MaxRegenerationTries),
	}
}

// Turn drives one user message through the full pipeline: add to context (possibly shedding),
// retrieve state/RAG injections, call the LLM, run the echo-guard loop, and commit the accepted
// response (spec §4.8).
func (s *Session) Turn(ctx context.Context, userText string, useRAG bool) (TurnResult, error) {
	cfg := s.deps.Config

	ev, job := s.ctxWindow.AddMessage(model.RoleUser, userText)
	if ev != nil && job != nil {
		if !s.deps.Queue.Enqueue(*job) {
			s.deps.Logger.Warn().Str("chunk_id", job.ChunkID).Msg("offload queue full, job dropped")
		}
	}

	var ragMsg *model.Message
	ragItems := 0
	if useRAG {
		res, retStats, err := retrieval.New(s.deps.Chunks, s.deps.Vectors, s.deps.Graph, s.deps.Embedder,
			cfg.TopKSemantic, cfg.TopKRelational, cfg.SimMinimum).Query(ctx, userText)
		if err != nil {
			s.deps.Logger.Warn().Err(err).Msg("retrieval failed, proceeding without RAG injection")
		} else {
			s.lastRetrievalNanos.Store(int64(retStats.LastQueryDuration))
			if msg, ok := res.ToMessage(); ok {
				ragMsg = &msg
				ragItems = res.TotalItems()
			}
		}
	}

	var stateMsg *model.Message
	if cfg.StateTrackingOn {
		caps := statemachine.InjectionCaps{
			Goal: cfg.StateCapGoal, Task: cfg.StateCapTask,
			Decision: cfg.StateCapDecision, Fact: cfg.StateCapFact, KDone: cfg.KDone,
		}
		msg, ok, err := statemachine.BuildInjection(ctx, s.deps.Graph, caps, cfg.BoredomThreshold, cfg.BoredomOn)
		if err != nil {
			s.deps.Logger.Warn().Err(err).Msg("state injection failed, proceeding without it")
		} else if ok {
			stateMsg = &msg
		}
	}

	if s.deps.Worker != nil {
		s.deps.Worker.Pause()
		defer s.deps.Worker.Resume()
	}

	respText, exhausted, err := s.generateWithEchoGuard(ctx, stateMsg, ragMsg)
	if err != nil {
		return TurnResult{}, err
	}

	ev, job = s.ctxWindow.AddMessage(model.RoleAssistant, respText)
	if ev != nil && job != nil {
		if !s.deps.Queue.Enqueue(*job) {
			s.deps.Logger.Warn().Str("chunk_id", job.ChunkID).Msg("offload queue full, job dropped")
		}
	}
	if vec, err := s.deps.Embedder.Embed(ctx, respText); err == nil {
		s.echo.Record(ctx, respText, vec)
	}

	return TurnResult{
		Response:           respText,
		TokensInContext:    s.ctxWindow.TokenCount(),
		RAGItemsInjected:   ragItems,
		EchoGuardExhausted: exhausted,
	}, nil
}

// generateWithEchoGuard runs the LLM call, checks the result against the echo ring, and
// regenerates with an escalating warning up to R_max times (spec §4.6).
func (s *Session) generateWithEchoGuard(ctx context.Context, stateMsg, ragMsg *model.Message) (string, bool, error) {
	cfg := s.deps.Config
	attempt := 1
	lastTier := echoguard.TierNone
	emergency := false

	for {
		var prompt []model.Message
		if emergency {
			prompt = s.ctxWindow.GetEmergencyPrompt()
		} else {
			prompt = s.ctxWindow.GetPrompt(stateMsg, ragMsg)
		}
		if attempt > 1 {
			prompt = append(prompt, model.Message{Role: model.RoleSystem, Content: echoguard.WarningFor(lastTier)})
		}

		text, err := s.deps.LLM.Complete(ctx, prompt)
		if err != nil {
			return "", false, err
		}

		if !cfg.EchoGuardEnabled {
			return text, false, nil
		}

		vec, embedErr := s.deps.Embedder.Embed(ctx, text)
		if embedErr != nil {
			return text, false, nil
		}

		verdict := s.echo.Check(vec, attempt)
		if !verdict.IsEcho {
			return text, false, nil
		}
		if verdict.Tier == echoguard.TierAccept {
			s.deps.Logger.Warn().Int("max_tries", s.echo.MaxTries()).Msg("echo guard exhausted, accepting response")
			return text, true, nil
		}

		if verdict.Tier == echoguard.TierEmergencyOverride && cfg.StripRAGOnFinalTry {
			ragMsg = nil
			stateMsg = nil
			emergency = true
		}
		lastTier = verdict.Tier
		attempt++
	}
}

// Reset clears the session's live context window (spec §6 POST /reset).
func (s *Session) Reset() { s.ctxWindow.Reset() }

// Stats bundles every component's §6 /stats payload contribution for this session.
type Stats struct {
	Context   contextwindow.Stats
	Queue     queue.Stats
	Worker    coldpath.Stats
	Retrieval retrieval.Stats
}

// GetStats reports this session's context-window stats alongside the process-wide queue and
// worker stats.
func (s *Session) GetStats() Stats {
	st := Stats{Context: s.ctxWindow.GetStats()}
	st.Retrieval = retrieval.Stats{LastQueryDuration: time.Duration(s.lastRetrievalNanos.Load())}
	st.Queue = queue.Stats{
		CurrentSize:   s.deps.Queue.Len(),
		MaxSize:       s.deps.Queue.Capacity(),
		EnqueuedTotal: s.deps.Queue.EnqueuedTotal(),
		DroppedTotal:  s.deps.Queue.DroppedTotal(),
	}
	if s.deps.Worker != nil {
		st.Worker = s.deps.Worker.GetStats()
		// The queue itself only knows what was enqueued and dropped, not what happened to a
		// drained job afterward; the worker's processed+failed counters are the authoritative
		// count of jobs the queue has handed off and seen through to completion.
		st.Queue.ProcessedTotal = st.Worker.ProcessedTotal + st.Worker.FailedTotal
	}
	return st
}

// Manager is the session registry, grounded on pkg/runtime/session_manager.go's sessionManager.
type Manager struct {
	deps *Deps

	counter atomic.Uint64
	mu      sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a session registry sharing the given Deps across every session it creates.
func NewManager(deps *Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it with an empty pinned header if absent.
func (m *Manager) GetOrCreate(id string) *Session {
	return m.GetOrCreateWithHeader(id, model.PinnedHeader{})
}

// GetOrCreateWithHeader returns the session for id, creating it with the given pinned header if
// absent. The header is ignored if the session already exists (it is immutable after creation).
func (m *Manager) GetOrCreateWithHeader(id string, header model.PinnedHeader) *Session {
	if id == "" {
		id = fmt.Sprintf("session-%d", m.counter.Add(1))
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s = newSession(id, m.deps, header)
	m.sessions[id] = s
	return s
}

// EnqueueIngest feeds an externally-supplied job directly into the shared offload queue, bypassing
// the context window's shed path (spec's SPEC_FULL-supplemented /ingest endpoint).
func (m *Manager) EnqueueIngest(job model.OffloadJob) bool {
	return m.deps.Queue.Enqueue(job)
}

// Remove deletes a session from the registry.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// ActiveIDs returns every currently registered session ID.
func (m *Manager) ActiveIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
