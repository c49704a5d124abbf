package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevend0g/vicw/internal/coldpath"
	"github.com/elevend0g/vicw/internal/config"
	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/queue"
	"github.com/elevend0g/vicw/internal/statemachine"
	"github.com/elevend0g/vicw/internal/store"
)

type scriptedLLM struct {
	responses []string
	calls     int
}

func (f *scriptedLLM) Complete(_ context.Context, _ []model.Message) (string, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return f.responses[i], nil
}

func newTestDeps(llmClient LLMClient) *Deps {
	cfg, _ := config.New(
		config.WithMaxContextTokens(4096),
		config.WithEchoGuard(10, 0.95, 3, true, true),
	)
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(cfg.EmbeddingDim)
	q := queue.New(cfg.QueueMaxSize)
	extractor := statemachine.New(statemachine.DefaultCatalog())
	manager := coldpath.New(chunks, vectors, graph, embedder, extractor, cfg.SummaryLeadSentences, cfg.SummaryTailSentences, cfg.SummaryMaxTokens, zerolog.Nop())
	worker := coldpath.NewWorker(q, manager, cfg.ColdPathBatchSize, cfg.ColdPathWorkers, cfg.ColdPathIdleInterval, zerolog.Nop())

	return &Deps{
		Chunks: chunks, Vectors: vectors, Graph: graph, Embedder: embedder,
		LLM: llmClient, Queue: q, Worker: worker, Extractor: extractor, Config: cfg, Logger: zerolog.Nop(),
	}
}

func TestTurnAcceptsFirstNonEchoResponse(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{"Here is a fresh answer."}}
	deps := newTestDeps(llmClient)
	mgr := NewManager(deps)
	session := mgr.GetOrCreate("s1")

	res, err := session.Turn(context.Background(), "What should we do next?", false)
	require.NoError(t, err)
	assert.Equal(t, "Here is a fresh answer.", res.Response)
	assert.False(t, res.EchoGuardExhausted)
	assert.Equal(t, 1, llmClient.calls)
}

func TestTurnRegeneratesOnEcho(t *testing.T) {
	// Every response after the first is identical; DummyEmbedding is deterministic so the second
	// call's embedding will match the ring entry from the first call and must trigger a retry.
	llmClient := &scriptedLLM{responses: []string{"Same answer every time.", "Same answer every time.", "A genuinely different answer."}}
	deps := newTestDeps(llmClient)
	mgr := NewManager(deps)
	session := mgr.GetOrCreate("s1")

	_, err := session.Turn(context.Background(), "First turn.", false)
	require.NoError(t, err)

	res, err := session.Turn(context.Background(), "Second turn, say the same thing.", false)
	require.NoError(t, err)
	assert.Equal(t, "A genuinely different answer.", res.Response)
	assert.GreaterOrEqual(t, llmClient.calls, 3)
}

func TestGetOrCreateReusesSession(t *testing.T) {
	deps := newTestDeps(&scriptedLLM{responses: []string{"ok"}})
	mgr := NewManager(deps)
	a := mgr.GetOrCreate("shared")
	b := mgr.GetOrCreate("shared")
	assert.Same(t, a, b)
}

func TestTurnEnqueuesShedJobTriggeredByAssistantMessage(t *testing.T) {
	longResponse := "This is a long assistant response meant to push the live context well past the pressure trigger threshold all by itself."
	llmClient := &scriptedLLM{responses: []string{longResponse}}

	cfg, err := config.New(config.WithMaxContextTokens(20), config.WithEchoGuard(10, 0.95, 3, true, true))
	require.NoError(t, err)
	chunks := store.NewInMemoryChunkStore()
	vectors := store.NewInMemoryVectorIndex()
	graph := store.NewInMemoryGraph()
	embedder := embed.NewDummyEmbedder(cfg.EmbeddingDim)
	q := queue.New(cfg.QueueMaxSize)
	extractor := statemachine.New(statemachine.DefaultCatalog())
	manager := coldpath.New(chunks, vectors, graph, embedder, extractor, cfg.SummaryLeadSentences, cfg.SummaryTailSentences, cfg.SummaryMaxTokens, zerolog.Nop())
	worker := coldpath.NewWorker(q, manager, cfg.ColdPathBatchSize, cfg.ColdPathWorkers, cfg.ColdPathIdleInterval, zerolog.Nop())
	deps := &Deps{
		Chunks: chunks, Vectors: vectors, Graph: graph, Embedder: embedder,
		LLM: llmClient, Queue: q, Worker: worker, Extractor: extractor, Config: cfg, Logger: zerolog.Nop(),
	}

	mgr := NewManager(deps)
	session := mgr.GetOrCreate("s3")

	// "hi" alone is far too small to cross the trigger threshold; only the long assistant
	// response pushes the window over it, so any enqueued job must have come from the
	// assistant-message shed path, not the user-message one.
	_, err = session.Turn(context.Background(), "hi", false)
	require.NoError(t, err)

	assert.Equal(t, int64(1), deps.Queue.EnqueuedTotal(), "assistant message shed must enqueue its job exactly like the user-message path does")
}

func TestSessionResetClearsContext(t *testing.T) {
	deps := newTestDeps(&scriptedLLM{responses: []string{"ok"}})
	mgr := NewManager(deps)
	session := mgr.GetOrCreate("s2")

	_, err := session.Turn(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Greater(t, session.GetStats().Context.CurrentTokens, 0)

	session.Reset()
	assert.Equal(t, 0, session.GetStats().Context.CurrentTokens)
}
