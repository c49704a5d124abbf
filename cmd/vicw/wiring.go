package main

import (
	"os"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/elevend0g/vicw/internal/coldpath"
	"github.com/elevend0g/vicw/internal/config"
	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/llm"
	"github.com/elevend0g/vicw/internal/orchestrator"
	"github.com/elevend0g/vicw/internal/queue"
	"github.com/elevend0g/vicw/internal/statemachine"
	"github.com/elevend0g/vicw/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// loadConfig builds a Config from every environment variable spec §6 enumerates: pressure
// control thresholds, queue size, retrieval params, embedding dim, echo guard knobs, state
// machine caps, summarization lengths, cold-path tuning, and the LLM client surface.
func loadConfig() (*config.Config, error) {
	return config.New(
		config.WithMaxContextTokens(envIntOr("VICW_MAX_CONTEXT_TOKENS", 4096)),
		config.WithThresholds(
			envFloatOr("VICW_THETA_TRIGGER", 0.80),
			envFloatOr("VICW_THETA_TARGET", 0.60),
			envFloatOr("VICW_THETA_RESUME", 0.70),
		),
		config.WithQueueMaxSize(envIntOr("VICW_QUEUE_MAX_SIZE", 100)),
		config.WithRetrievalParams(
			envIntOr("VICW_TOP_K_SEMANTIC", 2),
			envIntOr("VICW_TOP_K_RELATIONAL", 5),
			envFloatOr("VICW_SIM_MINIMUM", 0.4),
		),
		config.WithEmbeddingDim(envIntOr("VICW_EMBEDDING_DIM", 384)),
		config.WithEchoGuard(
			envIntOr("VICW_ECHO_RING_SIZE", 10),
			envFloatOr("VICW_ECHO_SIM_THRESHOLD", 0.95),
			envIntOr("VICW_MAX_REGENERATION_TRIES", 3),
			envBoolOr("VICW_ECHO_GUARD_ENABLED", true),
			envBoolOr("VICW_STRIP_RAG_ON_FINAL_TRY", true),
		),
		config.WithStateCaps(
			envIntOr("VICW_STATE_CAP_GOAL", 2),
			envIntOr("VICW_STATE_CAP_TASK", 3),
			envIntOr("VICW_STATE_CAP_DECISION", 2),
			envIntOr("VICW_STATE_CAP_FACT", 3),
			envIntOr("VICW_K_DONE", 3),
		),
		config.WithBoredom(
			envIntOr("VICW_BOREDOM_THRESHOLD", 5),
			envBoolOr("VICW_BOREDOM_ENABLED", true),
		),
		config.WithStateTracking(envBoolOr("VICW_STATE_TRACKING_ENABLED", true)),
		config.WithSummarization(
			envIntOr("VICW_SUMMARY_LEAD_SENTENCES", 2),
			envIntOr("VICW_SUMMARY_TAIL_SENTENCES", 1),
			envIntOr("VICW_SUMMARY_MAX_TOKENS", 256),
		),
		config.WithColdPath(
			envDurationOr("VICW_COLD_PATH_IDLE_INTERVAL", 100*time.Millisecond),
			envIntOr("VICW_COLD_PATH_BATCH_SIZE", 3),
			envIntOr("VICW_COLD_PATH_WORKERS", 4),
		),
		config.WithLLM(
			envDurationOr("VICW_LLM_TIMEOUT", 60*time.Second),
			envIntOr("VICW_LLM_MAX_RETRIES", 2),
			envOr("VICW_LLM_MODEL", "gpt-4o-mini"),
			os.Getenv("VICW_LLM_BASE_URL"),
			os.Getenv("OPENAI_API_KEY"),
		),
	)
}

// buildDeps wires every backend per spec §6's configuration surface: Redis for the chunk store,
// Qdrant for the vector index, and the build-tag-selected graph (in-memory by default, real
// Neo4j under -tags neo4j), following the teacher's defaultMemoryFactory fallback-to-in-memory
// pattern when no DSN is configured.
func buildDeps(cfg *config.Config, logger zerolog.Logger) *orchestrator.Deps {
	chunks := buildChunkStore(logger)
	vectors := buildVectorIndex(cfg, logger)
	graph := buildGraph(logger)

	var embedder embed.Embedder
	if cfg.LLMAPIKey != "" {
		oaiCfg := openai.DefaultConfig(cfg.LLMAPIKey)
		if cfg.LLMBaseURL != "" {
			oaiCfg.BaseURL = cfg.LLMBaseURL
		}
		client := openai.NewClientWithConfig(oaiCfg)
		// text-embedding-ada-002 always returns 1536-dim vectors; Dim() must report that
		// regardless of cfg.EmbeddingDim (which sizes the dummy/local fallback instead).
		embedder = embed.NewCachedEmbedder(
			embed.NewOpenAIEmbedder(client, openai.AdaEmbeddingV2, 1536),
			1000, 0,
		)
	} else {
		logger.Warn().Msg("no OPENAI_API_KEY set, using deterministic dummy embedder")
		embedder = embed.NewDummyEmbedder(cfg.EmbeddingDim)
	}

	llmClient := llm.New(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMTimeout, cfg.LLMMaxRetries)

	q := queue.New(cfg.QueueMaxSize)
	extractor := statemachine.New(statemachine.DefaultCatalog())
	manager := coldpath.New(chunks, vectors, graph, embedder, extractor,
		cfg.SummaryLeadSentences, cfg.SummaryTailSentences, cfg.SummaryMaxTokens, logger)
	worker := coldpath.NewWorker(q, manager, cfg.ColdPathBatchSize, cfg.ColdPathWorkers, cfg.ColdPathIdleInterval, logger)

	return &orchestrator.Deps{
		Chunks:    chunks,
		Vectors:   vectors,
		Graph:     graph,
		Embedder:  embedder,
		LLM:       llmClient,
		Queue:     q,
		Worker:    worker,
		Extractor: extractor,
		Config:    cfg,
		Logger:    logger,
	}
}

func buildChunkStore(logger zerolog.Logger) store.ChunkStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logger.Warn().Msg("no REDIS_ADDR set, using in-memory chunk store")
		return store.NewInMemoryChunkStore()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	return store.NewRedisChunkStore(client)
}

func buildVectorIndex(cfg *config.Config, logger zerolog.Logger) store.VectorIndex {
	baseURL := os.Getenv("QDRANT_URL")
	if baseURL == "" {
		logger.Warn().Msg("no QDRANT_URL set, using in-memory vector index")
		return store.NewInMemoryVectorIndex()
	}
	collection := envOr("QDRANT_COLLECTION", "vicw_chunks")
	idx := store.NewQdrantVectorIndex(baseURL, collection, os.Getenv("QDRANT_API_KEY"))
	return idx
}
