// Package httpapi exposes the system boundary (spec §6) as an HTTP server,
// grounded on the chi-router pattern in
// secmon-lab-hecatoncheires/pkg/controller/http/server.go: chi.NewRouter,
// chi/middleware.RequestID + Recoverer, and a Server wrapping the router.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/orchestrator"
)

// Server is the HTTP system boundary: POST /chat, GET /health, GET /stats, POST /reset, plus an
// OpenAI-compatible shim and an ingest endpoint (spec §6, SPEC_FULL supplemented features).
type Server struct {
	router  *chi.Mux
	manager *orchestrator.Manager
	logger  zerolog.Logger
	model   string
}

// New constructs a Server wired to the session manager.
func New(manager *orchestrator.Manager, modelName string, logger zerolog.Logger) *Server {
	s := &Server{manager: manager, logger: logger, model: modelName}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLogger(logger))
	r.Use(middleware.Recoverer)

	r.Post("/chat", s.handleChat)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/reset", s.handleReset)
	r.Post("/ingest", s.handleIngest)
	r.Get("/v1/models", s.handleListModels)
	r.Post("/v1/chat/completions", s.handleOpenAICompat)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func accessLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func sessionIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type chatRequest struct {
	Message string `json:"message"`
	UseRAG  *bool  `json:"use_rag"`
}

type chatResponse struct {
	Response         string    `json:"response"`
	Timestamp        time.Time `json:"timestamp"`
	TokensInContext  int       `json:"tokens_in_context"`
	RAGItemsInjected int       `json:"rag_items_injected"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	session := s.manager.GetOrCreate(sessionIDFromRequest(r))
	res, err := session.Turn(r.Context(), req.Message, useRAG)
	if err != nil {
		s.logger.Error().Err(err).Msg("turn failed")
		writeError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:         res.Response,
		Timestamp:        time.Now(),
		TokensInContext:  res.TokensInContext,
		RAGItemsInjected: res.RAGItemsInjected,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"context_initialized": true,
		"llm_initialized":     true,
		"model":               s.model,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	session := s.manager.GetOrCreate(sessionIDFromRequest(r))
	stats := session.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"context": map[string]any{
			"current_tokens":      stats.Context.CurrentTokens,
			"max_tokens":          stats.Context.MaxTokens,
			"message_count":       stats.Context.MessageCount,
			"offload_count":       stats.Context.OffloadCount,
			"pressure_percentage": stats.Context.PressurePercentage,
		},
		"queue": map[string]any{
			"current_size":   stats.Queue.CurrentSize,
			"max_size":       stats.Queue.MaxSize,
			"enqueued_total":  stats.Queue.EnqueuedTotal,
			"processed_total": stats.Queue.ProcessedTotal,
			"dropped_total":  stats.Queue.DroppedTotal,
		},
		"worker": map[string]any{
			"is_running":     stats.Worker.Running,
			"processed_count": stats.Worker.ProcessedTotal,
			"failed_count":   stats.Worker.FailedTotal,
			"success_rate":   successRate(stats.Worker.ProcessedTotal, stats.Worker.FailedTotal),
		},
		"retrieval": map[string]any{
			"last_query_duration_ms": stats.Retrieval.LastQueryDuration.Milliseconds(),
		},
	})
}

func successRate(processed, failed int64) float64 {
	total := processed + failed
	if total == 0 {
		return 0
	}
	return float64(processed) / float64(total)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	session := s.manager.GetOrCreate(sessionIDFromRequest(r))
	session.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ingestRequest lets operators backfill chunk store/vector index/graph entries directly, bypassing
// the live shed path (SPEC_FULL supplemented feature, grounded on original_source/app/api_server.py's
// ingest-adjacent endpoints).
type ingestRequest struct {
	Text string            `json:"text"`
	Meta map[string]string `json:"meta"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	job := model.OffloadJob{
		ChunkID:      "ingest_" + middleware.GetReqID(r.Context()),
		Messages:     []model.Message{{Role: model.RoleUser, Content: req.Text, Timestamp: time.Now()}},
		CreatedAt:    time.Now(),
		SkipShedPath: true,
		IngestMeta:   req.Meta,
	}
	if !s.manager.EnqueueIngest(job) {
		writeError(w, http.StatusServiceUnavailable, "offload queue full, try again later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"chunk_id": job.ChunkID})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": s.model, "object": "model"},
		},
	})
}

type openAICompatRequest struct {
	Model    string              `json:"model"`
	Messages []openAICompatEntry `json:"messages"`
}

type openAICompatEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleOpenAICompat adapts the OpenAI chat-completions wire shape onto one Orchestrator turn,
// treating the request's final user message as the turn input and the rest as already folded
// into the session's own context (SPEC_FULL supplemented feature).
func (s *Server) handleOpenAICompat(w http.ResponseWriter, r *http.Request) {
	var req openAICompatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}
	last := req.Messages[len(req.Messages)-1]

	session := s.manager.GetOrCreate(sessionIDFromRequest(r))
	res, err := session.Turn(r.Context(), last.Content, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "chatcmpl-" + middleware.GetReqID(r.Context()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   s.model,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": res.Response},
				"finish_reason": "stop",
			},
		},
	})
}
