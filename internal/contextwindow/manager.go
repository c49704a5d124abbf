// Package contextwindow implements the Context Manager (C9), the hot path:
// it owns the live message list and pinned header, enforces the token
// budget with hysteresis, and assembles prompts. Grounded on
// original_source/app/context_manager.py's ContextManager, rewritten with an
// explicit per-session handle and mutex per spec §9's "Global mutable
// session state" re-architecture guidance (no module-level singleton).
package contextwindow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/tokenizer"
)

// Thresholds bundles the pressure-control fractions of T_max (spec §4.1).
type Thresholds struct {
	Trigger float64
	Target  float64
	Resume  float64
}

// Manager is the per-session context window: one Manager per Session, guarded by its own mutex
// (spec §5: "guarded by a single mutex per session").
type Manager struct {
	mu sync.Mutex

	maxTokens  int
	thresholds Thresholds

	header     model.Message
	hasHeader  bool

	messages        []model.Message
	currentTokens   int
	suppressionFlag bool

	placeholderTokenCost int
	offloadCount         int
}

// New constructs a Manager for T_max tokens, the given hysteresis thresholds, and an immutable
// pinned header concatenated verbatim at the top of every prompt (spec §4.1).
func New(maxTokens int, th Thresholds, header model.PinnedHeader) *Manager {
	m := &Manager{
		maxTokens:            maxTokens,
		thresholds:           th,
		placeholderTokenCost: 8,
	}
	if headerMsg, ok := header.ToMessage(); ok {
		headerMsg.TokenCount = tokenizer.Estimate(headerMsg.Content)
		headerMsg.Timestamp = time.Now()
		m.header = headerMsg
		m.hasHeader = true
		m.currentTokens += headerMsg.TokenCount
	}
	return m
}

// AddMessage appends role/content, computes its token cost, and evaluates pressure. It returns a
// non-nil OffloadEvent only when a shed fired, plus the job that must be enqueued by the caller
// (spec §4.2: enqueueing onto the bounded queue is the queue's job, not the context manager's).
func (m *Manager) AddMessage(role model.Role, content string) (*model.OffloadEvent, *model.OffloadJob) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := model.Message{
		Role:       role,
		Content:    content,
		Timestamp:  time.Now(),
		TokenCount: tokenizer.Estimate(content),
	}
	m.messages = append(m.messages, msg)
	m.currentTokens += msg.TokenCount

	return m.evaluatePressure()
}

// evaluatePressure implements spec §4.1's hysteresis gate and shed. Caller must hold m.mu.
func (m *Manager) evaluatePressure() (*model.OffloadEvent, *model.OffloadJob) {
	trigger := m.thresholds.Trigger * float64(m.maxTokens)
	resume := m.thresholds.Resume * float64(m.maxTokens)

	if m.suppressionFlag {
		if float64(m.currentTokens) <= resume {
			m.suppressionFlag = false
		}
		return nil, nil
	}

	if float64(m.currentTokens) < trigger {
		return nil, nil
	}

	start := time.Now()
	tokensBefore := m.currentTokens
	event, job := m.shed()
	if event == nil {
		return nil, nil
	}
	event.Duration = time.Since(start)
	event.TokensBefore = tokensBefore
	m.suppressionFlag = true
	return event, job
}

// shed removes a contiguous prefix of the live message list down to theta_target, replacing it
// with a single placeholder message. The pinned header is never part of m.messages, so it is
// never at risk of being shed. Caller must hold m.mu.
func (m *Manager) shed() (*model.OffloadEvent, *model.OffloadJob) {
	target := m.thresholds.Target * float64(m.maxTokens)

	// At least one user+assistant exchange (the trailing two live messages) must remain;
	// if that tail alone still exceeds target, shed everything older and accept the
	// overshoot (spec §4.1).
	const keepTail = 2
	maxEnd := len(m.messages) - keepTail
	if maxEnd < 0 {
		maxEnd = 0
	}

	endIdx := 0
	removedTokens := 0
	for endIdx < maxEnd {
		remaining := m.currentTokens - removedTokens
		if float64(remaining) <= target {
			break
		}
		removedTokens += m.messages[endIdx].TokenCount
		endIdx++
	}

	if endIdx == 0 {
		return nil, nil
	}

	removed := make([]model.Message, 0, endIdx)
	for _, msg := range m.messages[:endIdx] {
		if msg.Persistable() {
			removed = append(removed, msg)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	chunkID := "chunk_" + uuid.NewString()
	placeholder := model.Message{
		Role:       model.RoleSystem,
		Content:    fmt.Sprintf("[ARCHIVED mem_id:%s]", chunkID),
		Timestamp:  time.Now(),
		TokenCount: m.placeholderTokenCost,
	}

	rebuilt := make([]model.Message, 0, len(m.messages)-endIdx+1)
	rebuilt = append(rebuilt, placeholder)
	rebuilt = append(rebuilt, m.messages[endIdx:]...)

	m.currentTokens = m.currentTokens - removedTokens + placeholder.TokenCount
	m.messages = rebuilt
	m.offloadCount++

	job := &model.OffloadJob{
		ChunkID:      chunkID,
		Messages:     removed,
		PinnedHeader: m.header.Content,
		CreatedAt:    time.Now(),
	}
	event := &model.OffloadEvent{ChunkID: chunkID, TokensAfter: m.currentTokens}
	return event, job
}

// RollbackLastAssistant removes the most recently appended assistant message, reversing its
// token-counter contribution. Used by the echo guard to discard a rejected generation (spec §4.1).
func (m *Manager) RollbackLastAssistant() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) == 0 {
		return false
	}
	last := len(m.messages) - 1
	if m.messages[last].Role != model.RoleAssistant {
		return false
	}
	m.currentTokens -= m.messages[last].TokenCount
	m.messages = m.messages[:last]
	return true
}

// GetPrompt assembles, in order, the pinned header, the state injection (if any), the RAG
// injection (if any), and the live messages (spec §4.1). Budget enforcement: if header plus
// injections alone exceed T_max*0.9, RAG is truncated first, then state; the pinned header and
// live messages are never truncated.
func (m *Manager) GetPrompt(stateMsg, ragMsg *model.Message) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assemble(stateMsg, ragMsg)
}

func (m *Manager) assemble(stateMsg, ragMsg *model.Message) []model.Message {
	budget := 0.9 * float64(m.maxTokens)

	headerTokens := 0
	if m.hasHeader {
		headerTokens = m.header.TokenCount
	}

	injections := make([]model.Message, 0, 2)
	if stateMsg != nil {
		injections = append(injections, *stateMsg)
	}
	if ragMsg != nil {
		injections = append(injections, *ragMsg)
	}

	injectionTokens := 0
	for _, inj := range injections {
		injectionTokens += inj.TokenCount
	}

	if float64(headerTokens+injectionTokens) > budget {
		// Truncate RAG first, then state, never the header or live messages.
		if ragMsg != nil {
			injections = removeByRole(injections, model.RoleRAG)
			injectionTokens = sumTokens(injections)
		}
		if float64(headerTokens+injectionTokens) > budget && stateMsg != nil {
			injections = removeByRole(injections, model.RoleState)
			injectionTokens = sumTokens(injections)
		}
	}

	out := make([]model.Message, 0, 1+len(injections)+len(m.messages))
	if m.hasHeader {
		out = append(out, m.header)
	}
	out = append(out, injections...)
	out = append(out, m.messages...)
	return out
}

// GetEmergencyPrompt assembles only the pinned header and the most recently added user message,
// discarding RAG/state injections and every older live message (spec §4.6's emergency-override
// tier: respond "only using the pinned header and the latest user message").
func (m *Manager) GetEmergencyPrompt() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Message, 0, 2)
	if m.hasHeader {
		out = append(out, m.header)
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Role == model.RoleUser {
			out = append(out, m.messages[i])
			break
		}
	}
	return out
}

func removeByRole(msgs []model.Message, role model.Role) []model.Message {
	out := msgs[:0:0]
	for _, msg := range msgs {
		if msg.Role != role {
			out = append(out, msg)
		}
	}
	return out
}

func sumTokens(msgs []model.Message) int {
	n := 0
	for _, msg := range msgs {
		n += msg.TokenCount
	}
	return n
}

// TokenCount returns the current total tokens across header and live messages (I1).
func (m *Manager) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTokens
}

// Stats is the §6 /stats "context" payload shape.
type Stats struct {
	CurrentTokens      int
	MaxTokens          int
	MessageCount       int
	OffloadCount       int
	PressurePercentage float64
}

// GetStats returns the current context statistics.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	pct := 0.0
	if m.maxTokens > 0 {
		pct = float64(m.currentTokens) / float64(m.maxTokens) * 100
	}
	return Stats{
		CurrentTokens:      m.currentTokens,
		MaxTokens:          m.maxTokens,
		MessageCount:       len(m.messages),
		OffloadCount:       m.offloadCount,
		PressurePercentage: pct,
	}
}

// Reset clears live messages and offload bookkeeping; persistent stores are untouched (spec §6
// POST /reset).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.currentTokens = 0
	if m.hasHeader {
		m.currentTokens = m.header.TokenCount
	}
	m.offloadCount = 0
	m.suppressionFlag = false
}
