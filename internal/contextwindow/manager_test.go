package contextwindow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevend0g/vicw/internal/model"
)

func repeatToTokens(n int) string {
	// tokenizer.Estimate uses ceil(len/4); 4 bytes/token keeps this exact.
	b := make([]byte, n*4)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestPressureReliefFiresExactlyOnce(t *testing.T) {
	th := Thresholds{Trigger: 0.80, Target: 0.60, Resume: 0.70}
	header := model.PinnedHeader{Raw: repeatToTokens(10)}
	m := New(100, th, header)

	var lastEvent *model.OffloadEvent
	for i := 0; i < 4; i++ {
		ev, _ := m.AddMessage(model.RoleUser, repeatToTokens(20))
		if ev != nil {
			lastEvent = ev
		}
	}

	require.NotNil(t, lastEvent, "expected a shed after four 20-token messages on top of a 10-token header")
	assert.LessOrEqual(t, m.TokenCount(), 100)

	statsAfterShed := m.GetStats()
	assert.Equal(t, 1, statsAfterShed.OffloadCount)

	// Suppression should prevent an immediate re-trigger.
	ev, _ := m.AddMessage(model.RoleUser, repeatToTokens(20))
	assert.Nil(t, ev, "suppression flag should block an immediate re-shed")
}

func TestShedNeverProducesEmptyChunk(t *testing.T) {
	th := Thresholds{Trigger: 0.80, Target: 0.60, Resume: 0.70}
	m := New(100, th, model.PinnedHeader{})

	ev, job := m.AddMessage(model.RoleUser, repeatToTokens(95))
	if ev != nil {
		require.NotNil(t, job)
		assert.NotEmpty(t, job.Messages)
	}
}

func TestRollbackLastAssistant(t *testing.T) {
	m := New(1000, Thresholds{Trigger: 0.8, Target: 0.6, Resume: 0.7}, model.PinnedHeader{})
	m.AddMessage(model.RoleUser, "hello")
	before := m.TokenCount()
	m.AddMessage(model.RoleAssistant, "a somewhat longer response")
	ok := m.RollbackLastAssistant()
	assert.True(t, ok)
	assert.Equal(t, before, m.TokenCount())
}

func TestGetPromptOrdering(t *testing.T) {
	m := New(1000, Thresholds{Trigger: 0.8, Target: 0.6, Resume: 0.7}, model.PinnedHeader{Raw: "SYSTEM"})
	m.AddMessage(model.RoleUser, "hi")
	state := &model.Message{Role: model.RoleState, Content: "[STATE MEMORY]"}
	rag := &model.Message{Role: model.RoleRAG, Content: "[CONTEXT FROM MEMORY]"}

	prompt := m.GetPrompt(state, rag)
	require.Len(t, prompt, 4)
	assert.Equal(t, model.RoleSystem, prompt[0].Role)
	assert.Equal(t, model.RoleState, prompt[1].Role)
	assert.Equal(t, model.RoleRAG, prompt[2].Role)
	assert.Equal(t, model.RoleUser, prompt[3].Role)
}

func TestGetPromptTruncatesRAGBeforeStateWhenOverBudget(t *testing.T) {
	th := Thresholds{Trigger: 0.8, Target: 0.6, Resume: 0.7}
	header := model.PinnedHeader{Raw: repeatToTokens(5)}
	m := New(100, th, header) // budget = 0.9*100 = 90 tokens

	state := &model.Message{Role: model.RoleState, Content: repeatToTokens(40), TokenCount: 40}
	rag := &model.Message{Role: model.RoleRAG, Content: repeatToTokens(60), TokenCount: 60}

	// header(5) + state(40) + rag(60) = 105 > 90: RAG must go first, state must survive.
	prompt := m.GetPrompt(state, rag)
	foundState := false
	for _, msg := range prompt {
		assert.NotEqual(t, model.RoleRAG, msg.Role, "RAG injection must be dropped once header+injections exceed the budget")
		if msg.Role == model.RoleState {
			foundState = true
		}
	}
	assert.True(t, foundState, "state injection must survive once dropping RAG brings totals under budget")
}

func TestGetPromptTruncatesStateWhenStillOverBudgetAfterDroppingRAG(t *testing.T) {
	th := Thresholds{Trigger: 0.8, Target: 0.6, Resume: 0.7}
	header := model.PinnedHeader{Raw: repeatToTokens(85)}
	m := New(100, th, header) // budget = 90 tokens; header alone already consumes 85

	state := &model.Message{Role: model.RoleState, Content: repeatToTokens(10), TokenCount: 10}
	rag := &model.Message{Role: model.RoleRAG, Content: repeatToTokens(10), TokenCount: 10}

	prompt := m.GetPrompt(state, rag)
	for _, msg := range prompt {
		assert.NotEqual(t, model.RoleRAG, msg.Role)
		assert.NotEqual(t, model.RoleState, msg.Role, "state injection must also be dropped when header+RAG-dropped total still exceeds budget")
	}
}

func TestGetEmergencyPromptKeepsOnlyHeaderAndLatestUserMessage(t *testing.T) {
	m := New(1000, Thresholds{Trigger: 0.8, Target: 0.6, Resume: 0.7}, model.PinnedHeader{Raw: "SYSTEM"})
	m.AddMessage(model.RoleUser, "first question")
	m.AddMessage(model.RoleAssistant, "first answer")
	m.AddMessage(model.RoleUser, "second question")

	prompt := m.GetEmergencyPrompt()
	require.Len(t, prompt, 2)
	assert.Equal(t, model.RoleSystem, prompt[0].Role)
	assert.Equal(t, model.RoleUser, prompt[1].Role)
	assert.Equal(t, "second question", prompt[1].Content)
}

func TestGetPromptIsPure(t *testing.T) {
	m := New(1000, Thresholds{Trigger: 0.8, Target: 0.6, Resume: 0.7}, model.PinnedHeader{Raw: "SYSTEM"})
	m.AddMessage(model.RoleUser, "hi")
	a := m.GetPrompt(nil, nil)
	b := m.GetPrompt(nil, nil)
	assert.Equal(t, a, b)
}
