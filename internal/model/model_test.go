package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elevend0g/vicw/internal/tokenizer"
)

func TestRAGResultToMessageSetsTokenCount(t *testing.T) {
	r := RAGResult{Semantic: []SemanticHit{{ChunkID: "c1", Summary: "discussed the launch plan"}}}
	msg, ok := r.ToMessage()
	assert.True(t, ok)
	assert.Equal(t, tokenizer.Estimate(msg.Content), msg.TokenCount, "TokenCount must reflect the rendered content so budget truncation can act on it")
}

func TestRAGResultToMessageEmpty(t *testing.T) {
	r := RAGResult{}
	_, ok := r.ToMessage()
	assert.False(t, ok)
}
