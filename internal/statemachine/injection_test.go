package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/store"
	"github.com/elevend0g/vicw/internal/tokenizer"
)

func defaultCaps() InjectionCaps {
	return InjectionCaps{Goal: 2, Task: 3, Decision: 2, Fact: 3, KDone: 3}
}

func TestBuildInjectionEmptyWhenNoStates(t *testing.T) {
	g := store.NewInMemoryGraph()
	_, ok, err := BuildInjection(context.Background(), g, defaultCaps(), 5, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildInjectionRendersActiveGoal(t *testing.T) {
	ctx := context.Background()
	g := store.NewInMemoryGraph()
	_, err := g.CreateOrTransitionState(ctx, store.StateCandidate{Type: model.StateGoal, Status: model.StatusActive, Description: "finish the launch"})
	require.NoError(t, err)

	msg, ok, err := BuildInjection(ctx, g, defaultCaps(), 5, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, msg.Content, "Active goals")
	assert.Contains(t, msg.Content, "finish the launch")
	assert.Equal(t, model.RoleState, msg.Role)
	assert.Equal(t, tokenizer.Estimate(msg.Content), msg.TokenCount, "TokenCount must reflect the rendered content so budget truncation can act on it")
}

func TestBuildInjectionBoredomWarningAtThreshold(t *testing.T) {
	ctx := context.Background()
	g := store.NewInMemoryGraph()
	_, err := g.CreateOrTransitionState(ctx, store.StateCandidate{Type: model.StateTask, Status: model.StatusActive, Description: "write the report"})
	require.NoError(t, err)

	caps := defaultCaps()
	// Inject repeatedly to push visit_count toward the threshold.
	var msg model.Message
	var ok bool
	for i := 0; i < 3; i++ {
		msg, ok, err = BuildInjection(ctx, g, caps, 3, true)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Contains(t, msg.Content, "LOOP DETECTED")
}

func TestBuildInjectionBoredomDisabled(t *testing.T) {
	ctx := context.Background()
	g := store.NewInMemoryGraph()
	_, err := g.CreateOrTransitionState(ctx, store.StateCandidate{Type: model.StateTask, Status: model.StatusActive, Description: "write the report"})
	require.NoError(t, err)

	var msg model.Message
	for i := 0; i < 5; i++ {
		msg, _, err = BuildInjection(ctx, g, defaultCaps(), 2, false)
		require.NoError(t, err)
	}
	assert.NotContains(t, msg.Content, "LOOP DETECTED")
}
