package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/store"
)

func TestExtractAffirmativeGoal(t *testing.T) {
	e := New(DefaultCatalog())
	cands := e.Extract("Let's go to the park this afternoon.")
	require.NotEmpty(t, cands)
	assert.Equal(t, model.StateGoal, cands[0].Type)
	assert.Equal(t, KindAffirmative, cands[0].Kind)
	assert.Contains(t, cands[0].Description, "park")
}

func TestExtractCompletionTransitionsActiveState(t *testing.T) {
	ctx := context.Background()
	g := store.NewInMemoryGraph()
	e := New(DefaultCatalog())

	_, err := e.ProcessTurn(ctx, g, "We need to finish the report.")
	require.NoError(t, err)

	active, err := g.ActiveStates(ctx, model.StateTask, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.StatusActive, active[0].Status)

	_, err = e.ProcessTurn(ctx, g, "the report is done")
	require.NoError(t, err)

	completed, err := g.CompletedStates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, 0, completed[0].VisitCount, "I4: visit_count resets on transition out of active")

	active, err = g.ActiveStates(ctx, model.StateTask, 10)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestExtractFuzzyDedupReusesState(t *testing.T) {
	ctx := context.Background()
	g := store.NewInMemoryGraph()
	e := New(DefaultCatalog())

	_, err := e.ProcessTurn(ctx, g, "We decided to use Postgres for storage.")
	require.NoError(t, err)
	_, err = e.ProcessTurn(ctx, g, "We decided to use Postgres for storage!")
	require.NoError(t, err)

	decisions, err := g.ActiveStates(ctx, model.StateDecision, 10)
	require.NoError(t, err)
	assert.Len(t, decisions, 1, "near-identical restatements should fuzzy-dedup to one state")
}

func TestExtractNoMatchReturnsEmpty(t *testing.T) {
	e := New(DefaultCatalog())
	cands := e.Extract("What time is it?")
	assert.Empty(t, cands)
}
