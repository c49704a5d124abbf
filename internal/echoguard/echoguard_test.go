package echoguard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elevend0g/vicw/internal/model"
)

func unitVec(dim int, idx int) model.Embedding {
	v := make(model.Embedding, dim)
	v[idx%dim] = 1
	return v
}

func TestCheckNoMatchBelowThreshold(t *testing.T) {
	g := New(10, 0.95, 3)
	g.Record(context.Background(), "resp a", unitVec(4, 0))

	v := g.Check(unitVec(4, 1), 1)
	assert.False(t, v.IsEcho)
	assert.Equal(t, TierNone, v.Tier)
}

func TestCheckEscalatesAcrossAttempts(t *testing.T) {
	g := New(10, 0.95, 3)
	g.Record(context.Background(), "resp a", unitVec(4, 0))

	v1 := g.Check(unitVec(4, 0), 1)
	assert.True(t, v1.IsEcho)
	assert.Equal(t, TierPolite, v1.Tier)
	assert.NotEmpty(t, WarningFor(v1.Tier))

	v2 := g.Check(unitVec(4, 0), 2)
	assert.True(t, v2.IsEcho)
	assert.Equal(t, TierForceful, v2.Tier)

	v3 := g.Check(unitVec(4, 0), 3)
	assert.True(t, v3.IsEcho)
	assert.Equal(t, TierEmergencyOverride, v3.Tier)

	v4 := g.Check(unitVec(4, 0), 4)
	assert.True(t, v4.IsEcho)
	assert.Equal(t, TierAccept, v4.Tier, "R_max exhausted: caller must accept and emit ECHO_GUARD_EXHAUSTED")
	assert.Empty(t, WarningFor(v4.Tier))
}

func TestRingEvictsOldestBeyondCapacity(t *testing.T) {
	g := New(2, 0.95, 3)
	g.Record(context.Background(), "a", unitVec(4, 0))
	g.Record(context.Background(), "b", unitVec(4, 1))
	g.Record(context.Background(), "c", unitVec(4, 2))

	assert.Equal(t, 2, g.Len())

	v := g.Check(unitVec(4, 0), 1)
	assert.False(t, v.IsEcho, "oldest entry should have been evicted")
}
