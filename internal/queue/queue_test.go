package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elevend0g/vicw/internal/model"
)

func TestQueueFullDropsNewJob(t *testing.T) {
	q := New(2)

	assert.True(t, q.Enqueue(model.OffloadJob{ChunkID: "a"}))
	assert.True(t, q.Enqueue(model.OffloadJob{ChunkID: "b"}))
	assert.False(t, q.Enqueue(model.OffloadJob{ChunkID: "c"}))

	assert.Equal(t, int64(1), q.DroppedTotal())
	assert.Equal(t, int64(2), q.EnqueuedTotal(), "a dropped job must not count toward the enqueued total")
	assert.Equal(t, 2, q.Len())

	batch := q.DrainBatch(10)
	if assert.Len(t, batch, 2) {
		assert.Equal(t, "a", batch[0].ChunkID)
		assert.Equal(t, "b", batch[1].ChunkID)
	}
}

func TestDrainBatchFIFOOrder(t *testing.T) {
	q := New(10)
	for _, id := range []string{"1", "2", "3"} {
		assert.True(t, q.Enqueue(model.OffloadJob{ChunkID: id}))
	}
	batch := q.DrainBatch(2)
	assert.Len(t, batch, 2)
	assert.Equal(t, "1", batch[0].ChunkID)
	assert.Equal(t, "2", batch[1].ChunkID)
	assert.Equal(t, 1, q.Len())
}
