package coldpath

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevend0g/vicw/internal/embed"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/queue"
	"github.com/elevend0g/vicw/internal/statemachine"
	"github.com/elevend0g/vicw/internal/store"
)

func TestWorkerDrainsAndProcessesQueue(t *testing.T) {
	q := queue.New(10)
	require.True(t, q.Enqueue(model.OffloadJob{
		ChunkID: "c1",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hello there"},
		},
		CreatedAt: time.Now(),
	}))

	m := New(store.NewInMemoryChunkStore(), store.NewInMemoryVectorIndex(), store.NewInMemoryGraph(),
		embed.NewDummyEmbedder(8), statemachine.New(statemachine.DefaultCatalog()), 2, 1, 256, zerolog.Nop())
	w := NewWorker(q, m, 5, 2, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return w.GetStats().ProcessedTotal == 1
	}, 150*time.Millisecond, 5*time.Millisecond)
}

func TestWorkerPauseStopsDraining(t *testing.T) {
	q := queue.New(10)
	m := New(store.NewInMemoryChunkStore(), store.NewInMemoryVectorIndex(), store.NewInMemoryGraph(),
		embed.NewDummyEmbedder(8), statemachine.New(statemachine.DefaultCatalog()), 2, 1, 256, zerolog.Nop())
	w := NewWorker(q, m, 5, 2, 10*time.Millisecond, zerolog.Nop())
	w.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	require.True(t, q.Enqueue(model.OffloadJob{ChunkID: "c2", Messages: []model.Message{{Role: model.RoleUser, Content: "x"}}}))
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, int64(0), w.GetStats().ProcessedTotal, "paused worker must not drain the queue")
	assert.Equal(t, 1, q.Len())
}
