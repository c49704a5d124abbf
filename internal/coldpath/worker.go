package coldpath

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/elevend0g/vicw/internal/concurrent"
	"github.com/elevend0g/vicw/internal/model"
	"github.com/elevend0g/vicw/internal/queue"
)

// Worker is the Cold-Path Worker (C8): a background loop that drains the offload queue in
// batches and fans each batch out to the Semantic Manager, grounded on
// original_source/app/cold_path_worker.py's ColdPathWorker._worker_loop.
//
// Pause is a latch, not a queue: Pause/Resume toggle an atomic flag checked once per poll, so a
// generation in flight on the hot path is never starved of CPU by a concurrent cold-path batch
// (spec §4.3, §9: "the cold path must yield during LLM generation").
type Worker struct {
	q       *queue.Queue
	manager *Manager
	pool    *concurrent.WorkerPool

	batchSize    int
	idleInterval time.Duration

	paused  atomic.Bool
	running atomic.Bool

	processed atomic.Int64
	failed    atomic.Int64

	logger zerolog.Logger
}

// NewWorker constructs a Worker over the given queue and Semantic Manager, with the batch size,
// poll interval, and worker-pool size from config (COLD_PATH_BATCH_SIZE/t_idle/COLD_PATH_WORKERS).
func NewWorker(q *queue.Queue, manager *Manager, batchSize, workers int, idleInterval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		q:            q,
		manager:      manager,
		pool:         concurrent.NewWorkerPool(workers),
		batchSize:    batchSize,
		idleInterval: idleInterval,
		logger:       logger,
	}
}

// Run drives the worker loop until ctx is cancelled. Intended to be launched in its own goroutine
// by the caller (spec §5: "runs independently from the hot path").
func (w *Worker) Run(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)
	w.logger.Info().Int("batch_size", w.batchSize).Int("pool_size", w.pool.MaxWorkers()).Msg("cold path worker starting")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.idleInterval):
			}
			continue
		}

		batch := w.q.DrainBatch(w.batchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.idleInterval):
			}
			continue
		}

		var wg sync.WaitGroup
		for _, job := range batch {
			wg.Add(1)
			go func(job model.OffloadJob) {
				defer wg.Done()
				_ = w.pool.Do(ctx, func() error {
					res := w.manager.ProcessJob(ctx, job)
					if res.Success {
						w.processed.Add(1)
					} else {
						w.failed.Add(1)
					}
					return nil
				})
			}(job)
		}
		wg.Wait()
	}
}

// Pause instructs the worker to stop draining the queue until Resume is called (spec §4.3: the
// hot path pauses the cold path during LLM generation).
func (w *Worker) Pause() { w.paused.Store(true) }

// Resume lifts a previously set pause.
func (w *Worker) Resume() { w.paused.Store(false) }

// Stats is the §6 /stats "cold_path" payload shape.
type Stats struct {
	Running        bool
	Paused         bool
	ProcessedTotal int64
	FailedTotal    int64
}

// GetStats returns current worker counters.
func (w *Worker) GetStats() Stats {
	return Stats{
		Running:        w.running.Load(),
		Paused:         w.paused.Load(),
		ProcessedTotal: w.processed.Load(),
		FailedTotal:    w.failed.Load(),
	}
}
