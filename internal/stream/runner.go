package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rawblock/muletrace-engine/internal/pipeline"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

// DefaultFlushInterval is how often buffered feed rows are folded into a run.
const DefaultFlushInterval = 1 * time.Second

// Runner owns the accumulated row set and serializes every analysis run
// over it. Streamed rows queue in the Buffer; each flush tick drains the
// buffer, appends to the accumulated set and reruns the entire pipeline
// synchronously. Each run is a full recompute, not an incremental diff.
// Because the tick handler and the batch Analyze entry point share one
// mutex, at most
// one run is ever in flight; rows arriving mid-run simply wait for the next
// tick.
type Runner struct {
	pipe     *pipeline.Pipeline
	buffer   *Buffer
	interval time.Duration
	onResult func(*models.Result)

	mu          sync.Mutex
	accumulated []models.Row
	latest      *models.Result
}

// NewRunner wires a runner around a pipeline. onResult, when non-nil, is
// invoked with every completed result (used for websocket broadcast and
// persistence hooks).
func NewRunner(pipe *pipeline.Pipeline, interval time.Duration, onResult func(*models.Result)) *Runner {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Runner{
		pipe:     pipe,
		buffer:   NewBuffer(),
		interval: interval,
		onResult: onResult,
	}
}

// Buffer exposes the feed-side row queue.
func (r *Runner) Buffer() *Buffer { return r.buffer }

// Latest returns the most recent completed result, or nil before the first
// run. A failed run leaves the previous result untouched.
func (r *Runner) Latest() *models.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Analyze merges rows into the accumulated set per mode and runs the full
// pipeline. mode=replace discards prior rows; mode=append extends them.
func (r *Runner) Analyze(rows []models.Row, mode models.IngestMode) (*models.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runLocked(rows, mode)
}

func (r *Runner) runLocked(rows []models.Row, mode models.IngestMode) (*models.Result, error) {
	switch mode {
	case models.ModeAppend:
		r.accumulated = append(r.accumulated, rows...)
	default:
		r.accumulated = rows
	}

	result, err := r.pipe.Run(r.accumulated)
	if err != nil {
		return nil, err
	}
	r.latest = result
	if r.onResult != nil {
		r.onResult(result)
	}
	return result, nil
}

// Run drives the flush ticker until the context is cancelled. Each tick
// drains the buffer; empty ticks are free.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Stream] Stopping flush runner...")
			return
		case <-ticker.C:
			batch := r.buffer.Drain()
			if len(batch) == 0 {
				continue
			}
			r.mu.Lock()
			result, err := r.runLocked(batch, models.ModeAppend)
			r.mu.Unlock()
			if err != nil {
				log.Printf("[Stream] Flush analysis failed: %v", err)
				continue
			}
			log.Printf("[Stream] Flushed %d rows, %d accounts analyzed in %.1fms",
				len(batch), result.AnalysisPayload.Summary.TotalAccountsAnalyzed, result.AnalysisMS)
		}
	}
}
