package stream

import (
	"sync"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Buffer accumulates streamed rows between flush ticks. Discipline is
// single-writer (the feed handler) / single-reader (the periodic flush);
// the mutex only arbitrates between those two.
type Buffer struct {
	mu   sync.Mutex
	rows []models.Row
}

// NewBuffer returns an empty row buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append queues one accepted feed row for the next flush.
func (b *Buffer) Append(row models.Row) {
	b.mu.Lock()
	b.rows = append(b.rows, row)
	b.mu.Unlock()
}

// Drain removes and returns all queued rows.
func (b *Buffer) Drain() []models.Row {
	b.mu.Lock()
	rows := b.rows
	b.rows = nil
	b.mu.Unlock()
	return rows
}

// Discard drops any queued rows without processing them. Used when the feed
// transport fails: unflushed rows never reach the engine.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.rows = nil
	b.mu.Unlock()
}

// Len reports the number of queued rows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}
