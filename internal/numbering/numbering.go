// Package numbering issues the human-facing order numbers printed on
// receipts and kitchen screens. Numbers restart at 1 every calendar day.
package numbering

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

type Source interface {
	Next(ctx context.Context) (int64, error)
}

// Daily keeps the (lastDate, counter) pair in process memory. Numbers are
// unique and increasing within one process and one calendar day only; a
// restart or a second replica starts over at 1.
type Daily struct {
	mu       sync.Mutex
	now      func() time.Time
	lastDate string
	counter  int64
}

func NewDaily(now func() time.Time) *Daily {
	if now == nil {
		now = time.Now
	}
	return &Daily{now: now}
}

func (d *Daily) Next(_ context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	today := d.now().Format(dateLayout)
	if today != d.lastDate {
		d.lastDate = today
		d.counter = 0
	}
	d.counter++
	return d.counter, nil
}

type SequenceStore interface {
	NextDailyNumber(ctx context.Context, businessDate string) (int64, error)
}

// Sequence asks the database for the next value of today's counter, which
// keeps numbers unique across restarts and replicas.
type Sequence struct {
	store SequenceStore
	now   func() time.Time
}

func NewSequence(store SequenceStore, now func() time.Time) *Sequence {
	if now == nil {
		now = time.Now
	}
	return &Sequence{store: store, now: now}
}

func (s *Sequence) Next(ctx context.Context) (int64, error) {
	n, err := s.store.NextDailyNumber(ctx, s.now().Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("next daily number: %w", err)
	}
	return n, nil
}

func Format(n int64) string {
	return fmt.Sprintf("%03d", n)
}
