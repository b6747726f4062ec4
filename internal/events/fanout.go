package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSinkQueue   = 256
	defaultSinkTimeout = 5 * time.Second
)

// Sink forwards events to a system outside the process, such as a broker.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
	Close() error
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// Fanout delivers every event to the local publisher inline and hands it to
// the sinks through a bounded queue drained by one worker. Sink failures,
// timeouts and queue overflow are logged and dropped.
type Fanout struct {
	local   Publisher
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func NewFanout(local Publisher, logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{
		local:   local,
		sinks:   sinks,
		logger:  logger,
		timeout: defaultSinkTimeout,
		queue:   make(chan queuedEvent, defaultSinkQueue),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *Fanout) Publish(ctx context.Context, event Event) {
	if f.local != nil {
		f.local.Publish(ctx, event)
	}
	if len(f.sinks) == 0 {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	// The request context ends with the response; keep its values only.
	select {
	case f.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		f.logger.Warn("event sink queue full, dropping event",
			zap.String("event", event.Name),
			zap.String("order_id", event.OrderID),
		)
	}
}

func (f *Fanout) run() {
	defer close(f.done)
	for queued := range f.queue {
		for _, sink := range f.sinks {
			f.send(sink, queued)
		}
	}
}

func (f *Fanout) send(sink Sink, queued queuedEvent) {
	ctx, cancel := context.WithTimeout(queued.ctx, f.timeout)
	defer cancel()
	if err := sink.Send(ctx, queued.event); err != nil {
		f.logger.Warn("event sink failed",
			zap.String("sink", sink.Name()),
			zap.String("event", queued.event.Name),
			zap.String("order_id", queued.event.OrderID),
			zap.Error(err),
		)
	}
}

// Close stops accepting events, waits for queued ones to reach the sinks and
// then closes every sink.
func (f *Fanout) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.queue)
		f.mu.Unlock()
		<-f.done

		for _, sink := range f.sinks {
			if err := sink.Close(); err != nil && f.closeErr == nil {
				f.closeErr = err
			}
		}
	})
	return f.closeErr
}
