package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: capacity of the event channel (default 1024).
//   - MaxBatchEvents: flush once this many events queue (default 64).
//   - MaxBatchWait: flush a partial batch after this long (default 250ms).
//   - SinkTimeout: per-sink deadline while flushing (default 10s).
//   - Logger: optional structured logger for sink failures and drops.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 64
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub fans archive events out to sinks. Emit never blocks the manager; events
// that do not fit the buffer are counted and dropped.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropLog throttle
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine for the supplied sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  cfg.Logger,
		dropLog: throttle{interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues an Event. Invalid events and events arriving after Close are
// discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("Discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		if h.dropLog.Allow(time.Now()) {
			h.logger.Warn("Progress events dropped", zap.Int64("dropped", h.dropped.Swap(0)))
		}
	}
}

// Dropped reports how many events were dropped since the last drop warning.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close drains buffered events, flushes and closes every sink, and waits for the
// background goroutine. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := &batcher{hub: h, timer: time.NewTimer(h.cfg.MaxBatchWait)}
	b.stop()
	for {
		select {
		case evt := <-h.events:
			b.add(evt)
		case <-b.timer.C:
			b.armed = false
			b.flush()
		case <-h.stopCh:
			b.stop()
			b.drain()
			h.closeSinks()
			return
		}
	}
}

// batcher owns the pending batch and its flush timer; it is only touched by run.
type batcher struct {
	hub     *Hub
	pending []Event
	timer   *time.Timer
	armed   bool
}

func (b *batcher) add(evt Event) {
	b.pending = append(b.pending, evt)
	if len(b.pending) >= b.hub.cfg.MaxBatchEvents {
		b.stop()
		b.flush()
		return
	}
	if !b.armed {
		b.timer.Reset(b.hub.cfg.MaxBatchWait)
		b.armed = true
	}
}

func (b *batcher) drain() {
	for {
		select {
		case evt := <-b.hub.events:
			b.pending = append(b.pending, evt)
			if len(b.pending) >= b.hub.cfg.MaxBatchEvents {
				b.flush()
			}
		default:
			b.flush()
			return
		}
	}
}

func (b *batcher) stop() {
	if !b.timer.Stop() {
		select {
		case <-b.timer.C:
		default:
		}
	}
	b.armed = false
}

func (b *batcher) flush() {
	if len(b.pending) == 0 {
		return
	}
	b.hub.deliver(append([]Event(nil), b.pending...))
	b.pending = b.pending[:0]
}

func (h *Hub) deliver(batch []Event) {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("Progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("Progress sink close failed", zap.Error(err))
		}
	}
}

type throttle struct {
	interval time.Duration
	last     atomic.Int64
}

func (t *throttle) Allow(now time.Time) bool {
	if t.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := t.last.Load()
	if nano-last < t.interval.Nanoseconds() {
		return false
	}
	return t.last.CompareAndSwap(last, nano)
}
