package inbox

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Inbox is a bounded, typed message queue with a send timeout.
// Producers never block longer than the timeout; a full inbox drops the message.
type Inbox[T any] struct {
	ch      chan T
	timeout time.Duration
	logger  *slog.Logger

	sent     atomic.Int64
	received atomic.Int64
	dropped  atomic.Int64
	maxDepth atomic.Int64
}

// Stats is a point-in-time view of inbox usage
type Stats struct {
	TotalSent     int64
	TotalReceived int64
	DroppedCount  int64
	CurrentDepth  int
	MaxDepthSeen  int
}

// New creates an inbox with the given buffer size and send timeout
func New[T any](bufferSize int, timeout time.Duration, logger *slog.Logger) *Inbox[T] {
	return &Inbox[T]{
		ch:      make(chan T, bufferSize),
		timeout: timeout,
		logger:  logger,
	}
}

// Send enqueues msg, waiting at most the configured timeout or until ctx is done.
// Returns false if the message was dropped.
func (ib *Inbox[T]) Send(ctx context.Context, msg T) bool {
	select {
	case ib.ch <- msg:
		ib.sent.Add(1)
		ib.trackDepth()
		return true
	default:
	}

	timer := time.NewTimer(ib.timeout)
	defer timer.Stop()

	select {
	case ib.ch <- msg:
		ib.sent.Add(1)
		ib.trackDepth()
		return true
	case <-timer.C:
		ib.dropped.Add(1)
		ib.logger.Warn("inbox send timeout",
			"timeout", ib.timeout,
			"current_depth", len(ib.ch))
		return false
	case <-ctx.Done():
		ib.dropped.Add(1)
		return false
	}
}

// TryReceive returns a queued message without blocking
func (ib *Inbox[T]) TryReceive() (T, bool) {
	select {
	case msg := <-ib.ch:
		ib.received.Add(1)
		return msg, true
	default:
		var zero T
		return zero, false
	}
}

// Receive blocks until a message is available or ctx is done
func (ib *Inbox[T]) Receive(ctx context.Context) (T, bool) {
	select {
	case msg := <-ib.ch:
		ib.received.Add(1)
		return msg, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

func (ib *Inbox[T]) trackDepth() {
	depth := int64(len(ib.ch))
	for {
		seen := ib.maxDepth.Load()
		if depth <= seen || ib.maxDepth.CompareAndSwap(seen, depth) {
			return
		}
	}
}

// Stats returns a snapshot of the inbox counters
func (ib *Inbox[T]) Stats() Stats {
	return Stats{
		TotalSent:     ib.sent.Load(),
		TotalReceived: ib.received.Load(),
		DroppedCount:  ib.dropped.Load(),
		CurrentDepth:  len(ib.ch),
		MaxDepthSeen:  int(ib.maxDepth.Load()),
	}
}

// Len returns the number of queued messages
func (ib *Inbox[T]) Len() int {
	return len(ib.ch)
}
