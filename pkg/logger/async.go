package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// AsyncHandler decouples log producers from the next handler in the chain by
// buffering records on a channel and draining them on a single goroutine.
// Producers never block on I/O; a full buffer either drops the record or
// blocks the caller, depending on dropOnFull.
type AsyncHandler struct {
	next       slog.Handler
	records    chan slog.Record
	dropOnFull bool
	dropped    *atomic.Int64
	done       chan struct{}
}

// NewAsyncHandler starts the drain goroutine and returns the handler.
func NewAsyncHandler(next slog.Handler, bufferSize int, dropOnFull bool) *AsyncHandler {
	h := &AsyncHandler{
		next:       next,
		records:    make(chan slog.Record, bufferSize),
		dropOnFull: dropOnFull,
		dropped:    new(atomic.Int64),
		done:       make(chan struct{}),
	}
	go h.drain()
	return h
}

func (h *AsyncHandler) drain() {
	defer close(h.done)
	for r := range h.records {
		_ = h.next.Handle(context.Background(), r)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	select {
	case h.records <- r.Clone():
		return nil
	default:
	}

	if h.dropOnFull {
		h.dropped.Add(1)
		return nil
	}

	h.records <- r.Clone()
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewAsyncHandler(h.next.WithAttrs(attrs), cap(h.records), h.dropOnFull)
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return NewAsyncHandler(h.next.WithGroup(name), cap(h.records), h.dropOnFull)
}

// Dropped returns the number of records dropped because the buffer was full.
func (h *AsyncHandler) Dropped() int64 {
	return h.dropped.Load()
}

// Close drains the remaining buffered records and stops accepting new ones.
// Callers should invoke this during graceful shutdown so in-flight log lines
// are not lost.
func (h *AsyncHandler) Close() error {
	close(h.records)
	<-h.done
	return nil
}
