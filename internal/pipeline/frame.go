package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// Frame is one captured image as handed to the Detector. Image is opaque to
// the pipeline; each Detector knows what its source puts there.
type Frame struct {
	TimestampNanos int64
	WidthPx        int
	HeightPx       int
	Image          any
}

// LatestFrame is a capacity-one hand-off between a frame source and the
// Worker. Offer never blocks: a frame still waiting in the slot is replaced
// by the newer one and counted as dropped.
type LatestFrame struct {
	mu      sync.Mutex
	frame   Frame
	pending bool
	ready   chan struct{}

	offered atomic.Uint64
	dropped atomic.Uint64
}

// NewLatestFrame returns an empty slot.
func NewLatestFrame() *LatestFrame {
	return &LatestFrame{ready: make(chan struct{}, 1)}
}

// Offer stores f, replacing any frame not yet taken. It reports whether a
// pending frame was replaced.
func (l *LatestFrame) Offer(f Frame) bool {
	l.mu.Lock()
	replaced := l.pending
	l.frame = f
	l.pending = true
	l.mu.Unlock()

	l.offered.Add(1)
	if replaced {
		l.dropped.Add(1)
	}
	select {
	case l.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Take blocks until a frame is available or ctx is done.
func (l *LatestFrame) Take(ctx context.Context) (Frame, error) {
	for {
		l.mu.Lock()
		if l.pending {
			f := l.frame
			l.frame = Frame{}
			l.pending = false
			l.mu.Unlock()
			return f, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-l.ready:
		}
	}
}

// Stats returns how many frames were offered and how many were replaced
// before the Worker got to them.
func (l *LatestFrame) Stats() (offered, dropped uint64) {
	return l.offered.Load(), l.dropped.Load()
}
