package live

import (
	"context"
	"sync"

	"github.com/satriahrh/ami/domain/repositories"
)

// FrameQueue is an unbounded FIFO of inbound frames. Push is called from the
// transport's goroutine and never blocks; a single reader consumes with Next.
type FrameQueue struct {
	mu     sync.Mutex
	frames []repositories.Frame
	closed bool
	notify chan struct{}
}

// NewFrameQueue creates an open, empty queue
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{notify: make(chan struct{}, 1)}
}

// Push appends a frame. Frames pushed after Close are dropped.
func (q *FrameQueue) Push(frame repositories.Frame) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.frames = append(q.frames, frame)
	q.mu.Unlock()

	q.signal()
}

// Pop removes the head frame. ok is false when the queue is empty.
func (q *FrameQueue) Pop() (frame repositories.Frame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return repositories.Frame{}, false
	}
	frame = q.frames[0]
	q.frames[0] = repositories.Frame{}
	q.frames = q.frames[1:]
	return frame, true
}

// Next blocks until a frame is available, the queue is closed or ctx is done.
func (q *FrameQueue) Next(ctx context.Context) (repositories.Frame, error) {
	for {
		if frame, ok := q.Pop(); ok {
			return frame, nil
		}
		if q.Closed() {
			return repositories.Frame{}, ErrQueueClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return repositories.Frame{}, ctx.Err()
		}
	}
}

// Len is the number of buffered frames
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Drain discards buffered frames and returns how many were dropped
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.frames)
	q.frames = nil
	return n
}

// Close drops buffered frames, rejects further pushes and wakes the reader
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.mu.Unlock()

	q.signal()
}

// Closed reports whether Close was called
func (q *FrameQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *FrameQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
