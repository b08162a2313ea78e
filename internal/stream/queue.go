package stream

import "sync"

// Queue is the outbound FIFO of raw wire lines for one connection.
// The event loop pushes, the connection's write pump pops. The mutex
// guards only the slice and flags and is never held across I/O.
type Queue struct {
	mu       sync.Mutex
	items    []string
	draining bool
	closed   bool
	notify   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends a line. It reports false once the queue is draining or
// closed; the line is dropped in that case.
func (q *Queue) Push(line string) bool {
	q.mu.Lock()
	if q.closed || q.draining {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, line)
	q.mu.Unlock()
	q.signal()
	return true
}

// Pop removes the oldest line.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	line := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return line, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CloseWhenDrained marks the queue as the connection's last output.
// Lines already queued are still delivered; new pushes are refused.
func (q *Queue) CloseWhenDrained() {
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Close discards anything still queued.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.signal()
}

// Notify fires after a push or a state change. It is edge triggered
// and coalesces, so waiters must re-check Len after waking.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
