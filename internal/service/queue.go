package service

import "sync"

// commandQueue is an unbounded FIFO of commands for the service loop.
//
// The queue is unbounded so a transport goroutine never blocks on enqueue;
// callers wait on their own done channel instead, where they can also
// observe their context. A burst of updates from many generators therefore
// costs memory, not deadlocks.
//
// Transports enqueue from any goroutine; only Run dequeues. The signal
// channel has a buffer of one so repeated enqueues coalesce into a single
// wakeup. Run drains with TryDequeue before waiting again, so a coalesced
// signal never strands a command.
//
// Close is called once from Run's shutdown path. It closes the signal
// channel and hands back whatever was still queued so those callers can be
// failed with ErrStopped rather than left waiting.
type commandQueue struct {
	mu     sync.Mutex
	items  []*command
	closed bool
	signal chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		items:  make([]*command, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends c. It returns false once the queue is closed.
func (q *commandQueue) Enqueue(c *command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, c)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front command without blocking.
func (q *commandQueue) TryDequeue() (*command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	c := q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return c, true
}

// Wait returns a channel that fires when commands may be available.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further commands and returns the ones still queued.
func (q *commandQueue) Close() []*command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	rest := q.items
	q.items = nil
	return rest
}
