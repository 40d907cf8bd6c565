// Package ingress implements the pending-operations queue: the FIFO of
// command strings submitted locally but not yet decided, drained head-first
// by the consensus loop.
//
// Generalized from Peer.updated's single-slot "one message at a time"
// channel into a mutex+condition-variable-guarded FIFO.
package ingress

import (
	"sync"

	"github.com/google/uuid"
)

// Command is one pending operator command: the raw text to enqueue into
// consensus, tagged with a UID for logging/dedup purposes only -- the UID is
// never part of replicated state.
type Command struct {
	ID   string
	Text string
}

// Queue is the per-node FIFO of pending commands.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  []Command
	closed   bool
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a new command string to the tail of the queue and wakes any
// waiter blocked in WaitNonEmpty.
func (q *Queue) Push(text string) Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd := Command{ID: uuid.NewString(), Text: text}
	q.pending = append(q.pending, cmd)
	q.cond.Broadcast()
	return cmd
}

// WaitNonEmpty blocks until the queue is non-empty or Close is called, then
// returns whether the queue is non-empty (false means the queue was closed
// while empty, and the caller's loop should exit).
func (q *Queue) WaitNonEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	return len(q.pending) > 0
}

// Peek returns the head command without removing it, and whether one exists.
func (q *Queue) Peek() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Command{}, false
	}
	return q.pending[0], true
}

// Pop removes the head command. Called both when a command is successfully
// decided and when the proposer gives up on it after an unrecoverable
// timeout.
func (q *Queue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return
	}
	q.pending = q.pending[1:]
}

// Len reports the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close unblocks any goroutine parked in WaitNonEmpty, used on node shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
