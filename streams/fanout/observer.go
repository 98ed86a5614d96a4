package fanout

import (
	"sync"

	"github.com/google/uuid"

	"github.com/imtaco/stream-coordinator/streams"
)

// Queue is an Observer backed by a bounded channel. Transports drain C() and
// stop when Done() is closed.
type Queue struct {
	id        string
	streamID  string
	ch        chan streams.Update
	done      chan struct{}
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func NewQueue(streamID string, size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		id:       uuid.NewString(),
		streamID: streamID,
		ch:       make(chan streams.Update, size),
		done:     make(chan struct{}),
	}
}

func (q *Queue) ID() string       { return q.id }
func (q *Queue) StreamID() string { return q.streamID }

func (q *Queue) C() <-chan streams.Update { return q.ch }
func (q *Queue) Done() <-chan struct{}    { return q.done }

// Enqueue never blocks. It returns false when the queue is full or closed.
func (q *Queue) Enqueue(update streams.Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- update:
		return true
	default:
		return false
	}
}

// Close is idempotent. Buffered updates stay readable from C().
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}
