package sectioned

import (
	"sync"
)

// Executor runs functions on some execution context. Deliveries to a
// subscriber are always handed to its Executor, never run inline by the
// committing goroutine.
type Executor interface {
	Execute(f func())
}

type ExecutorFunc func(f func())

func (ef ExecutorFunc) Execute(f func()) {
	ef(f)
}

// Goroutines runs each function on a new goroutine.
var Goroutines Executor = ExecutorFunc(func(f func()) { go f() })

// Immediate runs each function synchronously on the calling goroutine.
var Immediate Executor = ExecutorFunc(func(f func()) { f() })

// Queue is a serial executor: functions run one at a time, in submission
// order, on a single goroutine owned by the queue.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
}

func NewQueue() *Queue {
	q := &Queue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *Queue) Execute(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, f)
	q.cond.Signal()
}

// Close stops accepting work. Functions queued before Close still run; use
// Wait to block until they have.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

// Wait blocks until the queue has been closed and drained.
func (q *Queue) Wait() {
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		f := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		f()
	}
}
