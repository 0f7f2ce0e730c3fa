package pubsub

import (
	"sync"
)

// Queue delivers notifications for one store on a dedicated goroutine, in the order they were
// pushed. Pushing never blocks on subscribers: the queue is unbounded, so a slow host callback
// delays later notifications of the same store but never the mutation path.
//
// An inline queue runs pushed work on the pushing goroutine instead. Order guarantees are the
// same, but callbacks then run while the store's apply lock is held and must not apply diffs to
// the same store.
type Queue struct {
	inline bool

	mu      sync.Mutex
	cond    *sync.Cond
	work    []func()
	pending int // queued + running
	closed  bool
	done    chan struct{}
}

func NewQueue(inline bool) *Queue {
	q := &Queue{
		inline: inline,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	if inline {
		close(q.done)
	} else {
		go q.loop()
	}
	return q
}

// Push work onto the queue. Work pushed after Close is dropped.
func (q *Queue) Push(fn func()) {
	if q.inline {
		fn()
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.work = append(q.work, fn)
	q.pending++
	q.cond.Broadcast()
}

// Flush blocks until everything pushed prior to this call has been delivered.
func (q *Queue) Flush() {
	if q.inline {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.cond.Wait()
	}
}

// Close stops the queue once already queued work is delivered. Blocks until then.
// Must not be called from inside pushed work.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.work) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.work) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.work
		q.work = nil
		q.mu.Unlock()

		for _, fn := range batch {
			fn()
			q.mu.Lock()
			q.pending--
			if q.pending == 0 {
				q.cond.Broadcast()
			}
			q.mu.Unlock()
		}
	}
}
