package internal

import "sync"

type WorkerPool struct {
	N  int
	ch chan func()
}

// Create a new worker pool of size N. Up to N work can be done concurrently.
// The engine uses this to process independent lists and timelines of a single sync cycle in
// parallel. Work for the same store must never be split across two queued functions, as the
// pool gives no ordering guarantees between them.
//
// The channel buffer is N, so once N work is in flight and N more is queued, Queue blocks
// until a worker frees up.
func NewWorkerPool(n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	return &WorkerPool{
		N:  n,
		ch: make(chan func(), n),
	}
}

// Start the workers. Only call this once.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.N; i++ {
		go wp.worker()
	}
}

// Stop the worker pool. Only call this once, and never while Queue or Run may still be called.
func (wp *WorkerPool) Stop() {
	close(wp.ch)
}

// Queue some work on the pool. May or may not block until some work is processed.
func (wp *WorkerPool) Queue(fn func()) {
	wp.ch <- fn
}

// Run queues every fn and blocks until all of them have returned. Must not be called from
// inside work running on this pool, else the pool can deadlock on itself.
func (wp *WorkerPool) Run(fns ...func()) {
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		fn := fn
		wp.Queue(func() {
			defer wg.Done()
			fn()
		})
	}
	wg.Wait()
}

// worker impl
func (wp *WorkerPool) worker() {
	for fn := range wp.ch {
		fn()
	}
}
