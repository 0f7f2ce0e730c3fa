package internal

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Test basic functions of WorkerPool
func TestWorkerPool(t *testing.T) {
	wp := NewWorkerPool(2)
	wp.Start()
	defer wp.Stop()

	// we should process this concurrently as N=2 so it should take 1s not 2s
	var wg sync.WaitGroup
	wg.Add(2)
	start := time.Now()
	wp.Queue(func() {
		time.Sleep(time.Second)
		wg.Done()
	})
	wp.Queue(func() {
		time.Sleep(time.Second)
		wg.Done()
	})
	wg.Wait()
	took := time.Since(start)
	if took > 2*time.Second {
		t.Fatalf("took %v for queued work, it should have been faster than 2s", took)
	}
}

func TestWorkerPoolDoesWorkPriorToStart(t *testing.T) {
	wp := NewWorkerPool(2)

	// return channel to use to see when work is done
	ch := make(chan int, 2)
	wp.Queue(func() {
		ch <- 1
	})
	wp.Queue(func() {
		ch <- 2
	})

	// the work should not be done yet
	time.Sleep(100 * time.Millisecond)
	if len(ch) > 0 {
		t.Fatalf("Queued work was done before Start()")
	}

	// the work should be starting now
	wp.Start()
	defer wp.Stop()

	sum := 0
	for sum != 3 {
		select {
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for work to be done")
		case val := <-ch:
			sum += val
		}
	}
}

func TestWorkerPoolRunWaitsForAllWork(t *testing.T) {
	wp := NewWorkerPool(3)
	wp.Start()
	defer wp.Stop()

	var done int64
	fns := make([]func(), 10)
	for i := range fns {
		fns[i] = func() {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&done, 1)
		}
	}
	wp.Run(fns...)
	if got := atomic.LoadInt64(&done); got != 10 {
		t.Fatalf("Run returned after %d/10 work items", got)
	}
	// no work at all returns immediately
	wp.Run()
}

func TestWorkerPoolClampsSize(t *testing.T) {
	wp := NewWorkerPool(0)
	if wp.N != 1 {
		t.Fatalf("NewWorkerPool(0).N = %d, want 1", wp.N)
	}
}
