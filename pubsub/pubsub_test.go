package pubsub

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testPayload struct {
	n int
}

func (p testPayload) Type() string { return "test" }

func TestRegistryDeliversInSubscriptionOrder(t *testing.T) {
	r := NewRegistry("test", nil)
	var got []string
	r.Subscribe(KindDiff, 0, func(p Payload) { got = append(got, "a") })
	r.Subscribe(KindDiff, 0, func(p Payload) { got = append(got, "b") })
	r.Subscribe(KindCount, 0, func(p Payload) { got = append(got, "count") })
	r.Publish(KindDiff, 1, testPayload{1})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got deliveries %v want [a b]", got)
	}
	if r.Len(KindDiff) != 2 || r.Len(KindCount) != 1 || r.Len(KindState) != 0 {
		t.Fatalf("bad Len values")
	}
}

func TestRegistryUnsubscribeDuringDelivery(t *testing.T) {
	r := NewRegistry("test", nil)
	counts := make([]int, 3)
	var handles [3]Handle
	// the first subscriber removes itself and the last subscriber
	handles[0] = r.Subscribe(KindItems, 0, func(p Payload) {
		counts[0]++
		r.Unsubscribe(handles[0])
		r.Unsubscribe(handles[2])
	})
	handles[1] = r.Subscribe(KindItems, 0, func(p Payload) {
		counts[1]++
	})
	handles[2] = r.Subscribe(KindItems, 0, func(p Payload) {
		counts[2]++
	})
	r.Publish(KindItems, 1, testPayload{1})
	r.Publish(KindItems, 2, testPayload{2})
	if counts[0] != 1 {
		t.Errorf("self-unsubscribed subscriber got %d deliveries, want 1", counts[0])
	}
	if counts[1] != 2 {
		t.Errorf("untouched subscriber got %d deliveries, want 2", counts[1])
	}
	if counts[2] != 0 {
		t.Errorf("subscriber removed before its turn got %d deliveries, want 0", counts[2])
	}
	if r.Unsubscribe(handles[0]) {
		t.Errorf("Unsubscribe twice returned true")
	}
}

func TestRegistrySkipsPayloadsBeforeSubscription(t *testing.T) {
	r := NewRegistry("test", nil)
	var got []int
	r.Subscribe(KindDiff, 5, func(p Payload) { got = append(got, p.(testPayload).n) })
	for seq := uint64(4); seq <= 7; seq++ {
		r.Publish(KindDiff, seq, testPayload{int(seq)})
	}
	if len(got) != 2 || got[0] != 6 || got[1] != 7 {
		t.Fatalf("got %v want [6 7]", got)
	}
}

func TestRegistryRecoversPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "test")
	if err != nil {
		t.Fatalf("NewMetrics: %s", err)
	}
	r := NewRegistry("test", m)
	delivered := 0
	r.Subscribe(KindDiff, 0, func(p Payload) { panic("host bug") })
	r.Subscribe(KindDiff, 0, func(p Payload) { delivered++ })
	r.Publish(KindDiff, 1, testPayload{1})
	if delivered != 1 {
		t.Fatalf("subscriber after a panicking one got %d deliveries, want 1", delivered)
	}
	if got := testutil.ToFloat64(m.panicCounter.WithLabelValues("test")); got != 1 {
		t.Fatalf("panic counter = %v want 1", got)
	}
	if got := testutil.ToFloat64(m.deliveredCounter.WithLabelValues("test")); got != 1 {
		t.Fatalf("delivered counter = %v want 1", got)
	}
	// registering again reuses the collectors
	m2, err := NewMetrics(reg, "test")
	if err != nil {
		t.Fatalf("NewMetrics twice: %s", err)
	}
	if m2.deliveredCounter != m.deliveredCounter {
		t.Fatalf("NewMetrics twice did not reuse the collector")
	}
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue(false)
	defer q.Close()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 1000; i++ {
		i := i
		q.Push(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Flush()
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1000 {
		t.Fatalf("got %d deliveries after Flush, want 1000", len(got))
	}
	for i := range got {
		if got[i] != i {
			t.Fatalf("delivery %d was work item %d", i, got[i])
		}
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue(false)
	block := make(chan struct{})
	ran := 0
	q.Push(func() { <-block })
	q.Push(func() { ran++ })
	q.Push(func() { ran++ })
	close(block)
	q.Close()
	if ran != 2 {
		t.Fatalf("Close returned before queued work ran: ran=%d", ran)
	}
	// dropped after close
	q.Push(func() { ran++ })
	q.Flush()
	if ran != 2 {
		t.Fatalf("work pushed after Close ran")
	}
}

func TestQueueInline(t *testing.T) {
	q := NewQueue(true)
	ran := false
	q.Push(func() { ran = true })
	if !ran {
		t.Fatalf("inline queue did not run work on Push")
	}
	q.Flush()
	q.Close()
}
