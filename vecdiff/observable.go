package vecdiff

import (
	"sync"

	"github.com/matrix-org/sliding-sync-client/pubsub"
)

// DiffPayload is delivered to diff observers.
type DiffPayload[T any] struct {
	Applied[T]
}

func (DiffPayload[T]) Type() string { return "diff" }

// CountPayload is delivered to count observers when the length changed.
type CountPayload struct {
	Len int
}

func (CountPayload) Type() string { return "count" }

// ItemsPayload is delivered to item observers on every applied diff.
type ItemsPayload struct{}

func (ItemsPayload) Type() string { return "items" }

type Config struct {
	// Name used in logs and in error messages e.g the list name or room ID.
	Name string
	// Accept Move diffs.
	AllowMove bool
	// Deliver notifications on the applying goroutine rather than on a dedicated one.
	Inline bool
	// Optional delivery metrics.
	Metrics *pubsub.Metrics
}

// Observable is a Store which tells its observers about every applied diff. It is the only way
// lists and timelines are mutated.
//
// Applies are serialized: at most one diff is applied at a time, and notifications are queued in
// the same order the diffs were applied, after the mutation is visible to readers.
type Observable[T any] struct {
	name     string
	store    *Store[T]
	registry *pubsub.Registry
	queue    *pubsub.Queue

	// applyMu serializes applies and guards seq
	applyMu sync.Mutex
	seq     uint64
}

func NewObservable[T any](cfg Config) *Observable[T] {
	var opts []Option
	if cfg.AllowMove {
		opts = append(opts, WithMove())
	}
	return &Observable[T]{
		name:     cfg.Name,
		store:    NewStore[T](opts...),
		registry: pubsub.NewRegistry(cfg.Name, cfg.Metrics),
		queue:    pubsub.NewQueue(cfg.Inline),
	}
}

func (o *Observable[T]) Name() string {
	return o.name
}

func (o *Observable[T]) Len() int {
	return o.store.Len()
}

func (o *Observable[T]) Get(i int) (T, bool) {
	return o.store.Get(i)
}

func (o *Observable[T]) Items() []T {
	return o.store.Items()
}

// Apply one diff. A rejected diff changes nothing and notifies nobody.
func (o *Observable[T]) Apply(d Diff[T]) (Applied[T], error) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	return o.apply(d)
}

// ApplyBatch applies diffs back to back without any other diff being applied in between. It
// stops at the first rejected diff and returns it; diffs before it stay applied.
func (o *Observable[T]) ApplyBatch(diffs []Diff[T]) ([]Applied[T], error) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	applied := make([]Applied[T], 0, len(diffs))
	for _, d := range diffs {
		a, err := o.apply(d)
		if err != nil {
			return applied, err
		}
		applied = append(applied, a)
	}
	return applied, nil
}

func (o *Observable[T]) apply(d Diff[T]) (Applied[T], error) {
	applied, err := o.store.Apply(d)
	if err != nil {
		return applied, err
	}
	o.seq++
	seq := o.seq
	o.queue.Push(func() {
		o.registry.Publish(pubsub.KindDiff, seq, DiffPayload[T]{applied})
		if applied.LenChanged() {
			o.registry.Publish(pubsub.KindCount, seq, CountPayload{Len: applied.Len})
		}
		o.registry.Publish(pubsub.KindItems, seq, ItemsPayload{})
	})
	return applied, nil
}

// Notify queues a payload for observers of this kind, ordered with respect to applied diffs.
func (o *Observable[T]) Notify(kind pubsub.Kind, p pubsub.Payload) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	o.seq++
	seq := o.seq
	o.queue.Push(func() {
		o.registry.Publish(kind, seq, p)
	})
}

// Do runs fn while holding the apply lock, so no diff is applied while fn runs. fn must not
// call back into this Observable.
func (o *Observable[T]) Do(fn func(items []T)) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	fn(o.store.Items())
}

// Subscribe fn to payloads of the given kind. Only payloads queued after this call are
// delivered.
func (o *Observable[T]) Subscribe(kind pubsub.Kind, fn func(pubsub.Payload)) pubsub.Handle {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	return o.registry.Subscribe(kind, o.seq, fn)
}

// SubscribeDiffs returns the current content together with a subscription which receives every
// diff applied after that content.
func (o *Observable[T]) SubscribeDiffs(fn func(Applied[T])) ([]T, pubsub.Handle) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()
	h := o.registry.Subscribe(pubsub.KindDiff, o.seq, func(p pubsub.Payload) {
		fn(p.(DiffPayload[T]).Applied)
	})
	return o.store.Items(), h
}

// SubscribeCount delivers the new length whenever it changes.
func (o *Observable[T]) SubscribeCount(fn func(n int)) pubsub.Handle {
	return o.Subscribe(pubsub.KindCount, func(p pubsub.Payload) {
		fn(p.(CountPayload).Len)
	})
}

// SubscribeItems is called on every applied diff.
func (o *Observable[T]) SubscribeItems(fn func()) pubsub.Handle {
	return o.Subscribe(pubsub.KindItems, func(p pubsub.Payload) {
		fn()
	})
}

// Unsubscribe is safe to call from inside a callback.
func (o *Observable[T]) Unsubscribe(h pubsub.Handle) bool {
	return o.registry.Unsubscribe(h)
}

// Flush blocks until observers have received every notification queued so far.
func (o *Observable[T]) Flush() {
	o.queue.Flush()
}

// Close delivers outstanding notifications then stops the delivery goroutine.
func (o *Observable[T]) Close() {
	o.queue.Close()
}
