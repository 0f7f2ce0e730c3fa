package pubsub

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Every payload needs a type to distinguish what kind of update it is.
type Payload interface {
	Type() string
}

// Kind is the class of observer a payload is delivered to. Each store keeps an independent
// subscriber set per kind.
type Kind uint8

const (
	// Receives the exact diff applied.
	KindDiff Kind = iota
	// Receives the new length, only when the length changed.
	KindCount
	// Receives a coarse "something changed" signal on every successful diff.
	KindItems
	// Receives the new list state on each transition.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindDiff:
		return "diff"
	case KindCount:
		return "count"
	case KindItems:
		return "items"
	case KindState:
		return "state"
	}
	return "unknown"
}

// Handle identifies one subscription. Handles are unique across all registries in the process.
type Handle uint64

var nextHandle uint64

type subscription struct {
	handle Handle
	kind   Kind
	// payloads with a sequence number <= after are not delivered to this subscription
	after  uint64
	fn     func(Payload)
	active atomic.Bool
}

// Registry holds the subscribers of one store. Delivery iterates a copy-on-write snapshot of
// the subscriber list, so Subscribe and Unsubscribe may be called from inside a callback.
type Registry struct {
	name     string
	mu       sync.Mutex
	subs     map[Kind][]*subscription
	byHandle map[Handle]*subscription
	metrics  *Metrics
}

func NewRegistry(name string, metrics *Metrics) *Registry {
	return &Registry{
		name:     name,
		subs:     make(map[Kind][]*subscription),
		byHandle: make(map[Handle]*subscription),
		metrics:  metrics,
	}
}

// Subscribe fn to payloads of this kind. fn is only called for payloads published with a
// sequence number greater than after.
func (r *Registry) Subscribe(kind Kind, after uint64, fn func(Payload)) Handle {
	sub := &subscription{
		handle: Handle(atomic.AddUint64(&nextHandle, 1)),
		kind:   kind,
		after:  after,
		fn:     fn,
	}
	sub.active.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.subs[kind]
	next := make([]*subscription, len(existing), len(existing)+1)
	copy(next, existing)
	r.subs[kind] = append(next, sub)
	r.byHandle[sub.handle] = sub
	return sub.handle
}

// Unsubscribe the given handle. Returns false if the handle is unknown or was already removed.
// Once this returns, fn will not be called again for this handle, unless it is being called
// right now on another goroutine.
func (r *Registry) Unsubscribe(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byHandle[h]
	if !ok {
		return false
	}
	sub.active.Store(false)
	delete(r.byHandle, h)
	existing := r.subs[sub.kind]
	next := make([]*subscription, 0, len(existing))
	for _, s := range existing {
		if s.handle != h {
			next = append(next, s)
		}
	}
	r.subs[sub.kind] = next
	return true
}

// Len returns the number of subscribers for this kind.
func (r *Registry) Len(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[kind])
}

// Publish delivers p to every active subscriber of this kind, in subscription order, on the
// calling goroutine. Panicking subscribers are recovered and reported, and delivery carries on.
func (r *Registry) Publish(kind Kind, seq uint64, p Payload) {
	r.mu.Lock()
	subs := r.subs[kind]
	r.mu.Unlock()
	for _, sub := range subs {
		if !sub.active.Load() || seq <= sub.after {
			continue
		}
		r.deliver(sub, p)
	}
}

func (r *Registry) deliver(sub *subscription, p Payload) {
	defer func() {
		if err := recover(); err != nil {
			logger.Error().Str("store", r.name).Str("kind", sub.kind.String()).Interface("panic", err).Msg(
				"subscriber panicked, continuing delivery",
			)
			internal.ReportPanic(context.Background(), r.name+"/"+sub.kind.String(), err)
			r.metrics.panicked(p)
		}
	}()
	sub.fn(p)
	r.metrics.delivered(p)
}
