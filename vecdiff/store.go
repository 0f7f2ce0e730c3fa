package vecdiff

import (
	"fmt"
	"sync"

	"github.com/matrix-org/sliding-sync-client/internal"
)

// Applied describes a successfully applied diff.
type Applied[T any] struct {
	// The diff as it was applied. Slices inside are owned by the store's notification and
	// never alias the caller's input.
	Diff    Diff[T]
	PrevLen int
	Len     int
}

// LenChanged returns true if the diff changed the length of the store.
func (a Applied[T]) LenChanged() bool {
	return a.PrevLen != a.Len
}

type Option func(*config)

type config struct {
	allowMove bool
}

// WithMove lets the store accept Move diffs.
func WithMove() Option {
	return func(c *config) {
		c.allowMove = true
	}
}

// Store is an ordered positional container. All mutation goes through Apply, which either
// applies a diff in full or leaves the store untouched.
type Store[T any] struct {
	mu        sync.RWMutex
	items     []T
	allowMove bool
}

func NewStore[T any](opts ...Option) *Store[T] {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return &Store[T]{
		allowMove: c.allowMove,
	}
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the entry at i, and false if i is out of bounds.
func (s *Store[T]) Get(i int) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.items) {
		var zero T
		return zero, false
	}
	return s.items[i], true
}

// Items returns a copy of every entry.
func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

// Apply validates d against the current content and applies it. On error the store is unchanged
// and the error has the kind IndexOutOfBounds, EmptyStore or UnsupportedDiff.
func (s *Store[T]) Apply(d Diff[T]) (Applied[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevLen := len(s.items)
	if err := s.check(d, prevLen); err != nil {
		return Applied[T]{}, err
	}
	applied := s.mutate(d)
	return Applied[T]{
		Diff:    applied,
		PrevLen: prevLen,
		Len:     len(s.items),
	}, nil
}

func (s *Store[T]) check(d Diff[T], n int) error {
	switch d := d.(type) {
	case Append[T], PushBack[T], PushFront[T], Clear[T], Reset[T]:
		return nil
	case Insert[T]:
		if d.Index < 0 || d.Index > n {
			return outOfBounds[T](d, d.Index, n)
		}
	case Set[T]:
		if d.Index < 0 || d.Index >= n {
			return outOfBounds[T](d, d.Index, n)
		}
	case Remove[T]:
		if n == 0 {
			return emptyStore[T](d)
		}
		if d.Index < 0 || d.Index >= n {
			return outOfBounds[T](d, d.Index, n)
		}
	case PopBack[T], PopFront[T]:
		if n == 0 {
			return emptyStore[T](d)
		}
	case Move[T]:
		if !s.allowMove {
			return internal.NewError(internal.KindUnsupportedDiff, nil, "store does not accept %s", d.Op())
		}
		if n == 0 {
			return emptyStore[T](d)
		}
		if d.OldIndex < 0 || d.OldIndex >= n {
			return outOfBounds[T](d, d.OldIndex, n)
		}
		if d.NewIndex < 0 || d.NewIndex >= n {
			return outOfBounds[T](d, d.NewIndex, n)
		}
	default:
		internal.Assert(fmt.Sprintf("unknown diff variant %T", d), false)
		return internal.NewError(internal.KindUnsupportedDiff, nil, "unknown diff variant %T", d)
	}
	return nil
}

// mutate applies an already checked diff and returns the diff to report to observers.
func (s *Store[T]) mutate(d Diff[T]) Diff[T] {
	switch d := d.(type) {
	case Append[T]:
		values := clone(d.Values)
		s.items = append(s.items, values...)
		return Append[T]{Values: values}
	case Insert[T]:
		var zero T
		s.items = append(s.items, zero)
		copy(s.items[d.Index+1:], s.items[d.Index:])
		s.items[d.Index] = d.Value
	case Set[T]:
		s.items[d.Index] = d.Value
	case Remove[T]:
		s.items = removeAt(s.items, d.Index)
	case PushBack[T]:
		s.items = append(s.items, d.Value)
	case PushFront[T]:
		var zero T
		s.items = append(s.items, zero)
		copy(s.items[1:], s.items)
		s.items[0] = d.Value
	case PopBack[T]:
		s.items = removeAt(s.items, len(s.items)-1)
	case PopFront[T]:
		s.items = removeAt(s.items, 0)
	case Clear[T]:
		s.items = nil
	case Reset[T]:
		values := clone(d.Values)
		s.items = clone(values)
		return Reset[T]{Values: values}
	case Move[T]:
		v := s.items[d.OldIndex]
		s.items = removeAt(s.items, d.OldIndex)
		s.items = append(s.items, v)
		copy(s.items[d.NewIndex+1:], s.items[d.NewIndex:])
		s.items[d.NewIndex] = v
	}
	return d
}

// removeAt removes index i, zeroing the vacated tail slot so the store does not pin it.
func removeAt[T any](items []T, i int) []T {
	copy(items[i:], items[i+1:])
	var zero T
	items[len(items)-1] = zero
	return items[:len(items)-1]
}

func clone[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func outOfBounds[T any](d Diff[T], index, n int) error {
	return internal.NewError(internal.KindIndexOutOfBounds, nil, "%s index %d, length %d", d.Op(), index, n)
}

func emptyStore[T any](d Diff[T]) error {
	return internal.NewError(internal.KindEmptyStore, nil, "%s on empty store", d.Op())
}
