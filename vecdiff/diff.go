// Package vecdiff implements an ordered positional store driven by diffs, and the serialized
// apply path which notifies observers of every applied diff in application order.
package vecdiff

// Diff is one positional mutation of a Store. The set of variants is closed: only the types in
// this file implement Diff.
type Diff[T any] interface {
	// Op returns the name of the variant e.g "Insert".
	Op() string
	isDiff()
}

// Append values to the end of the store.
type Append[T any] struct {
	Values []T
}

// Insert value at Index, shifting later entries right. Unlike Set and Remove, Index may equal
// the length, which appends.
type Insert[T any] struct {
	Index int
	Value T
}

// Set replaces the entry at Index.
type Set[T any] struct {
	Index int
	Value T
}

// Remove the entry at Index, shifting later entries left.
type Remove[T any] struct {
	Index int
}

type PushBack[T any] struct {
	Value T
}

type PushFront[T any] struct {
	Value T
}

type PopBack[T any] struct{}

type PopFront[T any] struct{}

// Clear removes every entry.
type Clear[T any] struct{}

// Reset replaces the whole content of the store with Values.
type Reset[T any] struct {
	Values []T
}

// Move the entry at OldIndex so that it ends up at NewIndex. Only accepted by stores created
// WithMove.
type Move[T any] struct {
	OldIndex int
	NewIndex int
}

func (Append[T]) Op() string    { return "Append" }
func (Insert[T]) Op() string    { return "Insert" }
func (Set[T]) Op() string       { return "Set" }
func (Remove[T]) Op() string    { return "Remove" }
func (PushBack[T]) Op() string  { return "PushBack" }
func (PushFront[T]) Op() string { return "PushFront" }
func (PopBack[T]) Op() string   { return "PopBack" }
func (PopFront[T]) Op() string  { return "PopFront" }
func (Clear[T]) Op() string     { return "Clear" }
func (Reset[T]) Op() string     { return "Reset" }
func (Move[T]) Op() string      { return "Move" }

func (Append[T]) isDiff()    {}
func (Insert[T]) isDiff()    {}
func (Set[T]) isDiff()       {}
func (Remove[T]) isDiff()    {}
func (PushBack[T]) isDiff()  {}
func (PushFront[T]) isDiff() {}
func (PopBack[T]) isDiff()   {}
func (PopFront[T]) isDiff()  {}
func (Clear[T]) isDiff()     {}
func (Reset[T]) isDiff()     {}
func (Move[T]) isDiff()      {}
