// Package roomlist materializes one sliding sync list: a window of rooms the server keeps
// sorted, described to the client as positional operations.
package roomlist

import "fmt"

// Entry is one slot of a room list. It is one of Empty, Invalidated or Filled.
type Entry interface {
	fmt.Stringer
	isEntry()
}

// Empty is a slot the server has counted but never told us about.
type Empty struct{}

// Invalidated is a slot whose room was known but may no longer be at this position.
type Invalidated struct {
	RoomID string
}

// Filled is a slot whose room is known and up to date.
type Filled struct {
	RoomID string
}

func (Empty) isEntry()       {}
func (Invalidated) isEntry() {}
func (Filled) isEntry()      {}

func (Empty) String() string         { return "Empty" }
func (e Invalidated) String() string { return "Invalidated(" + e.RoomID + ")" }
func (e Filled) String() string      { return "Filled(" + e.RoomID + ")" }

// RoomIDOf returns the room ID of the entry, if it has one.
func RoomIDOf(e Entry) (string, bool) {
	switch e := e.(type) {
	case Filled:
		return e.RoomID, true
	case Invalidated:
		return e.RoomID, true
	}
	return "", false
}
