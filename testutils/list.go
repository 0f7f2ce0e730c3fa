package testutils

import "math/rand"

// MoveRandomElement moves a random element of before, which must not be empty. It returns a new
// slice with the element moved, the element, and the indexes it was moved from and to, such that
// removing fromIndex then inserting at toIndex turns before into after.
func MoveRandomElement[T any](before []T) (after []T, item T, fromIndex, toIndex int) {
	fromIndex = rand.Intn(len(before))
	toIndex = rand.Intn(len(before))
	item = before[fromIndex]
	after = make([]T, 0, len(before))
	after = append(after, before[:fromIndex]...)
	after = append(after, before[fromIndex+1:]...)
	after = append(after[:toIndex], append([]T{item}, after[toIndex:]...)...)
	return
}
