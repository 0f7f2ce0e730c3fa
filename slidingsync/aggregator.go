package slidingsync

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// UpdateSummary lists what changed during one sync cycle. Both slices are sorted and contain no
// duplicates.
type UpdateSummary struct {
	Lists []string
	Rooms []string
}

// Empty returns true if nothing changed.
func (u UpdateSummary) Empty() bool {
	return len(u.Lists) == 0 && len(u.Rooms) == 0
}

// Aggregator collects the lists and rooms touched during a sync cycle. It is safe for concurrent
// use, since lists and rooms of one cycle are processed in parallel.
type Aggregator struct {
	mu    sync.Mutex
	lists map[string]struct{}
	rooms map[string]struct{}
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		lists: make(map[string]struct{}),
		rooms: make(map[string]struct{}),
	}
}

func (a *Aggregator) TouchList(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lists[name] = struct{}{}
}

func (a *Aggregator) TouchRoom(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rooms[roomID] = struct{}{}
}

// Emit returns everything touched since the last Emit and starts a new cycle.
func (a *Aggregator) Emit() UpdateSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	summary := UpdateSummary{
		Lists: maps.Keys(a.lists),
		Rooms: maps.Keys(a.rooms),
	}
	slices.Sort(summary.Lists)
	slices.Sort(summary.Rooms)
	a.lists = make(map[string]struct{})
	a.rooms = make(map[string]struct{})
	return summary
}
