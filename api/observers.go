package api

import (
	"sync"

	"github.com/matrix-org/sliding-sync-client/pubsub"
	"github.com/matrix-org/sliding-sync-client/roomlist"
	"github.com/matrix-org/sliding-sync-client/timeline"
	"github.com/matrix-org/sliding-sync-client/vecdiff"
)

// Observers are implemented by the host. Every call is independent: the engine never waits for
// one and ignores panics. Calls for one list or timeline arrive in the order the changes happened.

type RoomListObserver interface {
	DidReceiveDiff(diff vecdiff.Diff[roomlist.Entry])
}

type StateObserver interface {
	DidReceiveState(state roomlist.State)
}

type CountObserver interface {
	DidReceiveCount(count int)
}

// ItemsObserver is told that something changed, without saying what.
type ItemsObserver interface {
	DidChange()
}

type TimelineObserver interface {
	DidReceiveDiff(diff vecdiff.Diff[timeline.Item])
}

// TaskHandle ends a subscription.
type TaskHandle struct {
	once   sync.Once
	cancel func() bool
}

// Cancel is safe to call more than once, and from inside the observer.
func (h *TaskHandle) Cancel() {
	h.once.Do(func() {
		h.cancel()
	})
}

// SubscribeRoomList returns the current entries and observes every later diff.
func SubscribeRoomList(l *roomlist.List, o RoomListObserver) ([]roomlist.Entry, *TaskHandle) {
	entries, h := l.SubscribeEntries(func(a vecdiff.Applied[roomlist.Entry]) {
		o.DidReceiveDiff(a.Diff)
	})
	return entries, listHandle(l, h)
}

// SubscribeRoomListState returns the current state and observes every later transition.
func SubscribeRoomListState(l *roomlist.List, o StateObserver) (roomlist.State, *TaskHandle) {
	state, h := l.SubscribeState(o.DidReceiveState)
	return state, listHandle(l, h)
}

// SubscribeRoomListCount observes the number of entries when it changes.
func SubscribeRoomListCount(l *roomlist.List, o CountObserver) *TaskHandle {
	return listHandle(l, l.SubscribeCount(o.DidReceiveCount))
}

func SubscribeRoomListItems(l *roomlist.List, o ItemsObserver) *TaskHandle {
	return listHandle(l, l.SubscribeItems(o.DidChange))
}

// SubscribeTimeline returns the current items and observes every later diff.
func SubscribeTimeline(t *timeline.Timeline, o TimelineObserver) ([]timeline.Item, *TaskHandle) {
	items, h := t.SubscribeDiffs(func(a vecdiff.Applied[timeline.Item]) {
		o.DidReceiveDiff(a.Diff)
	})
	return items, &TaskHandle{cancel: func() bool { return t.Unsubscribe(h) }}
}

func SubscribeTimelineCount(t *timeline.Timeline, o CountObserver) *TaskHandle {
	h := t.SubscribeCount(o.DidReceiveCount)
	return &TaskHandle{cancel: func() bool { return t.Unsubscribe(h) }}
}

func listHandle(l *roomlist.List, h pubsub.Handle) *TaskHandle {
	return &TaskHandle{cancel: func() bool { return l.Unsubscribe(h) }}
}
