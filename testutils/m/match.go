// Package m has matchers for the client side state of a sliding sync session. Each matcher
// returns an error describing the first mismatch.
package m

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/matrix-org/sliding-sync-client/roomlist"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/timeline"
)

type ListMatcher func(l *roomlist.List) error
type TimelineMatcher func(tl *timeline.Timeline) error
type RequestMatcher func(req *sync3.Request) error

func MatchState(want roomlist.State) ListMatcher {
	return func(l *roomlist.List) error {
		if got := l.State(); got != want {
			return fmt.Errorf("MatchState: got %s want %s", got, want)
		}
		return nil
	}
}

// MatchCount checks the number of rooms the server says the list has.
func MatchCount(want int) ListMatcher {
	return func(l *roomlist.List) error {
		got, known := l.Count()
		if !known {
			return fmt.Errorf("MatchCount: count is not known yet")
		}
		if got != want {
			return fmt.Errorf("MatchCount: got %d want %d", got, want)
		}
		return nil
	}
}

// MatchEntries checks the kind of every entry: E for Empty, I for Invalidated, F for Filled.
func MatchEntries(pattern string) ListMatcher {
	return func(l *roomlist.List) error {
		var sb strings.Builder
		for _, e := range l.Entries() {
			switch e.(type) {
			case roomlist.Empty:
				sb.WriteByte('E')
			case roomlist.Invalidated:
				sb.WriteByte('I')
			case roomlist.Filled:
				sb.WriteByte('F')
			}
		}
		if got := sb.String(); got != pattern {
			return fmt.Errorf("MatchEntries: got %s want %s", got, pattern)
		}
		return nil
	}
}

// MatchRoomIDs checks the room IDs of the entries, "" for Empty.
func MatchRoomIDs(want []string) ListMatcher {
	return func(l *roomlist.List) error {
		entries := l.Entries()
		got := make([]string, len(entries))
		for i, e := range entries {
			got[i], _ = roomlist.RoomIDOf(e)
		}
		if !reflect.DeepEqual(got, want) {
			return fmt.Errorf("MatchRoomIDs: got %v want %v", got, want)
		}
		return nil
	}
}

// MatchFilledAnyOrder checks which rooms are Filled, ignoring their position.
func MatchFilledAnyOrder(want []string) ListMatcher {
	return func(l *roomlist.List) error {
		var got []string
		for _, e := range l.Entries() {
			if f, ok := e.(roomlist.Filled); ok {
				got = append(got, f.RoomID)
			}
		}
		sort.Strings(got)
		wantSorted := append([]string(nil), want...)
		sort.Strings(wantSorted)
		if len(got) != len(wantSorted) || (len(got) > 0 && !reflect.DeepEqual(got, wantSorted)) {
			return fmt.Errorf("MatchFilledAnyOrder: got %v want %v", got, wantSorted)
		}
		return nil
	}
}

func MatchTimelineEventIDs(want []string) TimelineMatcher {
	return func(tl *timeline.Timeline) error {
		items := tl.Items()
		got := make([]string, len(items))
		for i := range items {
			got[i] = items[i].EventID
		}
		if !reflect.DeepEqual(got, want) {
			return fmt.Errorf("MatchTimelineEventIDs: got %v want %v", got, want)
		}
		return nil
	}
}

// MatchTimelineMostRecent checks the last n items of the timeline.
func MatchTimelineMostRecent(n int, events []json.RawMessage) TimelineMatcher {
	return func(tl *timeline.Timeline) error {
		items := tl.Items()
		if len(items) < n || len(events) < n {
			return fmt.Errorf("MatchTimelineMostRecent: timeline has %d items and %d events were given, want %d", len(items), len(events), n)
		}
		items = items[len(items)-n:]
		events = events[len(events)-n:]
		for i := range items {
			want, err := timeline.NewItem(events[i])
			if err != nil {
				return fmt.Errorf("MatchTimelineMostRecent: event %d: %s", i, err)
			}
			if items[i].EventID != want.EventID {
				return fmt.Errorf("MatchTimelineMostRecent: item %d got %s want %s", i, items[i].EventID, want.EventID)
			}
		}
		return nil
	}
}

func MatchBackToken(want string) TimelineMatcher {
	return func(tl *timeline.Timeline) error {
		if got := tl.BackToken(); got != want {
			return fmt.Errorf("MatchBackToken: got %q want %q", got, want)
		}
		return nil
	}
}

func MatchPos(want string) RequestMatcher {
	return func(req *sync3.Request) error {
		if got := req.Pos(); got != want {
			return fmt.Errorf("MatchPos: got %q want %q", got, want)
		}
		return nil
	}
}

func MatchTimeout(want int) RequestMatcher {
	return func(req *sync3.Request) error {
		if got := req.TimeoutMSecs(); got != want {
			return fmt.Errorf("MatchTimeout: got %d want %d", got, want)
		}
		return nil
	}
}

func MatchRanges(listKey string, want sync3.SliceRanges) RequestMatcher {
	return func(req *sync3.Request) error {
		list, ok := req.Lists[listKey]
		if !ok {
			return fmt.Errorf("MatchRanges: list %s is not in the request", listKey)
		}
		if !reflect.DeepEqual(list.Ranges, want) {
			return fmt.Errorf("MatchRanges: list %s got %v want %v", listKey, list.Ranges, want)
		}
		return nil
	}
}

func MatchRoomSubscribed(roomID string) RequestMatcher {
	return func(req *sync3.Request) error {
		if _, ok := req.RoomSubscriptions[roomID]; !ok {
			return fmt.Errorf("MatchRoomSubscribed: %s not in %v", roomID, req.RoomSubscriptions)
		}
		return nil
	}
}

func MatchUnsubscribed(roomIDs []string) RequestMatcher {
	return func(req *sync3.Request) error {
		if len(req.UnsubscribeRooms) == 0 && len(roomIDs) == 0 {
			return nil
		}
		if !reflect.DeepEqual(req.UnsubscribeRooms, roomIDs) {
			return fmt.Errorf("MatchUnsubscribed: got %v want %v", req.UnsubscribeRooms, roomIDs)
		}
		return nil
	}
}

// LogRequest builds a matcher that always succeeds. As a side-effect, it pretty-prints
// the request to the test log. This is useful when debugging a test.
func LogRequest(t *testing.T) RequestMatcher {
	return func(req *sync3.Request) error {
		dump, _ := json.MarshalIndent(req, "", "    ")
		t.Logf("Request was: pos=%q %s", req.Pos(), dump)
		return nil
	}
}

func MatchList(t *testing.T, l *roomlist.List, matchers ...ListMatcher) {
	t.Helper()
	for _, m := range matchers {
		if err := m(l); err != nil {
			t.Fatalf("MatchList %s: %s", l.Name(), err)
		}
	}
}

func MatchTimeline(t *testing.T, tl *timeline.Timeline, matchers ...TimelineMatcher) {
	t.Helper()
	for _, m := range matchers {
		if err := m(tl); err != nil {
			t.Fatalf("MatchTimeline %s: %s", tl.RoomID(), err)
		}
	}
}

func MatchRequest(t *testing.T, req *sync3.Request, matchers ...RequestMatcher) {
	t.Helper()
	for _, m := range matchers {
		if err := m(req); err != nil {
			t.Fatalf("MatchRequest: %s", err)
		}
	}
}
