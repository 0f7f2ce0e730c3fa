package slidingsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/matrix-org/sliding-sync-client/roomlist"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/testutils"
	"github.com/matrix-org/sliding-sync-client/testutils/m"
)

// fakeServer answers requests for a fixed set of rooms, sending every room in the window of a
// list once.
type fakeServer struct {
	t       *testing.T
	roomIDs []string
	events  map[string]json.RawMessage
	sent    map[string]bool
	// the ranges of the last request per list, which need no ops if they did not change
	ranges map[string]sync3.SliceRanges
	pos    int
}

func newFakeServer(t *testing.T, n int) *fakeServer {
	s := &fakeServer{
		t:      t,
		events: make(map[string]json.RawMessage),
		sent:   make(map[string]bool),
		ranges: make(map[string]sync3.SliceRanges),
	}
	for i := 0; i < n; i++ {
		roomID := fmt.Sprintf("!%d:example.org", i)
		s.roomIDs = append(s.roomIDs, roomID)
		s.events[roomID] = testutils.NewMessage(t, "@bob:example.org", "hello", testutils.WithRoomID(roomID))
	}
	return s
}

func (s *fakeServer) serve(req *sync3.Request) *sync3.Response {
	s.pos++
	res := &sync3.Response{
		Pos:   strconv.Itoa(s.pos),
		TxnID: req.TxnID,
		Lists: make(map[string]sync3.ResponseList),
		Rooms: make(map[string]sync3.Room),
	}
	for name, list := range req.Lists {
		resList := sync3.ResponseList{Count: len(s.roomIDs)}
		if fmt.Sprint(s.ranges[name]) == fmt.Sprint(list.Ranges) {
			res.Lists[name] = resList
			continue
		}
		s.ranges[name] = list.Ranges
		for _, r := range list.Ranges {
			end := r[1]
			if end >= int64(len(s.roomIDs)) {
				end = int64(len(s.roomIDs)) - 1
			}
			var window []string
			for i := r[0]; i <= end; i++ {
				roomID := s.roomIDs[i]
				window = append(window, roomID)
				if !s.sent[roomID] {
					s.sent[roomID] = true
					res.Rooms[roomID] = sync3.Room{
						Name:      "Room " + roomID,
						Initial:   true,
						Timeline:  []json.RawMessage{s.events[roomID]},
						PrevBatch: "pb_" + roomID,
					}
				}
			}
			if len(window) > 0 {
				resList.Ops = append(resList.Ops, syncOp(r[0], window...))
			}
		}
		res.Lists[name] = resList
	}
	return res
}

// forget the session, as if it expired
func (s *fakeServer) forget() {
	s.sent = make(map[string]bool)
	s.ranges = make(map[string]sync3.SliceRanges)
}

func TestEngineGrowingSession(t *testing.T) {
	srv := newFakeServer(t, 5)
	s := newEngine(t, Options{})
	list, _ := s.AddList(roomlist.Options{
		Name: "all_rooms",
		Mode: roomlist.Growing{BatchSize: 2},
	})

	cycle := func(matchers ...m.RequestMatcher) UpdateSummary {
		t.Helper()
		req, err := s.BuildRequest()
		if err != nil {
			t.Fatalf("BuildRequest: %s", err)
		}
		m.MatchRequest(t, req, matchers...)
		summary, err := s.HandleResponse(ctx, srv.serve(req))
		if err != nil {
			t.Fatalf("HandleResponse: %s", err)
		}
		return summary
	}

	summary := cycle(m.MatchPos(""), m.MatchTimeout(0), m.MatchRanges("all_rooms", sync3.SliceRanges{{0, 1}}))
	m.MatchList(t, list, m.MatchEntries("FFEEE"), m.MatchCount(5), m.MatchState(roomlist.PartiallyLoaded))
	if len(summary.Rooms) != 2 {
		t.Fatalf("first cycle touched rooms %v", summary.Rooms)
	}

	cycle(m.MatchPos("1"), m.MatchTimeout(sync3.DefaultTimeoutMSecs), m.MatchRanges("all_rooms", sync3.SliceRanges{{0, 3}}))
	m.MatchList(t, list, m.MatchEntries("FFFFE"), m.MatchState(roomlist.PartiallyLoaded))

	cycle(m.MatchRanges("all_rooms", sync3.SliceRanges{{0, 4}}))
	m.MatchList(t, list,
		m.MatchRoomIDs(srv.roomIDs),
		m.MatchFilledAnyOrder(srv.roomIDs),
		m.MatchState(roomlist.FullyLoaded),
	)

	// once fully loaded the whole list stays in the window
	summary = cycle(m.MatchPos("3"), m.MatchRanges("all_rooms", sync3.SliceRanges{{0, 4}}))
	if !summary.Empty() {
		t.Fatalf("nothing changed but got %+v", summary)
	}

	for _, roomID := range srv.roomIDs {
		m.MatchTimeline(t, s.Timeline(roomID),
			m.MatchBackToken("pb_"+roomID),
			m.MatchTimelineMostRecent(1, []json.RawMessage{srv.events[roomID]}),
		)
	}
}

func TestEngineSessionRestart(t *testing.T) {
	srv := newFakeServer(t, 3)
	s := newEngine(t, Options{})
	list, _ := s.AddList(roomlist.Options{Name: "all_rooms", Mode: roomlist.Selective{Ranges: sync3.SliceRanges{{0, 2}}}})
	s.SubscribeRoom("!0:example.org", sync3.RoomSubscription{TimelineLimit: 10})

	req, _ := s.BuildRequest()
	s.HandleResponse(ctx, srv.serve(req))
	m.MatchList(t, list, m.MatchEntries("FFF"), m.MatchState(roomlist.FullyLoaded))

	s.UnsubscribeRoom("!0:example.org")
	s.reset()
	m.MatchList(t, list, m.MatchEntries("III"), m.MatchState(roomlist.PartiallyLoaded))
	req, _ = s.BuildRequest()
	m.MatchRequest(t, req, m.MatchPos(""), m.MatchTimeout(0), m.MatchUnsubscribed(nil), m.MatchRanges("all_rooms", sync3.SliceRanges{{0, 2}}))

	// the new session sends everything again
	srv.forget()
	s.HandleResponse(ctx, srv.serve(req))
	m.MatchList(t, list, m.MatchEntries("FFF"), m.MatchState(roomlist.FullyLoaded))
}
