// Package timeline keeps the locally known events of one room, in order, and grows them
// backwards on demand.
package timeline

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/matrix-org/sliding-sync-client/pubsub"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/vecdiff"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Item is one event in a timeline.
type Item struct {
	EventID   string
	Sender    string
	Type      string
	Timestamp spec.Timestamp
	JSON      json.RawMessage
}

// NewItem parses a client event. Events without an event ID cannot be placed in a timeline.
func NewItem(ev json.RawMessage) (Item, error) {
	if !gjson.ValidBytes(ev) {
		return Item{}, internal.NewError(internal.KindMalformedInput, nil, "event is not valid JSON")
	}
	parsed := gjson.ParseBytes(ev)
	eventID := parsed.Get("event_id").Str
	if eventID == "" {
		return Item{}, internal.NewError(internal.KindMalformedInput, nil, "event has no event_id")
	}
	return Item{
		EventID:   eventID,
		Sender:    parsed.Get("sender").Str,
		Type:      parsed.Get("type").Str,
		Timestamp: spec.Timestamp(parsed.Get("origin_server_ts").Uint()),
		JSON:      ev,
	}, nil
}

// parseItems drops events which cannot be parsed.
func parseItems(roomID string, events []json.RawMessage) []Item {
	items := make([]Item, 0, len(events))
	for _, ev := range events {
		item, err := NewItem(ev)
		if err != nil {
			logger.Warn().Str("room", roomID).Err(err).Msg("dropping event")
			continue
		}
		items = append(items, item)
	}
	return items
}

type Config struct {
	// Deliver notifications on the goroutine applying the diff.
	Inline  bool
	Metrics *pubsub.Metrics
}

type Timeline struct {
	roomID string
	items  *vecdiff.Observable[Item]

	// one pagination at a time
	paginateMu sync.Mutex

	mu sync.Mutex
	// the token to paginate backwards from. "" with no items is the live end of the room.
	backToken string
	// set once a page came back short or without a token, cleared by a reset
	reachedStart bool
	// incremented whenever the timeline is reset, so a page fetched before the reset is not
	// stitched onto the new events
	generation uint64
}

func New(roomID string, cfg Config) *Timeline {
	return &Timeline{
		roomID: roomID,
		items: vecdiff.NewObservable[Item](vecdiff.Config{
			Name:      roomID,
			AllowMove: true,
			Inline:    cfg.Inline,
			Metrics:   cfg.Metrics,
		}),
	}
}

func (t *Timeline) RoomID() string {
	return t.roomID
}

func (t *Timeline) Len() int {
	return t.items.Len()
}

func (t *Timeline) Get(i int) (Item, bool) {
	return t.items.Get(i)
}

// Items returns a copy of the items, oldest first.
func (t *Timeline) Items() []Item {
	return t.items.Items()
}

// BackToken returns the token to paginate backwards from, "" if there is none.
func (t *Timeline) BackToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backToken
}

// Apply one diff to the items.
func (t *Timeline) Apply(d vecdiff.Diff[Item]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := d.(vecdiff.Reset[Item]); ok {
		t.generation++
		t.reachedStart = false
	}
	_, err := t.items.Apply(d)
	return err
}

// HandleRoom applies the timeline part of a room in a sync response. A limited or initial room
// replaces everything known; otherwise live events are appended. Returns true if any item
// changed.
func (t *Timeline) HandleRoom(ctx context.Context, room sync3.Room) (changed bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if (room.Limited || room.Initial) && len(room.Timeline) > 0 {
		items := parseItems(t.roomID, room.Timeline)
		t.generation++
		t.backToken = room.PrevBatch
		t.reachedStart = false
		if _, err = t.items.Apply(vecdiff.Reset[Item]{Values: items}); err != nil {
			return false, err
		}
		return true, nil
	}
	if t.items.Len() == 0 && t.backToken == "" {
		t.backToken = room.PrevBatch
	}
	live := parseItems(t.roomID, room.LiveEvents())
	if len(live) == 0 {
		return false, nil
	}
	diffs := make([]vecdiff.Diff[Item], len(live))
	for i := range live {
		diffs[i] = vecdiff.PushBack[Item]{Value: live[i]}
	}
	if _, err = t.items.ApplyBatch(diffs); err != nil {
		internal.GetSentryHubFromContextOrDefault(ctx).CaptureException(err)
		return false, err
	}
	return true, nil
}

// prepend a page of events, newest first, in front of the items. atStart says the page holds
// the oldest events of the room. Pages fetched before the timeline was reset are dropped.
// Returns the number of events added.
func (t *Timeline) prepend(generation uint64, page Page, atStart bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		logger.Debug().Str("room", t.roomID).Msg("dropping page fetched before a reset")
		return 0, nil
	}
	t.backToken = page.End
	t.reachedStart = atStart
	items := parseItems(t.roomID, page.Events)
	diffs := make([]vecdiff.Diff[Item], len(items))
	for i := range items {
		diffs[i] = vecdiff.PushFront[Item]{Value: items[i]}
	}
	applied, err := t.items.ApplyBatch(diffs)
	return len(applied), err
}

// ReachedStart returns true if there are no older events to paginate. This is the case once a
// page reached the start of the room, or when the timeline has items but no token to go back
// from.
func (t *Timeline) ReachedStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.atStart()
}

func (t *Timeline) atStart() bool {
	return t.reachedStart || (t.backToken == "" && t.items.Len() > 0)
}

func (t *Timeline) snapshotToken() (from string, generation uint64, atStart bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backToken, t.generation, t.atStart()
}

// SubscribeDiffs returns the current items together with a subscription to every diff applied
// after them.
func (t *Timeline) SubscribeDiffs(fn func(vecdiff.Applied[Item])) ([]Item, pubsub.Handle) {
	return t.items.SubscribeDiffs(fn)
}

func (t *Timeline) SubscribeCount(fn func(n int)) pubsub.Handle {
	return t.items.SubscribeCount(fn)
}

func (t *Timeline) SubscribeItems(fn func()) pubsub.Handle {
	return t.items.SubscribeItems(fn)
}

func (t *Timeline) Unsubscribe(h pubsub.Handle) bool {
	return t.items.Unsubscribe(h)
}

func (t *Timeline) Flush() {
	t.items.Flush()
}

func (t *Timeline) Close() {
	t.items.Close()
}
