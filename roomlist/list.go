package roomlist

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/matrix-org/sliding-sync-client/pubsub"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/vecdiff"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

type Options struct {
	// Name of the list, used as the key in requests and responses.
	Name          string
	Mode          SyncMode
	Sort          []string
	Filters       *sync3.RequestFilters
	TimelineLimit int64
	RequiredState [][2]string
	// Deliver notifications on the goroutine applying the diff. Inline observers may read the
	// list (State, Count, Len, Get, Entries) and Unsubscribe, but must not subscribe or modify it:
	// both wait for the delivery that is running.
	Inline  bool
	Metrics *pubsub.Metrics
}

// List is one room list. The sync driver feeds it responses and asks it for the next request;
// observers follow its entries and its State.
//
// Inline observers are called with the list locked and must not call methods which modify it
// or subscribe to it.
type List struct {
	name    string
	entries *vecdiff.Observable[Entry]
	state   atomic.Uint32

	// mu serializes everything which modifies the list, guards the fields below and makes
	// read-then-apply sequences atomic.
	mu            sync.Mutex
	mode          SyncMode
	sort          []string
	filters       *sync3.RequestFilters
	timelineLimit int64
	requiredState [][2]string
	// the ranges of the last request
	ranges sync3.SliceRanges
	// true once the server answered the last request
	answered bool
	// the count sent by the server, -1 until the first response. Written with mu held, read
	// without it so inline observers can ask for it.
	count atomic.Int64
}

func NewList(opts Options) *List {
	if opts.Mode == nil {
		opts.Mode = Selective{Ranges: sync3.SliceRanges{{0, 19}}}
	}
	if opts.Sort == nil {
		opts.Sort = sync3.DefaultSort
	}
	l := &List{
		name: opts.Name,
		entries: vecdiff.NewObservable[Entry](vecdiff.Config{
			Name:    opts.Name,
			Inline:  opts.Inline,
			Metrics: opts.Metrics,
		}),
		mode:          opts.Mode,
		sort:          opts.Sort,
		filters:       opts.Filters,
		timelineLimit: opts.TimelineLimit,
		requiredState: opts.RequiredState,
		answered:      true,
	}
	l.count.Store(-1)
	return l
}

func (l *List) Name() string {
	return l.name
}

func (l *List) State() State {
	return State(l.state.Load())
}

func (l *List) Len() int {
	return l.entries.Len()
}

func (l *List) Get(i int) (Entry, bool) {
	return l.entries.Get(i)
}

// Entries returns a copy of the entries.
func (l *List) Entries() []Entry {
	return l.entries.Items()
}

// Count returns the total number of rooms the server has for this list, which may be more than
// are loaded.
func (l *List) Count() (int, bool) {
	n := l.count.Load()
	return int(n), n >= 0
}

// Apply one diff to the entries.
func (l *List) Apply(d vecdiff.Diff[Entry]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.entries.Apply(d)
	return err
}

// SetState moves the list to s. Setting the current state does nothing.
func (l *List) SetState(s State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setState(s)
}

func (l *List) setState(s State) error {
	current := l.State()
	if current == s {
		return nil
	}
	if err := checkTransition(current, s); err != nil {
		return err
	}
	l.state.Store(uint32(s))
	l.entries.Notify(pubsub.KindState, StatePayload{State: s})
	return nil
}

// Invalidate marks every Filled entry as Invalidated and moves a FullyLoaded list back to
// PartiallyLoaded. It is used when the server no longer knows our position, so nothing it sent
// before can be trusted until it is sent again.
func (l *List) Invalidate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.invalidate(nil); err != nil {
		return err
	}
	if l.State() == FullyLoaded {
		l.state.Store(uint32(PartiallyLoaded))
		l.entries.Notify(pubsub.KindState, StatePayload{State: PartiallyLoaded})
	}
	// whatever was in flight will never be answered
	l.answered = true
	return nil
}

// invalidate the Filled entries inside ranges, or all of them if ranges is nil.
func (l *List) invalidate(ranges sync3.SliceRanges) error {
	var diffs []vecdiff.Diff[Entry]
	for i, e := range l.entries.Items() {
		f, ok := e.(Filled)
		if !ok || (ranges != nil && !ranges.Inside(int64(i))) {
			continue
		}
		diffs = append(diffs, vecdiff.Set[Entry]{Index: i, Value: Invalidated{RoomID: f.RoomID}})
	}
	if len(diffs) == 0 {
		return nil
	}
	_, err := l.entries.ApplyBatch(diffs)
	return err
}

// SetRanges switches the list to Selective mode with these ranges.
func (l *List) SetRanges(ranges sync3.SliceRanges) error {
	if !ranges.Valid() {
		return internal.NewError(internal.KindMalformedInput, nil, "invalid ranges %v", ranges)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = Selective{Ranges: ranges}
	return nil
}

func (l *List) SetTimelineLimit(limit int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timelineLimit = limit
}

// NextRequest returns the list part of the next request. Entries which fall out of the window
// are invalidated. If the previous request was not answered it is repeated.
func (l *List) NextRequest() (sync3.RequestList, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.nextRanges()
	if removed := l.ranges.Removed(next); len(removed) > 0 {
		if err := l.invalidate(removed); err != nil {
			return sync3.RequestList{}, err
		}
	}
	l.ranges = next
	l.answered = false
	return sync3.RequestList{
		RoomSubscription: sync3.RoomSubscription{
			RequiredState: l.requiredState,
			TimelineLimit: l.timelineLimit,
		},
		Ranges:  next,
		Sort:    l.sort,
		Filters: l.filters,
	}, nil
}

func (l *List) nextRanges() sync3.SliceRanges {
	if m, ok := l.mode.(Selective); ok {
		return m.Ranges
	}
	if !l.answered && len(l.ranges) > 0 {
		return l.ranges
	}
	prevEnd := l.ranges.Highest()
	count, known := l.Count()
	fullyLoaded := l.State() == FullyLoaded
	switch m := l.mode.(type) {
	case Growing:
		lim := limit(count, known, m.MaxRooms)
		return sync3.SliceRanges{nextRange(m.BatchSize, prevEnd, lim, false, fullyLoaded)}
	case Paging:
		lim := limit(count, known, m.MaxRooms)
		return sync3.SliceRanges{nextRange(m.BatchSize, prevEnd, lim, true, fullyLoaded)}
	default:
		internal.Assert("known sync mode", false)
		return l.ranges
	}
}

// HandleResponse applies the operations the server sent for this list, then advances the list
// state. It returns true if any entry changed. The first rejected operation aborts the response.
func (l *List) HandleResponse(ctx context.Context, res sync3.ResponseList) (changed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count.Store(int64(res.Count))
	l.answered = true

	apply := func(d vecdiff.Diff[Entry]) error {
		if _, err := l.entries.Apply(d); err != nil {
			return err
		}
		changed = true
		return nil
	}

	if n := l.entries.Len(); res.Count > n {
		empties := make([]Entry, res.Count-n)
		for i := range empties {
			empties[i] = Empty{}
		}
		if err = apply(vecdiff.Append[Entry]{Values: empties}); err != nil {
			return changed, err
		}
	}
	for _, op := range res.Ops {
		if err = l.applyOp(op, apply); err != nil {
			logger.Warn().Str("list", l.name).Str("op", op.Op()).Err(err).Msg("rejected list operation")
			return changed, err
		}
	}
	for l.entries.Len() > res.Count {
		if err = apply(vecdiff.PopBack[Entry]{}); err != nil {
			return changed, err
		}
	}

	if err = l.advanceState(); err != nil {
		internal.GetSentryHubFromContextOrDefault(ctx).CaptureException(err)
		return changed, err
	}
	return changed, nil
}

func (l *List) applyOp(op sync3.ResponseOp, apply func(vecdiff.Diff[Entry]) error) error {
	switch op := op.(type) {
	case *sync3.ResponseOpRange:
		switch op.Operation {
		case sync3.OpSync:
			for i, roomID := range op.IncludedRoomIDs() {
				if err := apply(vecdiff.Set[Entry]{Index: int(op.Range[0]) + i, Value: Filled{RoomID: roomID}}); err != nil {
					return err
				}
			}
			return nil
		case sync3.OpInvalidate:
			for i := op.Range[0]; i <= op.Range[1] && i < int64(l.entries.Len()); i++ {
				e, _ := l.entries.Get(int(i))
				if f, ok := e.(Filled); ok {
					if err := apply(vecdiff.Set[Entry]{Index: int(i), Value: Invalidated{RoomID: f.RoomID}}); err != nil {
						return err
					}
				}
			}
			return nil
		}
	case *sync3.ResponseOpSingle:
		if op.Index == nil {
			return internal.NewError(internal.KindMalformedInput, nil, "%s without an index", op.Operation)
		}
		switch op.Operation {
		case sync3.OpDelete:
			return apply(vecdiff.Remove[Entry]{Index: *op.Index})
		case sync3.OpInsert:
			roomIDs := op.IncludedRoomIDs()
			if len(roomIDs) != 1 {
				return internal.NewError(internal.KindMalformedInput, nil, "INSERT at %d without a room_id", *op.Index)
			}
			return apply(vecdiff.Insert[Entry]{Index: *op.Index, Value: Filled{RoomID: roomIDs[0]}})
		}
	}
	return internal.NewError(internal.KindMalformedInput, nil, "unknown list operation %s", op.Op())
}

// advanceState runs after every response: the first one makes the list PartiallyLoaded, and it
// becomes FullyLoaded once its window covers every room it wants.
func (l *List) advanceState() error {
	if s := l.State(); s == NotLoaded || s == Preloaded {
		if err := l.setState(PartiallyLoaded); err != nil {
			return err
		}
	}
	if l.State() != PartiallyLoaded {
		return nil
	}
	count, _ := l.Count()
	covered := false
	switch m := l.mode.(type) {
	case Selective:
		covered = true
	case Growing:
		covered = l.ranges.Highest()+1 >= limit(count, true, m.MaxRooms)
	case Paging:
		covered = l.ranges.Highest()+1 >= limit(count, true, m.MaxRooms)
	}
	if covered {
		return l.setState(FullyLoaded)
	}
	return nil
}

// SubscribeEntries returns the current entries together with a subscription to every diff
// applied after them.
func (l *List) SubscribeEntries(fn func(vecdiff.Applied[Entry])) ([]Entry, pubsub.Handle) {
	return l.entries.SubscribeDiffs(fn)
}

func (l *List) SubscribeCount(fn func(n int)) pubsub.Handle {
	return l.entries.SubscribeCount(fn)
}

func (l *List) SubscribeItems(fn func()) pubsub.Handle {
	return l.entries.SubscribeItems(fn)
}

// SubscribeState returns the current state and calls fn with every later transition.
func (l *List) SubscribeState(fn func(State)) (State, pubsub.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.entries.Subscribe(pubsub.KindState, func(p pubsub.Payload) {
		fn(p.(StatePayload).State)
	})
	return l.State(), h
}

func (l *List) Unsubscribe(h pubsub.Handle) bool {
	return l.entries.Unsubscribe(h)
}

// Flush waits for observers to receive every notification queued so far.
func (l *List) Flush() {
	l.entries.Flush()
}

func (l *List) Close() {
	l.entries.Close()
}
