// Package slidingsync drives a sliding sync session: it builds requests, routes every part of a
// response to the list or timeline it is for, and reports what changed after each cycle.
package slidingsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/matrix-org/sliding-sync-client/api"
	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/matrix-org/sliding-sync-client/pubsub"
	"github.com/matrix-org/sliding-sync-client/roomlist"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/timeline"
	"github.com/matrix-org/sliding-sync-client/vecdiff"
	"github.com/matrix-org/util"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

const DefaultWorkers = 4

// Transport performs one sliding sync round trip. Implementations return sync3.ErrUnknownPos
// (possibly wrapped) when the server has forgotten the pos.
type Transport interface {
	DoSlidingSync(ctx context.Context, req *sync3.Request) (*sync3.Response, error)
}

type Options struct {
	ConnID string
	// The syncing user. Their own events never notify.
	UserID string
	// Number of lists and timelines processed in parallel. Defaults to DefaultWorkers.
	Workers int
	// Deliver observer notifications on the goroutine which applies the diff.
	Inline  bool
	Metrics *pubsub.Metrics
	// Used by Paginate.
	Fetcher timeline.Fetcher
	// Receives notifications, if set.
	Delegate api.NotificationDelegate
	// Long poll timeout sent once the session has a pos. Defaults to sync3.DefaultTimeoutMSecs.
	TimeoutMSecs int
}

type SlidingSync struct {
	opts       Options
	pool       *internal.WorkerPool
	aggregator *Aggregator
	notifier   *notifier

	// one cycle at a time
	cycleMu sync.Mutex

	mu        sync.Mutex
	pos       string
	lists     map[string]*roomlist.List
	timelines map[string]*timeline.Timeline
	rooms     map[string]*RoomInfo
	roomSubs  map[string]sync3.RoomSubscription
	// rooms to unsubscribe from in the next request, and those sent in the last one
	unsubs     map[string]struct{}
	sentUnsubs []string
	closed     bool
}

func New(opts Options) *SlidingSync {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.TimeoutMSecs == 0 {
		opts.TimeoutMSecs = sync3.DefaultTimeoutMSecs
	}
	s := &SlidingSync{
		opts:       opts,
		pool:       internal.NewWorkerPool(opts.Workers),
		aggregator: NewAggregator(),
		notifier:   newNotifier(opts.UserID, opts.Delegate, opts.Inline),
		lists:      make(map[string]*roomlist.List),
		timelines:  make(map[string]*timeline.Timeline),
		rooms:      make(map[string]*RoomInfo),
		roomSubs:   make(map[string]sync3.RoomSubscription),
		unsubs:     make(map[string]struct{}),
	}
	s.pool.Start()
	return s
}

// AddList creates a list from opts, replacing and returning any list with the same name. After
// Close the list is returned closed and never synced.
func (s *SlidingSync) AddList(opts roomlist.Options) (list, replaced *roomlist.List) {
	if opts.Metrics == nil {
		opts.Metrics = s.opts.Metrics
	}
	opts.Inline = opts.Inline || s.opts.Inline
	list = roomlist.NewList(opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		list.Close()
		return list, nil
	}
	replaced = s.lists[opts.Name]
	s.lists[opts.Name] = list
	return list, replaced
}

// RemoveList stops syncing a list and closes it.
func (s *SlidingSync) RemoveList(name string) bool {
	s.mu.Lock()
	list, ok := s.lists[name]
	delete(s.lists, name)
	s.mu.Unlock()
	if ok {
		list.Close()
	}
	return ok
}

// List returns nil if there is no list with this name.
func (s *SlidingSync) List(name string) *roomlist.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists[name]
}

func (s *SlidingSync) ListNames() []string {
	s.mu.Lock()
	names := maps.Keys(s.lists)
	s.mu.Unlock()
	slices.Sort(names)
	return names
}

// Timeline returns the timeline of a room, creating an empty one if needed. After Close a new
// timeline is returned closed, and is not kept.
func (s *SlidingSync) Timeline(roomID string) *timeline.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tl, ok := s.timelines[roomID]; ok {
		return tl
	}
	tl := timeline.New(roomID, timeline.Config{
		Inline:  s.opts.Inline,
		Metrics: s.opts.Metrics,
	})
	if s.closed {
		tl.Close()
		return tl
	}
	s.timelines[roomID] = tl
	return tl
}

// Room returns a copy of what is known about a room.
func (s *SlidingSync) Room(roomID string) (RoomInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.rooms[roomID]
	if !ok {
		return RoomInfo{}, false
	}
	return info.clone(), true
}

// SubscribeRoom asks the server for a room regardless of which lists it is in.
func (s *SlidingSync) SubscribeRoom(roomID string, sub sync3.RoomSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomSubs[roomID] = sub
	delete(s.unsubs, roomID)
}

func (s *SlidingSync) UnsubscribeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roomSubs[roomID]; !ok {
		return
	}
	delete(s.roomSubs, roomID)
	s.unsubs[roomID] = struct{}{}
}

// ApplyListDiff applies a diff to a list by name and records it in the current cycle.
func (s *SlidingSync) ApplyListDiff(name string, d vecdiff.Diff[roomlist.Entry]) error {
	list := s.List(name)
	if list == nil {
		return internal.NewError(internal.KindMalformedInput, nil, "unknown list %q", name)
	}
	if err := list.Apply(d); err != nil {
		return err
	}
	s.aggregator.TouchList(name)
	return nil
}

// ApplyTimelineDiff applies a diff to the timeline of a room and records it in the current cycle.
func (s *SlidingSync) ApplyTimelineDiff(roomID string, d vecdiff.Diff[timeline.Item]) error {
	if err := s.Timeline(roomID).Apply(d); err != nil {
		return err
	}
	s.aggregator.TouchRoom(roomID)
	return nil
}

func (s *SlidingSync) Pos() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// SetPos resumes a session at a pos from an earlier process.
func (s *SlidingSync) SetPos(pos string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
}

// BuildRequest returns the next request of the session.
func (s *SlidingSync) BuildRequest() (*sync3.Request, error) {
	s.mu.Lock()
	req := &sync3.Request{
		ConnID: s.opts.ConnID,
		TxnID:  util.RandomString(12),
		Lists:  make(map[string]sync3.RequestList, len(s.lists)),
	}
	req.SetPos(s.pos)
	if s.pos != "" {
		req.SetTimeoutMSecs(s.opts.TimeoutMSecs)
	}
	if len(s.roomSubs) > 0 {
		req.RoomSubscriptions = make(map[string]sync3.RoomSubscription, len(s.roomSubs))
		for roomID, sub := range s.roomSubs {
			req.RoomSubscriptions[roomID] = sub
		}
	}
	s.sentUnsubs = maps.Keys(s.unsubs)
	slices.Sort(s.sentUnsubs)
	req.UnsubscribeRooms = s.sentUnsubs
	lists := maps.Clone(s.lists)
	s.mu.Unlock()

	// lists may notify inline observers, which are free to call back into the engine
	for name, list := range lists {
		reqList, err := list.NextRequest()
		if err != nil {
			return nil, fmt.Errorf("BuildRequest: list %s: %w", name, err)
		}
		req.Lists[name] = reqList
	}
	return req, nil
}

// HandleResponse processes one sync cycle: every list, then every room, then the notifications.
// It returns what changed. A list which rejects an operation is invalidated and the first
// such error is returned once the rest of the response has been processed.
func (s *SlidingSync) HandleResponse(ctx context.Context, res *sync3.Response) (UpdateSummary, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ctx = internal.RequestContext(ctx)
	internal.SetRequestContextConnID(ctx, s.opts.ConnID)
	internal.SetRequestContextResponseInfo(ctx, s.Pos(), res.Pos, len(res.Lists), len(res.Rooms), res.TxnID)
	ctx, span := internal.StartSpan(ctx, "HandleResponse")
	defer span.End()
	span.SetAttribute("lists", len(res.Lists))
	span.SetAttribute("rooms", len(res.Rooms))
	span.SetAttribute("ops", res.ListOps())

	var errMu sync.Mutex
	var firstErr error
	fail := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	listFns := make([]func(), 0, len(res.Lists))
	for name, resList := range res.Lists {
		name, resList := name, resList
		list := s.List(name)
		if list == nil {
			internal.DecorateLogger(ctx, logger.Warn()).Str("list", name).Msg("response for unknown list")
			continue
		}
		listFns = append(listFns, func() {
			changed, err := list.HandleResponse(ctx, resList)
			if changed {
				s.aggregator.TouchList(name)
			}
			if err != nil {
				fail(fmt.Errorf("list %s: %w", name, err))
				if err = list.Invalidate(); err != nil {
					internal.DecorateLogger(ctx, logger.Err(err)).Str("list", name).Msg("failed to invalidate list")
				}
				s.aggregator.TouchList(name)
			}
		})
	}
	s.pool.Run(listFns...)

	roomFns := make([]func(), 0, len(res.Rooms))
	for roomID, room := range res.Rooms {
		roomID, room := roomID, room
		tl := s.Timeline(roomID)
		roomFns = append(roomFns, func() {
			changed, err := tl.HandleRoom(ctx, room)
			if changed {
				s.aggregator.TouchRoom(roomID)
			}
			if err != nil {
				fail(fmt.Errorf("room %s: %w", roomID, err))
			}
		})
	}
	s.pool.Run(roomFns...)

	s.mu.Lock()
	if res.Pos != "" {
		s.pos = res.Pos
	}
	for _, roomID := range s.sentUnsubs {
		delete(s.unsubs, roomID)
	}
	s.sentUnsubs = nil
	type update struct {
		before, after RoomInfo
		room          sync3.Room
	}
	updates := make([]update, 0, len(res.Rooms))
	for roomID, room := range res.Rooms {
		info, ok := s.rooms[roomID]
		if !ok {
			info = &RoomInfo{RoomID: roomID}
			s.rooms[roomID] = info
		}
		before := info.clone()
		info.merge(room)
		updates = append(updates, update{before, info.clone(), room})
	}
	s.mu.Unlock()

	for _, u := range updates {
		if !u.before.same(u.after) {
			s.aggregator.TouchRoom(u.after.RoomID)
		}
		s.notifier.roomUpdated(ctx, u.before, u.after, u.room)
	}

	summary := s.aggregator.Emit()
	internal.DecorateLogger(ctx, logger.Trace()).Strs("lists", summary.Lists).Int("touched_rooms", len(summary.Rooms)).Msg("HandleResponse")
	if firstErr != nil {
		span.RecordError(firstErr)
		return summary, fmt.Errorf("HandleResponse: %w", firstErr)
	}
	return summary, nil
}

// Run syncs until ctx is done or the transport fails, sending the summary of every cycle which
// changed something to out. There are no retries. If the server forgot the pos, the pos is
// cleared and every list invalidated before sync3.ErrUnknownPos is returned, so calling Run
// again starts a fresh session.
func (s *SlidingSync) Run(ctx context.Context, tr Transport, out chan<- UpdateSummary) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := s.BuildRequest()
		if err != nil {
			return err
		}
		res, err := tr.DoSlidingSync(ctx, req)
		if errors.Is(err, sync3.ErrUnknownPos) {
			logger.Warn().Str("pos", req.Pos()).Msg("server forgot our pos, invalidating lists")
			s.reset()
			return err
		}
		if err != nil {
			return fmt.Errorf("DoSlidingSync: %w", err)
		}
		summary, err := s.HandleResponse(ctx, res)
		if err != nil {
			logger.Err(err).Str("pos", res.Pos).Msg("partially applied response")
			internal.GetSentryHubFromContextOrDefault(ctx).CaptureException(err)
		}
		if summary.Empty() {
			continue
		}
		select {
		case out <- summary:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reset forgets the pos. Room subscriptions are kept and sent again with the next request.
func (s *SlidingSync) reset() {
	s.mu.Lock()
	s.pos = ""
	s.unsubs = make(map[string]struct{})
	s.sentUnsubs = nil
	lists := maps.Values(s.lists)
	s.mu.Unlock()
	for _, list := range lists {
		if err := list.Invalidate(); err != nil {
			logger.Err(err).Str("list", list.Name()).Msg("failed to invalidate list")
			continue
		}
		s.aggregator.TouchList(list.Name())
	}
}

// Paginate loads older events of a room with the configured fetcher. Changes are delivered to
// the observers of the timeline, and are not part of any cycle summary.
func (s *SlidingSync) Paginate(ctx context.Context, roomID string, opts timeline.Options) (timeline.Result, error) {
	if s.opts.Fetcher == nil {
		return timeline.Result{}, internal.NewError(internal.KindFetchFailed, nil, "no fetcher configured")
	}
	return timeline.NewPaginator(s.Timeline(roomID), s.opts.Fetcher).Paginate(ctx, opts)
}

// FlushNotifications waits until the delegate has received every notification so far.
func (s *SlidingSync) FlushNotifications() {
	s.notifier.flush()
}

// Close stops the session. Lists and timelines are closed after delivering what is queued.
func (s *SlidingSync) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	lists := maps.Values(s.lists)
	timelines := maps.Values(s.timelines)
	s.mu.Unlock()

	s.cycleMu.Lock()
	s.pool.Stop()
	s.cycleMu.Unlock()
	for _, list := range lists {
		list.Close()
	}
	for _, tl := range timelines {
		tl.Close()
	}
	s.notifier.close()
}
