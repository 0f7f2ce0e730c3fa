package timeline

import (
	"context"
	"encoding/json"

	"github.com/matrix-org/sliding-sync-client/internal"
)

// Options is one of SingleRequest or UntilNumItems.
type Options interface {
	eventLimit() int
}

// SingleRequest fetches one page of up to EventLimit events.
type SingleRequest struct {
	EventLimit int
}

// UntilNumItems fetches pages of up to EventLimit events until the timeline holds at least Items
// items or the start of the room is reached. A page is always applied in full, so the timeline
// may end up longer than Items.
type UntilNumItems struct {
	EventLimit int
	Items      int
}

func (o SingleRequest) eventLimit() int { return o.EventLimit }
func (o UntilNumItems) eventLimit() int { return o.EventLimit }

// Page is one batch of older events.
type Page struct {
	// newest first, as returned by /messages with dir=b
	Events []json.RawMessage
	// the token to continue from, "" at the start of the room
	End string
}

type Fetcher interface {
	FetchBackwards(ctx context.Context, roomID, from string, limit int) (Page, error)
}

type Result struct {
	// number of fetches made
	Rounds int
	// number of events added
	Fetched int
	// timeline length afterwards
	Len int
	// true if the start of the room was reached
	ReachedStart bool
}

// Paginator loads older events into a timeline.
type Paginator struct {
	timeline *Timeline
	fetcher  Fetcher
}

func NewPaginator(t *Timeline, f Fetcher) *Paginator {
	return &Paginator{
		timeline: t,
		fetcher:  f,
	}
}

// Paginate fetches older events according to opts. Every page goes through the same diff path
// as live events and is delivered to observers before the next page is requested.
//
// Cancelling ctx stops the loop before the next fetch: a fetch already in flight completes and
// is applied, and ctx.Err() is returned with the progress so far. A failed fetch stops the loop
// with an error of kind FetchFailed wrapping the fetcher's error. There are no retries.
//
// Must not be called from an observer of the same timeline.
func (p *Paginator) Paginate(ctx context.Context, opts Options) (res Result, err error) {
	limit := opts.eventLimit()
	if limit < 1 {
		return res, internal.NewError(internal.KindMalformedInput, nil, "event limit %d", limit)
	}
	t := p.timeline
	t.paginateMu.Lock()
	defer t.paginateMu.Unlock()

	ctx, span := internal.StartSpan(ctx, "Paginate")
	defer span.End()
	defer func() {
		span.SetAttribute("rounds", res.Rounds)
		span.SetAttribute("fetched", res.Fetched)
		span.RecordError(err)
	}()

	res.Len = t.Len()
	for {
		if o, ok := opts.(UntilNumItems); ok && res.Len >= o.Items {
			return res, nil
		}
		if err = ctx.Err(); err != nil {
			return res, err
		}
		from, generation, atStart := t.snapshotToken()
		if atStart {
			// fetching with no token would return the newest events again
			res.ReachedStart = true
			return res, nil
		}
		var page Page
		// an in-flight fetch is never aborted, so its events are not lost
		page, err = p.fetcher.FetchBackwards(context.WithoutCancel(ctx), t.roomID, from, limit)
		res.Rounds++
		if err != nil {
			logger.Err(err).Str("room", t.roomID).Int("round", res.Rounds).Msg("Paginate: fetch failed")
			return res, internal.NewError(internal.KindFetchFailed, err, "room %s", t.roomID)
		}
		reachedStart := len(page.Events) < limit || page.End == ""
		var added int
		added, err = t.prepend(generation, page, reachedStart)
		res.Fetched += added
		t.Flush()
		res.Len = t.Len()
		if err != nil {
			return res, err
		}
		internal.Logf(ctx, "paginate", "round %d fetched %d events", res.Rounds, len(page.Events))
		if reachedStart {
			res.ReachedStart = true
			return res, nil
		}
		if _, ok := opts.(SingleRequest); ok {
			return res, nil
		}
	}
}
