package roomlist

import (
	"errors"
	"reflect"
	"testing"

	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/matrix-org/sliding-sync-client/sync3"
)

func TestListSnapshotRestore(t *testing.T) {
	rooms := roomIDs(8)
	src, _ := newList(t, Options{Mode: Growing{BatchSize: 5}})
	req, _ := src.NextRequest()
	if _, err := src.HandleResponse(ctx, serve(rooms, req)); err != nil {
		t.Fatalf("HandleResponse: %s", err)
	}
	data, err := src.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %s", err)
	}

	dst, states := newList(t, Options{Mode: Growing{BatchSize: 5}})
	if err = dst.Restore(data); err != nil {
		t.Fatalf("Restore: %s", err)
	}
	want := []Entry{
		Invalidated{rooms[0]}, Invalidated{rooms[1]}, Invalidated{rooms[2]}, Invalidated{rooms[3]},
		Invalidated{rooms[4]}, Empty{}, Empty{}, Empty{},
	}
	if !reflect.DeepEqual(dst.Entries(), want) {
		t.Fatalf("restored entries got %v want %v", dst.Entries(), want)
	}
	if dst.State() != Preloaded {
		t.Fatalf("state got %s want Preloaded", dst.State())
	}

	// a preloaded list is refreshed by the server as usual
	req, _ = dst.NextRequest()
	dst.HandleResponse(ctx, serve(rooms, req))
	if got := summarise(dst.Entries()); got != "FFFFFEEE" {
		t.Fatalf("entries after the first response got %s", got)
	}
	if !reflect.DeepEqual(*states, []State{Preloaded, PartiallyLoaded}) {
		t.Fatalf("states got %v", *states)
	}

	// restoring is only possible before anything was loaded
	if err = dst.Restore(data); !errors.Is(err, internal.ErrIllegalTransition) {
		t.Fatalf("Restore on a loaded list got %v", err)
	}
}

func TestListRestoreRejects(t *testing.T) {
	other, _ := newList(t, Options{Name: "dms", Mode: Selective{Ranges: sync3.SliceRanges{{0, 0}}}})
	data, _ := other.Snapshot()

	l, states := newList(t, Options{})
	if err := l.Restore(data); !errors.Is(err, internal.ErrMalformedInput) {
		t.Errorf("Restore from another list got %v", err)
	}
	if err := l.Restore([]byte("not cbor")); !errors.Is(err, internal.ErrMalformedInput) {
		t.Errorf("Restore from garbage got %v", err)
	}
	if l.State() != NotLoaded || len(*states) != 0 || l.Len() != 0 {
		t.Errorf("rejected restore changed the list: %s %v %d", l.State(), *states, l.Len())
	}
}
