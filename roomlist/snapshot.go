package roomlist

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/matrix-org/sliding-sync-client/vecdiff"
)

type snapshot struct {
	Name  string `cbor:"1,keyasint,omitempty"`
	Count int    `cbor:"2,keyasint,omitempty"`
	// one per entry, "" for Empty
	RoomIDs []string `cbor:"3,keyasint,omitempty"`
}

// Snapshot encodes the entries of the list so that a later process can show them before the
// server has answered. Where the bytes are kept is up to the caller.
func (l *List) Snapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries.Items()
	count, known := l.Count()
	if !known {
		count = 0
	}
	s := snapshot{
		Name:    l.name,
		Count:   count,
		RoomIDs: make([]string, len(entries)),
	}
	for i, e := range entries {
		s.RoomIDs[i], _ = RoomIDOf(e)
	}
	return cbor.Marshal(s)
}

// Restore replaces the entries of a NotLoaded list with a snapshot. Known rooms are restored as
// Invalidated, as they may have moved since, and the list becomes Preloaded.
func (l *List) Restore(data []byte) error {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return internal.NewError(internal.KindMalformedInput, err, "list snapshot")
	}
	if s.Name != l.name {
		return internal.NewError(internal.KindMalformedInput, nil, "snapshot of list %q cannot restore list %q", s.Name, l.name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := checkTransition(l.State(), Preloaded); err != nil {
		return err
	}
	entries := make([]Entry, len(s.RoomIDs))
	for i, roomID := range s.RoomIDs {
		if roomID == "" {
			entries[i] = Empty{}
		} else {
			entries[i] = Invalidated{RoomID: roomID}
		}
	}
	if _, err := l.entries.Apply(vecdiff.Reset[Entry]{Values: entries}); err != nil {
		return err
	}
	l.count.Store(int64(s.Count))
	return l.setState(Preloaded)
}
