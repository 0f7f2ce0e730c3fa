package slidingsync

import (
	"encoding/json"
	"testing"

	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/testutils"
)

func TestRoomInfoMergeCanonicalAlias(t *testing.T) {
	alias := func(content map[string]interface{}) sync3.Room {
		return sync3.Room{RequiredState: []json.RawMessage{
			testutils.NewStateEvent(t, "m.room.canonical_alias", "", alice, content),
		}}
	}
	info := &RoomInfo{RoomID: "!a:example.org"}
	info.merge(alias(map[string]interface{}{"alias": "#a:example.org"}))
	if info.CanonicalAlias != "#a:example.org" {
		t.Fatalf("got alias %q", info.CanonicalAlias)
	}
	// rooms without the state event keep what is known
	info.merge(sync3.Room{Name: "A"})
	if info.CanonicalAlias != "#a:example.org" {
		t.Fatalf("alias was lost: %q", info.CanonicalAlias)
	}
	info.merge(alias(map[string]interface{}{}))
	if info.CanonicalAlias != "" {
		t.Fatalf("alias was not removed: %q", info.CanonicalAlias)
	}
}
