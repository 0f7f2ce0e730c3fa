package sync3

import (
	"encoding/json"
	"testing"
)

func TestResponseUnmarshalOps(t *testing.T) {
	body := `{
		"pos": "42",
		"txn_id": "abc",
		"lists": {
			"all_rooms": {
				"count": 30,
				"ops": [
					{"op": "SYNC", "range": [0, 1], "room_ids": ["!a:example.org", "!b:example.org"]},
					{"op": "DELETE", "index": 0},
					{"op": "INSERT", "index": 1, "room_id": "!c:example.org"},
					{"op": "INVALIDATE", "range": [0, 9]}
				]
			},
			"dms": {"count": 0}
		},
		"rooms": {
			"!a:example.org": {"name": "A", "notification_count": 2, "initial": true}
		}
	}`
	var res Response
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatalf("Unmarshal: %s", err)
	}
	if res.Pos != "42" || res.TxnID != "abc" {
		t.Fatalf("bad pos/txn: %+v", res)
	}
	if len(res.Lists) != 2 || res.Lists["dms"].Count != 0 {
		t.Fatalf("bad lists: %+v", res.Lists)
	}
	if res.ListOps() != 4 {
		t.Fatalf("ListOps got %d want 4", res.ListOps())
	}
	ops := res.Lists["all_rooms"].Ops
	syncOp, ok := ops[0].(*ResponseOpRange)
	if !ok {
		t.Fatalf("op 0 is %T, want range", ops[0])
	}
	if syncOp.Range != [2]int64{0, 1} || len(syncOp.IncludedRoomIDs()) != 2 {
		t.Fatalf("bad SYNC op: %+v", syncOp)
	}
	del, ok := ops[1].(*ResponseOpSingle)
	if !ok || del.Op() != OpDelete || del.Index == nil || *del.Index != 0 {
		t.Fatalf("bad DELETE op: %+v", ops[1])
	}
	if del.IncludedRoomIDs() != nil {
		t.Fatalf("DELETE should include no rooms")
	}
	ins := ops[2].(*ResponseOpSingle)
	if ins.RoomID != "!c:example.org" || *ins.Index != 1 {
		t.Fatalf("bad INSERT op: %+v", ins)
	}
	inv := ops[3].(*ResponseOpRange)
	if inv.Op() != OpInvalidate || inv.IncludedRoomIDs() != nil {
		t.Fatalf("bad INVALIDATE op: %+v", inv)
	}
	if res.Rooms["!a:example.org"].NotificationCount != 2 {
		t.Fatalf("bad room: %+v", res.Rooms)
	}
}

func TestResponseUnmarshalBadOp(t *testing.T) {
	var res Response
	err := json.Unmarshal([]byte(`{"lists":{"a":{"count":1,"ops":[{"op":"SYNC","range":"nope"}]}}}`), &res)
	if err == nil {
		t.Fatalf("expected an error for a malformed range")
	}
}

func TestRoomHelpers(t *testing.T) {
	room := Room{
		RequiredState: []json.RawMessage{
			json.RawMessage(`{"type":"m.room.canonical_alias","state_key":"","content":{"alias":"#a:example.org"}}`),
			json.RawMessage(`{"type":"m.room.encryption","state_key":"","content":{"algorithm":"m.megolm.v1.aes-sha2"}}`),
		},
		Timeline: []json.RawMessage{
			json.RawMessage(`{"event_id":"$1"}`),
			json.RawMessage(`{"event_id":"$2"}`),
			json.RawMessage(`{"event_id":"$3"}`),
		},
		Initial: true,
		NumLive: 1,
	}
	if got := room.CanonicalAlias(); got != "#a:example.org" {
		t.Errorf("CanonicalAlias got %q", got)
	}
	if enc := room.IsEncrypted(); enc == nil || !*enc {
		t.Errorf("IsEncrypted got %v", enc)
	}
	if live := room.LiveEvents(); len(live) != 1 || string(live[0]) != `{"event_id":"$3"}` {
		t.Errorf("LiveEvents got %s", live)
	}
	room.Initial = false
	if live := room.LiveEvents(); len(live) != 3 {
		t.Errorf("LiveEvents on a non-initial room got %d events", len(live))
	}
	var empty Room
	if empty.IsEncrypted() != nil || empty.CanonicalAlias() != "" {
		t.Errorf("empty room helpers returned values")
	}
}
