package sync3

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

type Room struct {
	Name              string            `json:"name,omitempty"`
	AvatarURL         string            `json:"avatar,omitempty"`
	RequiredState     []json.RawMessage `json:"required_state,omitempty"`
	Timeline          []json.RawMessage `json:"timeline,omitempty"`
	InviteState       []json.RawMessage `json:"invite_state,omitempty"`
	NotificationCount int64             `json:"notification_count"`
	HighlightCount    int64             `json:"highlight_count"`
	Initial           bool              `json:"initial,omitempty"`
	Limited           bool              `json:"limited,omitempty"`
	IsDM              bool              `json:"is_dm,omitempty"`
	JoinedCount       int               `json:"joined_count,omitempty"`
	InvitedCount      int               `json:"invited_count,omitempty"`
	PrevBatch         string            `json:"prev_batch,omitempty"`
	NumLive           int               `json:"num_live,omitempty"`
}

// StateContent returns the content of the required_state event with this type and state key,
// which does not exist if the server did not send one.
func (r *Room) StateContent(evType, stateKey string) gjson.Result {
	for _, ev := range r.RequiredState {
		parsed := gjson.ParseBytes(ev)
		if parsed.Get("type").Str == evType && parsed.Get("state_key").Str == stateKey {
			return parsed.Get("content")
		}
	}
	return gjson.Result{}
}

// CanonicalAlias returns the alias from m.room.canonical_alias, if it was requested.
func (r *Room) CanonicalAlias() string {
	return r.StateContent("m.room.canonical_alias", "").Get("alias").Str
}

// IsEncrypted returns nil if no m.room.encryption event was sent, as the client cannot tell an
// unencrypted room from one whose encryption state was not requested.
func (r *Room) IsEncrypted() *bool {
	c := r.StateContent("m.room.encryption", "")
	if !c.Exists() {
		return nil
	}
	encrypted := c.Get("algorithm").Str != ""
	return &encrypted
}

// LiveEvents returns the events which arrived since the last response. An initial response
// also carries historical context, of which only the last num_live events are live.
func (r *Room) LiveEvents() []json.RawMessage {
	if !r.Initial {
		return r.Timeline
	}
	n := r.NumLive
	if n <= 0 {
		return nil
	}
	if n > len(r.Timeline) {
		n = len(r.Timeline)
	}
	return r.Timeline[len(r.Timeline)-n:]
}
