package slidingsync

import (
	"encoding/json"

	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/tidwall/gjson"
)

// RoomInfo is what the engine knows about a room, merged from every response which mentioned it.
type RoomInfo struct {
	RoomID            string
	Name              string
	AvatarURL         string
	CanonicalAlias    string
	IsDM              bool
	IsInvite          bool
	IsEncrypted       *bool
	NotificationCount int64
	HighlightCount    int64
	JoinedCount       int
	InvitedCount      int

	members map[string]member
}

type member struct {
	displayName string
	avatarURL   string
}

// Member returns the display name and avatar of a user, if their m.room.member event was seen.
func (r *RoomInfo) Member(userID string) (displayName, avatarURL string, ok bool) {
	m, ok := r.members[userID]
	return m.displayName, m.avatarURL, ok
}

// merge a response for this room. Fields the server left out keep their value, except for the
// counts which are always sent.
func (r *RoomInfo) merge(room sync3.Room) {
	if room.Initial {
		r.IsDM = room.IsDM
	} else if room.IsDM {
		r.IsDM = true
	}
	if room.Name != "" {
		r.Name = room.Name
	}
	if room.AvatarURL != "" {
		r.AvatarURL = room.AvatarURL
	}
	// a canonical_alias event without an alias removes it
	if room.StateContent("m.room.canonical_alias", "").Exists() {
		r.CanonicalAlias = room.CanonicalAlias()
	}
	if enc := room.IsEncrypted(); enc != nil {
		r.IsEncrypted = enc
	}
	if room.JoinedCount > 0 {
		r.JoinedCount = room.JoinedCount
	}
	if room.InvitedCount > 0 {
		r.InvitedCount = room.InvitedCount
	}
	if len(room.InviteState) > 0 {
		r.IsInvite = true
	} else if room.Initial || len(room.Timeline) > 0 {
		r.IsInvite = false
	}
	r.NotificationCount = room.NotificationCount
	r.HighlightCount = room.HighlightCount

	r.addMembers(room.RequiredState)
	r.addMembers(room.Timeline)
}

func (r *RoomInfo) addMembers(events []json.RawMessage) {
	for _, ev := range events {
		parsed := gjson.ParseBytes(ev)
		if parsed.Get("type").Str != "m.room.member" {
			continue
		}
		stateKey := parsed.Get("state_key")
		if !stateKey.Exists() {
			continue
		}
		if r.members == nil {
			r.members = make(map[string]member)
		}
		content := parsed.Get("content")
		r.members[stateKey.Str] = member{
			displayName: content.Get("displayname").Str,
			avatarURL:   content.Get("avatar_url").Str,
		}
	}
}

// clone returns a copy which does not share the member map.
func (r *RoomInfo) clone() RoomInfo {
	c := *r
	c.members = make(map[string]member, len(r.members))
	for k, v := range r.members {
		c.members[k] = v
	}
	return c
}

// same returns true if nothing a host would display differs.
func (r *RoomInfo) same(o RoomInfo) bool {
	return r.Name == o.Name && r.AvatarURL == o.AvatarURL && r.CanonicalAlias == o.CanonicalAlias &&
		r.IsDM == o.IsDM && r.IsInvite == o.IsInvite && boolPtrEqual(r.IsEncrypted, o.IsEncrypted) &&
		r.NotificationCount == o.NotificationCount && r.HighlightCount == o.HighlightCount &&
		r.JoinedCount == o.JoinedCount && r.InvitedCount == o.InvitedCount
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
