package slidingsync

import "testing"

func TestRoomDisplayName(t *testing.T) {
	const me = "@me:localhost"
	testCases := []struct {
		name           string
		roomName       string
		canonicalAlias string
		members        map[string]string
		joinedCount    int
		invitedCount   int

		wantRoomName string
	}{
		{
			name:           "room name takes precedence",
			roomName:       "My Room Name",
			canonicalAlias: "#alias:localhost",
			members:        map[string]string{"@alice:localhost": "Alice"},
			joinedCount:    5,
			wantRoomName:   "My Room Name",
		},
		{
			name:           "alias takes precedence if room name is missing",
			canonicalAlias: "#alias:localhost",
			members:        map[string]string{"@alice:localhost": "Alice"},
			joinedCount:    5,
			wantRoomName:   "#alias:localhost",
		},
		{
			name:         "large group chat",
			members:      map[string]string{"@alice:localhost": "Alice", "@bob:localhost": "Bob", me: "Me"},
			joinedCount:  5,
			invitedCount: 1,
			wantRoomName: "Alice, Bob and 3 others",
		},
		{
			name:         "small group chat",
			members:      map[string]string{"@alice:localhost": "Alice", "@bob:localhost": "Bob", "@charlie:localhost": "Charlie"},
			joinedCount:  4,
			wantRoomName: "Alice, Bob and Charlie",
		},
		{
			name:         "DM",
			members:      map[string]string{"@alice:localhost": "Alice"},
			joinedCount:  2,
			wantRoomName: "Alice",
		},
		{
			name:         "members without a display name use their user ID",
			members:      map[string]string{"@alice:localhost": ""},
			joinedCount:  1,
			invitedCount: 1,
			wantRoomName: "@alice:localhost",
		},
		{
			name:         "disambiguation",
			members:      map[string]string{"@alice:localhost": "Alice", "@evil:localhost": "Alice"},
			joinedCount:  3,
			wantRoomName: "Alice (@alice:localhost) and Alice (@evil:localhost)",
		},
		{
			name:         "everyone left",
			members:      map[string]string{"@alice:localhost": "Alice", "@bob:localhost": "Bob"},
			joinedCount:  1,
			wantRoomName: "Empty Room (was Alice and Bob)",
		},
		{
			name:         "empty",
			joinedCount:  1,
			wantRoomName: "Empty Room",
		},
	}
	for _, tc := range testCases {
		info := RoomInfo{
			Name:           tc.roomName,
			CanonicalAlias: tc.canonicalAlias,
			JoinedCount:    tc.joinedCount,
			InvitedCount:   tc.invitedCount,
			members:        make(map[string]member),
		}
		for id, name := range tc.members {
			info.members[id] = member{displayName: name}
		}
		gotName := info.DisplayName(me)
		if gotName != tc.wantRoomName {
			t.Errorf("%s: got %q want %q", tc.name, gotName, tc.wantRoomName)
		}
	}
}
