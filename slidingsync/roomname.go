package slidingsync

import (
	"fmt"
	"sort"
	"strings"
)

// maxHeroes is the number of members named in a computed room name.
const maxHeroes = 5

// DisplayName returns the name to show for the room, following the Matrix rules: the room name,
// else the canonical alias, else a name composed from other members. userID is the viewer, who
// is never one of the members named.
func (r *RoomInfo) DisplayName(userID string) string {
	if r.Name != "" {
		return r.Name
	}
	if r.CanonicalAlias != "" {
		return r.CanonicalAlias
	}

	names := r.heroNames(userID)
	others := r.JoinedCount + r.InvitedCount - 1
	alone := others <= 0
	if len(names) == 0 && alone {
		return "Empty Room"
	}

	var name string
	if len(names) >= others {
		name = joinNames(names)
	} else {
		shown := names
		if len(shown) > maxHeroes {
			shown = shown[:maxHeroes]
		}
		name = fmt.Sprintf("%s and %d others", strings.Join(shown, ", "), others-len(shown))
	}
	if alone {
		return fmt.Sprintf("Empty Room (was %s)", name)
	}
	return name
}

// heroNames returns display names of the known members other than userID, ordered by user ID.
// Members sharing a display name are disambiguated with their user ID.
func (r *RoomInfo) heroNames(userID string) []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		if id != userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > maxHeroes {
		ids = ids[:maxHeroes]
	}
	seen := make(map[string]int, len(ids))
	for _, id := range ids {
		seen[r.memberName(id)]++
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		name := r.memberName(id)
		if seen[name] > 1 {
			name = fmt.Sprintf("%s (%s)", name, id)
		}
		names[i] = name
	}
	return names
}

func (r *RoomInfo) memberName(userID string) string {
	if name := r.members[userID].displayName; name != "" {
		return name
	}
	return userID
}

func joinNames(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
