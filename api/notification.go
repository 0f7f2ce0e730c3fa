package api

import "encoding/json"

// NotificationItem is handed to the NotificationDelegate for every new event in a room whose
// notification count went up.
type NotificationItem struct {
	Event  json.RawMessage
	RoomID string

	SenderDisplayName *string
	SenderAvatarURL   *string

	RoomDisplayName    string
	RoomAvatarURL      *string
	RoomCanonicalAlias *string

	// the highlight count went up too
	IsNoisy  bool
	IsDirect bool
	// nil if the encryption state of the room is not known
	IsEncrypted *bool
}

// NotificationDelegate is implemented by the host.
//
// DidReceiveNotification is called from a goroutine dedicated to notifications. It must not
// block for long, as notifications are delivered one at a time. Panics are recovered.
type NotificationDelegate interface {
	DidReceiveNotification(item NotificationItem)
}

type NotificationDelegateFunc func(item NotificationItem)

func (f NotificationDelegateFunc) DidReceiveNotification(item NotificationItem) {
	f(item)
}
