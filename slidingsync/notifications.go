package slidingsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/matrix-org/sliding-sync-client/api"
	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/matrix-org/sliding-sync-client/pubsub"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/tidwall/gjson"
)

// how long a delivered event id is remembered, so a retransmitted response does not notify twice
const seenEventTTL = 10 * time.Minute

// notifier turns unread count bumps into NotificationItems for the host.
type notifier struct {
	userID   string
	delegate api.NotificationDelegate
	queue    *pubsub.Queue
	seen     *ttlcache.Cache[string, struct{}]
}

func newNotifier(userID string, delegate api.NotificationDelegate, inline bool) *notifier {
	seen := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](seenEventTTL),
	)
	go seen.Start()
	return &notifier{
		userID:   userID,
		delegate: delegate,
		queue:    pubsub.NewQueue(inline),
		seen:     seen,
	}
}

// roomUpdated is called with the room info before and after a response was merged.
func (n *notifier) roomUpdated(ctx context.Context, before, after RoomInfo, room sync3.Room) {
	if n.delegate == nil || after.NotificationCount <= before.NotificationCount {
		return
	}
	noisy := after.HighlightCount > before.HighlightCount
	for _, ev := range room.LiveEvents() {
		parsed := gjson.ParseBytes(ev)
		eventID := parsed.Get("event_id").Str
		sender := parsed.Get("sender").Str
		if eventID == "" || sender == n.userID || n.seen.Has(eventID) {
			continue
		}
		n.seen.Set(eventID, struct{}{}, ttlcache.DefaultTTL)
		n.deliver(ctx, notificationItem(after, n.userID, ev, sender, noisy))
	}
}

func (n *notifier) deliver(ctx context.Context, item api.NotificationItem) {
	n.queue.Push(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Str("room", item.RoomID).Interface("panic", r).Msg("notification delegate panicked")
				internal.ReportPanic(ctx, "notification", r)
			}
		}()
		n.delegate.DidReceiveNotification(item)
	})
}

func (n *notifier) flush() {
	n.queue.Flush()
}

func (n *notifier) close() {
	n.queue.Close()
	n.seen.Stop()
}

func notificationItem(info RoomInfo, userID string, ev json.RawMessage, sender string, noisy bool) api.NotificationItem {
	item := api.NotificationItem{
		Event:           ev,
		RoomID:          info.RoomID,
		RoomDisplayName: info.DisplayName(userID),
		IsNoisy:         noisy,
		IsDirect:        info.IsDM,
		IsEncrypted:     info.IsEncrypted,
	}
	if displayName, avatarURL, ok := info.Member(sender); ok {
		item.SenderDisplayName = optional(displayName)
		item.SenderAvatarURL = optional(avatarURL)
	}
	item.RoomAvatarURL = optional(info.AvatarURL)
	item.RoomCanonicalAlias = optional(info.CanonicalAlias)
	return item
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
