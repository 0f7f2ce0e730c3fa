// Package sync3 holds the sliding sync wire model exchanged with the proxy.
package sync3

var (
	SortByName              = "by_name"
	SortByRecency           = "by_recency"
	SortByNotificationLevel = "by_notification_level"
	SortByHighlightCount    = "by_highlight_count"
	SortByNotificationCount = "by_notification_count"

	DefaultSort          = []string{SortByRecency, SortByName}
	DefaultTimelineLimit = int64(20)
	DefaultTimeoutMSecs  = 10 * 1000 // 10s
)

type Request struct {
	ConnID            string                      `json:"conn_id,omitempty"`
	TxnID             string                      `json:"txn_id,omitempty"`
	Lists             map[string]RequestList      `json:"lists,omitempty"`
	RoomSubscriptions map[string]RoomSubscription `json:"room_subscriptions,omitempty"`
	UnsubscribeRooms  []string                    `json:"unsubscribe_rooms,omitempty"`

	// set via query params
	pos          string
	timeoutMSecs int
}

type RequestList struct {
	RoomSubscription
	Ranges  SliceRanges     `json:"ranges"`
	Sort    []string        `json:"sort,omitempty"`
	Filters *RequestFilters `json:"filters,omitempty"`
}

type RequestFilters struct {
	Spaces         []string  `json:"spaces,omitempty"`
	IsDM           *bool     `json:"is_dm,omitempty"`
	IsEncrypted    *bool     `json:"is_encrypted,omitempty"`
	IsInvite       *bool     `json:"is_invite,omitempty"`
	RoomNameFilter string    `json:"room_name_like,omitempty"`
	RoomTypes      []*string `json:"room_types,omitempty"`
	NotRoomTypes   []*string `json:"not_room_types,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	NotTags        []string  `json:"not_tags,omitempty"`
}

type RoomSubscription struct {
	RequiredState [][2]string `json:"required_state,omitempty"`
	TimelineLimit int64       `json:"timeline_limit"`
}

func (r *Request) SetPos(pos string) {
	r.pos = pos
}

func (r *Request) Pos() string {
	return r.pos
}

func (r *Request) TimeoutMSecs() int {
	return r.timeoutMSecs
}

func (r *Request) SetTimeoutMSecs(timeout int) {
	r.timeoutMSecs = timeout
}
