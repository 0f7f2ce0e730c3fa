// Package testutils builds events and responses for tests.
package testutils

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

var (
	eventIDCounter = 0
	eventIDMu      sync.Mutex
)

func generateEventID() string {
	eventIDMu.Lock()
	defer eventIDMu.Unlock()
	eventIDCounter++
	return fmt.Sprintf("$event_%d", eventIDCounter)
}

type event struct {
	Type      string      `json:"type"`
	StateKey  *string     `json:"state_key,omitempty"`
	Sender    string      `json:"sender"`
	Content   interface{} `json:"content"`
	EventID   string      `json:"event_id"`
	RoomID    string      `json:"room_id,omitempty"`
	Timestamp uint64      `json:"origin_server_ts"`
}

type EventOption func(e *event)

// WithTimestamp sets origin_server_ts, in milliseconds.
func WithTimestamp(ts uint64) EventOption {
	return func(e *event) {
		e.Timestamp = ts
	}
}

func WithRoomID(roomID string) EventOption {
	return func(e *event) {
		e.RoomID = roomID
	}
}

func WithEventID(eventID string) EventOption {
	return func(e *event) {
		e.EventID = eventID
	}
}

func NewStateEvent(t *testing.T, evType, stateKey, sender string, content interface{}, opts ...EventOption) json.RawMessage {
	t.Helper()
	e := newEvent(evType, sender, content, opts)
	e.StateKey = &stateKey
	return marshal(t, e)
}

func NewEvent(t *testing.T, evType, sender string, content interface{}, opts ...EventOption) json.RawMessage {
	t.Helper()
	return marshal(t, newEvent(evType, sender, content, opts))
}

// NewMessage is an m.room.message text event with this body.
func NewMessage(t *testing.T, sender, body string, opts ...EventOption) json.RawMessage {
	t.Helper()
	return NewEvent(t, "m.room.message", sender, map[string]interface{}{
		"msgtype": "m.text",
		"body":    body,
	}, opts...)
}

func newEvent(evType, sender string, content interface{}, opts []EventOption) *event {
	e := &event{
		Type:      evType,
		Sender:    sender,
		Content:   content,
		EventID:   generateEventID(),
		Timestamp: uint64(spec.AsTimestamp(time.Now())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func marshal(t *testing.T, e *event) json.RawMessage {
	t.Helper()
	j, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("failed to make event JSON: %s", err)
	}
	return j
}
