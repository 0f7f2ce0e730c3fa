package api

import (
	"encoding/json"
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/tidwall/sjson"
)

type RoomVisibility string

const (
	VisibilityPublic  RoomVisibility = "public"
	VisibilityPrivate RoomVisibility = "private"
)

type RoomPreset string

const (
	PresetPrivateChat        = RoomPreset(spec.PresetPrivateChat)
	PresetPublicChat         = RoomPreset(spec.PresetPublicChat)
	PresetTrustedPrivateChat = RoomPreset(spec.PresetTrustedPrivateChat)
)

const megolmAlgorithm = "m.megolm.v1.aes-sha2"

// CreateRoomParameters describes a room to create. Use NewCreateRoomParameters for the defaults.
type CreateRoomParameters struct {
	Name        *string
	Topic       *string
	IsEncrypted bool
	IsDirect    bool
	Visibility  RoomVisibility
	Preset      RoomPreset
	Invite      []string
	// mxc:// URI of the room avatar
	Avatar *string
}

// NewCreateRoomParameters returns a private, non direct room with nobody invited.
func NewCreateRoomParameters(isEncrypted bool) CreateRoomParameters {
	return CreateRoomParameters{
		IsEncrypted: isEncrypted,
		Visibility:  VisibilityPrivate,
		Preset:      PresetPrivateChat,
	}
}

func (p CreateRoomParameters) Validate() error {
	switch p.Visibility {
	case VisibilityPublic, VisibilityPrivate:
	default:
		return internal.NewError(internal.KindMalformedInput, nil, "unknown visibility %q", p.Visibility)
	}
	switch p.Preset {
	case PresetPrivateChat, PresetPublicChat, PresetTrustedPrivateChat:
	default:
		return internal.NewError(internal.KindMalformedInput, nil, "unknown preset %q", p.Preset)
	}
	for _, userID := range p.Invite {
		if _, err := spec.NewUserID(userID, true); err != nil {
			return internal.NewError(internal.KindMalformedInput, err, "invalid invitee %q", userID)
		}
	}
	if p.Avatar != nil && !strings.HasPrefix(*p.Avatar, "mxc://") {
		return internal.NewError(internal.KindMalformedInput, nil, "avatar %q is not an mxc:// URI", *p.Avatar)
	}
	return nil
}

// RequestJSON returns the body of a /createRoom request. Encryption and the avatar are set as
// initial state.
func (p CreateRoomParameters) RequestJSON() (json.RawMessage, error) {
	err := p.Validate()
	if err != nil {
		return nil, err
	}
	set := func(body, path string, value interface{}) string {
		if err != nil {
			return body
		}
		var updated string
		updated, err = sjson.Set(body, path, value)
		return updated
	}
	body := "{}"
	body = set(body, "visibility", p.Visibility)
	body = set(body, "preset", p.Preset)
	body = set(body, "is_direct", p.IsDirect)
	if p.Name != nil {
		body = set(body, "name", *p.Name)
	}
	if p.Topic != nil {
		body = set(body, "topic", *p.Topic)
	}
	if len(p.Invite) > 0 {
		body = set(body, "invite", p.Invite)
	}
	if p.IsEncrypted {
		body = set(body, "initial_state.-1", stateEvent{
			Type:    "m.room.encryption",
			Content: map[string]interface{}{"algorithm": megolmAlgorithm},
		})
	}
	if p.Avatar != nil {
		body = set(body, "initial_state.-1", stateEvent{
			Type:    "m.room.avatar",
			Content: map[string]interface{}{"url": *p.Avatar},
		})
	}
	if err != nil {
		return nil, internal.NewError(internal.KindMalformedInput, err, "createRoom body")
	}
	return json.RawMessage(body), nil
}

type stateEvent struct {
	Type     string                 `json:"type"`
	StateKey string                 `json:"state_key"`
	Content  map[string]interface{} `json:"content"`
}
