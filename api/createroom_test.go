package api

import (
	"testing"

	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func strPtr(s string) *string {
	return &s
}

func TestCreateRoomDefaults(t *testing.T) {
	p := NewCreateRoomParameters(false)
	assert.Equal(t, VisibilityPrivate, p.Visibility)
	assert.Equal(t, PresetPrivateChat, p.Preset)
	assert.False(t, p.IsDirect)
	assert.Nil(t, p.Name)
	assert.Nil(t, p.Topic)
	assert.Nil(t, p.Invite)

	body, err := p.RequestJSON()
	require.NoError(t, err)
	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "private", parsed.Get("visibility").Str)
	assert.Equal(t, "private_chat", parsed.Get("preset").Str)
	assert.False(t, parsed.Get("name").Exists())
	assert.False(t, parsed.Get("initial_state").Exists())
}

func TestCreateRoomRequestJSON(t *testing.T) {
	p := CreateRoomParameters{
		Name:        strPtr("Chat"),
		Topic:       strPtr("things"),
		IsEncrypted: true,
		IsDirect:    true,
		Visibility:  VisibilityPublic,
		Preset:      PresetTrustedPrivateChat,
		Invite:      []string{"@bob:example.org"},
		Avatar:      strPtr("mxc://example.org/abc"),
	}
	body, err := p.RequestJSON()
	require.NoError(t, err)
	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "Chat", parsed.Get("name").Str)
	assert.Equal(t, "things", parsed.Get("topic").Str)
	assert.True(t, parsed.Get("is_direct").Bool())
	assert.Equal(t, "trusted_private_chat", parsed.Get("preset").Str)
	assert.Equal(t, "@bob:example.org", parsed.Get("invite.0").Str)

	initialState := parsed.Get("initial_state").Array()
	require.Len(t, initialState, 2)
	assert.Equal(t, "m.room.encryption", initialState[0].Get("type").Str)
	assert.Equal(t, "", initialState[0].Get("state_key").Str)
	assert.Equal(t, "m.megolm.v1.aes-sha2", initialState[0].Get("content.algorithm").Str)
	assert.Equal(t, "m.room.avatar", initialState[1].Get("type").Str)
	assert.Equal(t, "mxc://example.org/abc", initialState[1].Get("content.url").Str)
}

func TestCreateRoomValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(p *CreateRoomParameters)
	}{
		{name: "bad invitee", modify: func(p *CreateRoomParameters) { p.Invite = []string{"bob"} }},
		{name: "bad avatar", modify: func(p *CreateRoomParameters) { p.Avatar = strPtr("https://example.org/a.png") }},
		{name: "bad preset", modify: func(p *CreateRoomParameters) { p.Preset = "secret_chat" }},
		{name: "bad visibility", modify: func(p *CreateRoomParameters) { p.Visibility = "" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewCreateRoomParameters(true)
			tc.modify(&p)
			err := p.Validate()
			assert.ErrorIs(t, err, internal.ErrMalformedInput)
			_, err = p.RequestJSON()
			assert.Error(t, err)
		})
	}
}
