package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/matrix-org/sliding-sync-client/api"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var ctx = context.Background()

const token = "secret"

// fakeProxy serves the endpoints the client uses. Every handler checks the access token.
func fakeProxy(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(401)
				w.Write([]byte(`{"errcode":"M_UNKNOWN_TOKEN"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc(slidingSyncPath, func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		switch req.URL.Query().Get("pos") {
		case "":
			assert.Equal(t, "", req.URL.Query().Get("timeout"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			ranges := gjson.GetBytes(body, "lists.all_rooms.ranges").Raw
			assert.Equal(t, "[[0,1]]", ranges)
			w.Write([]byte(`{
				"pos": "5",
				"txn_id": "` + gjson.GetBytes(body, "txn_id").Str + `",
				"lists": {"all_rooms": {"count": 2, "ops": [
					{"op": "SYNC", "range": [0, 1], "room_ids": ["!a:example.org", "!b:example.org"]}
				]}},
				"rooms": {"!a:example.org": {"name": "A", "initial": true, "notification_count": 1}}
			}`))
		case "5":
			assert.Equal(t, "10000", req.URL.Query().Get("timeout"))
			w.Write([]byte(`{"pos": "6"}`))
		default:
			w.WriteHeader(400)
			w.Write([]byte(`{"errcode":"M_UNKNOWN_POS","error":"unknown position"}`))
		}
	}).Methods("POST")
	r.HandleFunc("/_matrix/client/v3/rooms/{roomID}/messages", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "!a:example.org", mux.Vars(req)["roomID"])
		q := req.URL.Query()
		assert.Equal(t, "b", q.Get("dir"))
		assert.Equal(t, "2", q.Get("limit"))
		if q.Get("from") == "" {
			w.Write([]byte(`{"chunk": [{"event_id": "$2"}, {"event_id": "$1"}], "end": "t1"}`))
			return
		}
		w.Write([]byte(`{"chunk": []}`))
	}).Methods("GET")
	r.HandleFunc("/_matrix/client/v3/createRoom", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		assert.Equal(t, "private_chat", gjson.GetBytes(body, "preset").Str)
		assert.Equal(t, "m.room.encryption", gjson.GetBytes(body, "initial_state.0.type").Str)
		w.Write([]byte(`{"room_id": "!new:example.org"}`))
	}).Methods("POST")
	r.HandleFunc("/_matrix/client/v3/account/whoami", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"user_id": "@alice:example.org", "device_id": "ALICE"}`))
	}).Methods("GET")
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestDoSlidingSync(t *testing.T) {
	srv := fakeProxy(t)
	client := NewHTTPClient(srv.URL, token, time.Minute)

	req := &sync3.Request{
		TxnID: "txn",
		Lists: map[string]sync3.RequestList{"all_rooms": {Ranges: sync3.SliceRanges{{0, 1}}}},
	}
	res, err := client.DoSlidingSync(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "5", res.Pos)
	assert.Equal(t, "txn", res.TxnID)
	require.Len(t, res.Lists["all_rooms"].Ops, 1)
	op, ok := res.Lists["all_rooms"].Ops[0].(*sync3.ResponseOpRange)
	require.True(t, ok)
	assert.Equal(t, []string{"!a:example.org", "!b:example.org"}, op.RoomIDs)
	assert.Equal(t, int64(1), res.Rooms["!a:example.org"].NotificationCount)

	req = &sync3.Request{}
	req.SetPos("5")
	req.SetTimeoutMSecs(sync3.DefaultTimeoutMSecs)
	res, err = client.DoSlidingSync(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "6", res.Pos)

	req.SetPos("99")
	_, err = client.DoSlidingSync(ctx, req)
	assert.ErrorIs(t, err, sync3.ErrUnknownPos)
}

func TestBadToken(t *testing.T) {
	srv := fakeProxy(t)
	client := NewHTTPClient(srv.URL, "wrong", time.Minute)
	_, err := client.DoSlidingSync(ctx, &sync3.Request{})
	assert.ErrorIs(t, err, HTTP401)
	_, _, err = client.WhoAmI(ctx)
	assert.ErrorIs(t, err, HTTP401)
}

func TestWhoAmI(t *testing.T) {
	srv := fakeProxy(t)
	userID, deviceID, err := NewHTTPClient(srv.URL, token, time.Minute).WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "@alice:example.org", userID)
	assert.Equal(t, "ALICE", deviceID)
}

func TestFetchBackwards(t *testing.T) {
	srv := fakeProxy(t)
	client := NewHTTPClient(srv.URL, token, time.Minute)
	page, err := client.FetchBackwards(ctx, "!a:example.org", "", 2)
	require.NoError(t, err)
	assert.Equal(t, "t1", page.End)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "$2", gjson.GetBytes(page.Events[0], "event_id").Str)

	page, err = client.FetchBackwards(ctx, "!a:example.org", "t1", 2)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.Equal(t, "", page.End)
}

func TestCreateRoom(t *testing.T) {
	srv := fakeProxy(t)
	client := NewHTTPClient(srv.URL, token, time.Minute)
	roomID, err := client.CreateRoom(ctx, api.NewCreateRoomParameters(true))
	require.NoError(t, err)
	assert.Equal(t, "!new:example.org", roomID)

	bad := api.NewCreateRoomParameters(false)
	bad.Invite = []string{"not a user id"}
	_, err = client.CreateRoom(ctx, bad)
	assert.Error(t, err)
}

func TestSyncURL(t *testing.T) {
	client := HTTPClient{DestinationServer: "https://proxy.example.org"}
	testCases := []struct {
		pos     string
		timeout int
		wantURL string
	}{
		{wantURL: "https://proxy.example.org" + slidingSyncPath},
		{pos: "12", wantURL: "https://proxy.example.org" + slidingSyncPath + "?pos=12"},
		{pos: "12", timeout: 30000, wantURL: "https://proxy.example.org" + slidingSyncPath + "?pos=12&timeout=30000"},
	}
	for _, tc := range testCases {
		gotURL := client.createSyncURL(tc.pos, tc.timeout)
		if gotURL != tc.wantURL {
			t.Errorf("createSyncURL(%q, %d) got %v want %v", tc.pos, tc.timeout, gotURL, tc.wantURL)
		}
	}
}
