// Package transport talks to the sliding sync proxy and the homeserver over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matrix-org/sliding-sync-client/api"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/timeline"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var Version = ""
var HTTP401 error = fmt.Errorf("HTTP 401")

const slidingSyncPath = "/_matrix/client/unstable/org.matrix.msc3575/sync"

// HTTPClient implements slidingsync.Transport and timeline.Fetcher. One client is used by one
// user, as it carries their access token.
type HTTPClient struct {
	Client *http.Client
	// The proxy, which is also asked for /messages and /createRoom as it forwards them to the
	// homeserver.
	DestinationServer string
	AccessToken       string
}

// NewHTTPClient returns a client whose requests are traced. timeout must be longer than the
// long poll timeout of the session. destination is either a URL or the path of a unix socket.
func NewHTTPClient(destination, accessToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(roundTripper(destination)),
		},
		DestinationServer: baseURL(destination),
		AccessToken:       accessToken,
	}
}

func (v *HTTPClient) newRequest(ctx context.Context, method, u string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "sliding-sync-client-"+Version)
	req.Header.Set("Authorization", "Bearer "+v.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and returns the body of a 200 response.
func (v *HTTPClient) do(req *http.Request) ([]byte, error) {
	res, err := v.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body failed: %w", err)
	}
	switch res.StatusCode {
	case 200:
		return body, nil
	case 401:
		return nil, HTTP401
	}
	parsed := gjson.ParseBytes(body)
	if parsed.Get("errcode").Str == sync3.ErrCodeUnknownPos {
		return nil, sync3.ErrUnknownPos
	}
	return nil, fmt.Errorf("response returned %s: %s %s", res.Status, parsed.Get("errcode").Str, parsed.Get("error").Str)
}

// WhoAmI returns the user the access token belongs to. Returns HTTP401 if the token is not valid.
func (v *HTTPClient) WhoAmI(ctx context.Context) (userID, deviceID string, err error) {
	req, err := v.newRequest(ctx, "GET", v.DestinationServer+"/_matrix/client/v3/account/whoami", nil)
	if err != nil {
		return "", "", err
	}
	body, err := v.do(req)
	if err != nil {
		return "", "", fmt.Errorf("WhoAmI: %w", err)
	}
	response := gjson.ParseBytes(body)
	return response.Get("user_id").Str, response.Get("device_id").Str, nil
}

// DoSlidingSync performs one sliding sync request. Returns sync3.ErrUnknownPos, wrapped, if the
// proxy has expired the session.
func (v *HTTPClient) DoSlidingSync(ctx context.Context, r *sync3.Request) (*sync3.Response, error) {
	reqBody, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("DoSlidingSync: marshal request: %w", err)
	}
	req, err := v.newRequest(ctx, "POST", v.createSyncURL(r.Pos(), r.TimeoutMSecs()), reqBody)
	if err != nil {
		return nil, fmt.Errorf("DoSlidingSync: NewRequest failed: %w", err)
	}
	body, err := v.do(req)
	if err != nil {
		return nil, fmt.Errorf("DoSlidingSync: %w", err)
	}
	var res sync3.Response
	if err = json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("DoSlidingSync: response body decode JSON failed: %w", err)
	}
	return &res, nil
}

func (v *HTTPClient) createSyncURL(pos string, timeoutMSecs int) string {
	qps := url.Values{}
	if pos != "" {
		qps.Set("pos", pos)
	}
	if timeoutMSecs > 0 {
		qps.Set("timeout", strconv.Itoa(timeoutMSecs))
	}
	if len(qps) == 0 {
		return v.DestinationServer + slidingSyncPath
	}
	return v.DestinationServer + slidingSyncPath + "?" + qps.Encode()
}

// FetchBackwards loads a page of events older than the from token, newest first.
func (v *HTTPClient) FetchBackwards(ctx context.Context, roomID, from string, limit int) (timeline.Page, error) {
	qps := url.Values{}
	qps.Set("dir", "b")
	qps.Set("limit", strconv.Itoa(limit))
	if from != "" {
		qps.Set("from", from)
	}
	u := v.DestinationServer + "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/messages?" + qps.Encode()
	req, err := v.newRequest(ctx, "GET", u, nil)
	if err != nil {
		return timeline.Page{}, fmt.Errorf("FetchBackwards: NewRequest failed: %w", err)
	}
	body, err := v.do(req)
	if err != nil {
		return timeline.Page{}, fmt.Errorf("FetchBackwards: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return timeline.Page{}, fmt.Errorf("FetchBackwards: response body is not JSON")
	}
	response := gjson.ParseBytes(body)
	page := timeline.Page{
		End: response.Get("end").Str,
	}
	response.Get("chunk").ForEach(func(_, ev gjson.Result) bool {
		page.Events = append(page.Events, json.RawMessage(ev.Raw))
		return true
	})
	return page, nil
}

// CreateRoom creates a room and returns its ID.
func (v *HTTPClient) CreateRoom(ctx context.Context, params api.CreateRoomParameters) (string, error) {
	reqBody, err := params.RequestJSON()
	if err != nil {
		return "", fmt.Errorf("CreateRoom: %w", err)
	}
	req, err := v.newRequest(ctx, "POST", v.DestinationServer+"/_matrix/client/v3/createRoom", reqBody)
	if err != nil {
		return "", fmt.Errorf("CreateRoom: NewRequest failed: %w", err)
	}
	body, err := v.do(req)
	if err != nil {
		return "", fmt.Errorf("CreateRoom: %w", err)
	}
	roomID := gjson.GetBytes(body, "room_id").Str
	if roomID == "" {
		return "", fmt.Errorf("CreateRoom: response has no room_id")
	}
	return roomID, nil
}
