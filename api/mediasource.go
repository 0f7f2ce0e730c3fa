package api

import (
	"net/url"
	"strings"

	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MediaSource points at a piece of media, either a plain mxc:// URI or an encrypted file whose
// URI is under "file".
type MediaSource struct {
	json      string
	url       string
	encrypted bool
}

// MediaSourceFromJSON parses {"url": "mxc://..."} or {"file": {"url": "mxc://...", ...}}.
func MediaSourceFromJSON(s string) (*MediaSource, error) {
	if !gjson.Valid(s) {
		return nil, internal.NewError(internal.KindMalformedInput, nil, "media source is not valid JSON")
	}
	parsed := gjson.Parse(s)
	if !parsed.IsObject() {
		return nil, internal.NewError(internal.KindMalformedInput, nil, "media source is not an object")
	}
	m := &MediaSource{json: s}
	if u := parsed.Get("url"); u.Exists() {
		m.url = u.Str
	} else if u := parsed.Get("file.url"); u.Exists() {
		m.url = u.Str
		m.encrypted = true
	} else {
		return nil, internal.NewError(internal.KindMalformedInput, nil, "media source has no url")
	}
	if _, _, err := splitMXC(m.url); err != nil {
		return nil, err
	}
	return m, nil
}

// MediaSourceFromURL wraps a plain, unencrypted mxc:// URI.
func MediaSourceFromURL(mxc string) (*MediaSource, error) {
	if _, _, err := splitMXC(mxc); err != nil {
		return nil, err
	}
	j, err := sjson.Set("{}", "url", mxc)
	if err != nil {
		return nil, internal.NewError(internal.KindMalformedInput, err, "media source")
	}
	return &MediaSource{json: j, url: mxc}, nil
}

func (m *MediaSource) ToJSON() string {
	return m.json
}

// URL returns the mxc:// URI.
func (m *MediaSource) URL() string {
	return m.url
}

// IsEncrypted returns true if the media must be decrypted with the keys in the JSON.
func (m *MediaSource) IsEncrypted() bool {
	return m.encrypted
}

// ResolveURL returns the HTTP URL to download the media from this homeserver.
func (m *MediaSource) ResolveURL(homeserver string) (string, error) {
	server, mediaID, err := splitMXC(m.url)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(strings.TrimSuffix(homeserver, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", internal.NewError(internal.KindMalformedInput, err, "homeserver URL %q", homeserver)
	}
	return base.JoinPath("_matrix", "media", "v3", "download", server, mediaID).String(), nil
}

func splitMXC(mxc string) (server, mediaID string, err error) {
	rest, ok := strings.CutPrefix(mxc, "mxc://")
	if !ok {
		return "", "", internal.NewError(internal.KindMalformedInput, nil, "%q is not an mxc:// URI", mxc)
	}
	server, mediaID, ok = strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" || strings.Contains(mediaID, "/") {
		return "", "", internal.NewError(internal.KindMalformedInput, nil, "%q is not an mxc:// URI", mxc)
	}
	return server, mediaID, nil
}
