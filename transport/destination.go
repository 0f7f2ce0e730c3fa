package transport

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// A destination starting with / is the path of a unix socket the proxy listens on.
func isUnixSocket(destination string) bool {
	return strings.HasPrefix(destination, "/")
}

// baseURL returns the URL requests are made against. Requests over a unix socket still need a
// host, which is ignored.
func baseURL(destination string) string {
	if isUnixSocket(destination) {
		return "http://unix"
	}
	return strings.TrimSuffix(destination, "/")
}

// roundTripper returns the transport to reach destination with.
func roundTripper(destination string) http.RoundTripper {
	if !isUnixSocket(destination) {
		return http.DefaultTransport
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", destination)
	}
	return t
}
