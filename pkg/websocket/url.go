package websocket

import (
	"fmt"
	"net/url"
	"strconv"
)

// wsURL holds the URL components the engine actually consumes: scheme, host,
// port (defaulted from the scheme when absent), path, and a synthesized
// origin string. A query string is kept as part of Path; the fragment and
// userinfo are ignored, per the engine's deliberately narrow external
// interface.
type wsURL struct {
	Scheme string // "ws" or "wss"
	Host   string
	Port   int
	Path   string
	Origin string
}

// parseURL parses raw as a "ws://host[:port]/path" or "wss://host[:port]/path"
// address, defaulting the port to 80 or 443 respectively.
func parseURL(raw string) (*wsURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, newError(KindRuntime, "parseURL", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, newError(KindRuntime, "parseURL", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return nil, newError(KindRuntime, "parseURL", fmt.Errorf("missing host in %q", raw))
	}

	port := u.Port()
	portNum := 80
	if u.Scheme == "wss" {
		portNum = 443
	}
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, newError(KindRuntime, "parseURL", fmt.Errorf("invalid port %q", port))
		}
		portNum = n
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	httpScheme := "http"
	if u.Scheme == "wss" {
		httpScheme = "https"
	}
	origin := fmt.Sprintf("%s://%s", httpScheme, u.Host)

	return &wsURL{
		Scheme: u.Scheme,
		Host:   host,
		Port:   portNum,
		Path:   path,
		Origin: origin,
	}, nil
}

// hostPort formats the host and port the way a Host header or TCP dial
// address expects: "host:port".
func (u *wsURL) hostPort() string {
	return u.Host + ":" + strconv.Itoa(u.Port)
}
