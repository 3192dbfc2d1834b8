// Package endpoint resolves a listen URL into a bound, listening socket.
//
// Two schemes are recognized: file:// addresses a local stream socket by
// filesystem path, tcp:// addresses a network socket by host and port.
// Anything else is a fatal configuration error surfaced before any socket
// is created.
package endpoint

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
)

const (
	// SchemeFile addresses a local socket by filesystem path.
	SchemeFile = "file"

	// SchemeTCP addresses a network socket by host and port.
	SchemeTCP = "tcp"

	// DefaultHost is used when a tcp URL omits the host.
	DefaultHost = "127.0.0.1"

	// DefaultPort is used when a tcp URL omits the port.
	DefaultPort = 5640

	// Backlog is the fixed listen backlog. Connection attempts beyond it
	// are held by the OS; this layer applies no further backpressure.
	Backlog = 5
)

// DefaultURL is the endpoint used when none is configured.
const DefaultURL = "file:///var/tmp/revfs.socket"

// Endpoint is the parsed, immutable form of a listen URL.
type Endpoint struct {
	// Scheme is SchemeFile or SchemeTCP.
	Scheme string

	// Path is the socket path (file scheme only).
	Path string

	// Host and Port address the network socket (tcp scheme only).
	Host string
	Port int

	raw string
}

// Parse resolves a listen URL. For the file scheme, sandboxPrefix is
// prepended to the socket path when set, so a sandboxed process can be
// redirected into its own filesystem namespace.
func Parse(rawURL, sandboxPrefix string) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("malformed endpoint URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case SchemeFile:
		path := u.Path
		if u.Host != "" {
			// file://relative/path puts the first component in the host.
			path = "/" + u.Host + u.Path
		}
		if path == "" {
			return nil, fmt.Errorf("endpoint URL %q: missing socket path", rawURL)
		}
		if sandboxPrefix != "" {
			path = filepath.Join(sandboxPrefix, path)
		}
		return &Endpoint{Scheme: SchemeFile, Path: path, raw: rawURL}, nil

	case SchemeTCP:
		host := u.Hostname()
		if host == "" {
			host = DefaultHost
		}
		port := DefaultPort
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil || port < 0 || port > 65535 {
				return nil, fmt.Errorf("endpoint URL %q: invalid port %q", rawURL, p)
			}
		}
		return &Endpoint{Scheme: SchemeTCP, Host: host, Port: port, raw: rawURL}, nil

	default:
		return nil, fmt.Errorf("unknown endpoint scheme %q in %q", u.Scheme, rawURL)
	}
}

// String reports the URL the endpoint was parsed from.
func (e *Endpoint) String() string {
	return e.raw
}
