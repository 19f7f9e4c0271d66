package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Network identifiers accepted by Address.
const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
	NetworkWS   = "ws"
)

// Address identifies a listener. Host and Port are used for tcp, Path for
// unix, and URL for ws.
type Address struct {
	Network string
	Host    string
	Port    int
	Path    string
	URL     string
}

// TCP returns a tcp address.
func TCP(host string, port int) Address {
	return Address{Network: NetworkTCP, Host: host, Port: port}
}

// ParseAddress parses "host:port", "unix:///path/to.sock", "ws://..." or
// "wss://...". Port 0 is accepted for listening; Validate rejects it.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Address{}, fmt.Errorf("empty address")
	case strings.HasPrefix(s, "unix://"):
		p := strings.TrimPrefix(s, "unix://")
		if p == "" {
			return Address{}, fmt.Errorf("unix address %q has no path", s)
		}
		return Address{Network: NetworkUnix, Path: p}, nil
	case strings.HasPrefix(s, "ws://"), strings.HasPrefix(s, "wss://"):
		if _, err := url.Parse(s); err != nil {
			return Address{}, fmt.Errorf("invalid websocket url: %w", err)
		}
		return Address{Network: NetworkWS, URL: s}, nil
	}

	s = strings.TrimPrefix(s, "tcp://")
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Address{}, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		host = "localhost"
	}
	return TCP(host, port), nil
}

// Validate checks that the fields required by the network are set.
func (a Address) Validate() error {
	switch a.network() {
	case NetworkTCP:
		if a.Port <= 0 || a.Port > 65535 {
			return fmt.Errorf("invalid port %d", a.Port)
		}
	case NetworkUnix:
		if a.Path == "" {
			return fmt.Errorf("unix address requires a path")
		}
	case NetworkWS:
		if a.URL == "" {
			return fmt.Errorf("ws address requires a url")
		}
	default:
		return fmt.Errorf("unsupported network %q", a.Network)
	}
	return nil
}

func (a Address) network() string {
	if a.Network == "" {
		return NetworkTCP
	}
	return a.Network
}

func (a Address) host() string {
	if a.Host == "" {
		return "localhost"
	}
	return a.Host
}

// String returns the dial target in a form ParseAddress accepts.
func (a Address) String() string {
	switch a.network() {
	case NetworkUnix:
		return "unix://" + a.Path
	case NetworkWS:
		return a.URL
	default:
		return net.JoinHostPort(a.host(), strconv.Itoa(a.Port))
	}
}
