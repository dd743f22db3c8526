package socketio

import (
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

// Unlimited disables the reconnection attempt limit
const Unlimited = -1

// Transport names as understood by socket.io servers
const (
	TransportPolling   = "polling"
	TransportWebsocket = "websocket"
)

const (
	defaultPath              = "/socket.io/"
	defaultReconnectionDelay = 1000 * time.Millisecond
	defaultTimeout           = 20 * time.Second

	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second
)

// Options configures a Socket. The zero value of a field falls back to
// the socket.io client default, except booleans which are taken as given.
type Options struct {
	// Path is the engine.io endpoint path on the server
	Path string
	// Transports lists the allowed transports. Only websocket is implemented.
	Transports []string

	Reconnection bool
	// ReconnectionAttempts caps consecutive failed attempts; Unlimited for no cap
	ReconnectionAttempts int
	// ReconnectionDelay is the constant wait between attempts
	ReconnectionDelay time.Duration

	// Timeout bounds the websocket dial plus the engine.io and socket.io handshakes
	Timeout time.Duration

	// Auth is sent with the namespace CONNECT packet
	Auth map[string]any

	// AutoConnect starts connecting from New
	AutoConnect bool

	// Dialer overrides the websocket dialer
	Dialer *websocket.Dialer
}

// DefaultOptions returns the socket.io client defaults
func DefaultOptions() Options {
	return Options{
		Path:                 defaultPath,
		Transports:           []string{TransportPolling, TransportWebsocket},
		Reconnection:         true,
		ReconnectionAttempts: Unlimited,
		ReconnectionDelay:    defaultReconnectionDelay,
		Timeout:              defaultTimeout,
		AutoConnect:          true,
	}
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = defaultPath
	}
	if len(o.Transports) == 0 {
		o.Transports = []string{TransportPolling, TransportWebsocket}
	}
	if o.ReconnectionAttempts < 0 {
		o.ReconnectionAttempts = Unlimited
	}
	if o.ReconnectionDelay <= 0 {
		o.ReconnectionDelay = defaultReconnectionDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

func (o Options) allows(transport string) bool {
	return slices.Contains(o.Transports, transport)
}
