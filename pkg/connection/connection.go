// Package connection owns the process-wide socket.io connection. The first
// caller decides the server URL; every later caller shares that socket.
package connection

import (
	"sync"
	"time"

	"github.com/dostenterprises/socketlink/pkg/logger"
	"github.com/dostenterprises/socketlink/pkg/socketio"
)

// Handle is the shared connection as seen by callers
type Handle interface {
	ID() string
	Connected() bool
	On(event string, fn socketio.Listener) func()
	Emit(event string, args ...any) error
	Connect()
	Close() error
}

// Factory constructs a handle that has not started connecting yet
type Factory func(url string, opts socketio.Options) Handle

// Logger is the diagnostic sink; *log.Logger from charmbracelet/log satisfies it
type Logger interface {
	Info(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// DefaultOptions returns the fixed options of the shared connection:
// websocket transport only, unlimited reconnection with a constant one
// second delay. AutoConnect is off so diagnostics attach before the first
// event can fire.
func DefaultOptions() socketio.Options {
	opts := socketio.DefaultOptions()
	opts.Transports = []string{socketio.TransportWebsocket}
	opts.Reconnection = true
	opts.ReconnectionAttempts = socketio.Unlimited
	opts.ReconnectionDelay = 1000 * time.Millisecond
	opts.AutoConnect = false
	return opts
}

// SocketFactory builds real socket.io sockets
func SocketFactory(url string, opts socketio.Options) Handle {
	return socketio.New(url, opts)
}

// Accessor lazily creates and memoizes one Handle
type Accessor struct {
	factory Factory
	logger  Logger

	mu     sync.Mutex
	handle Handle
}

// NewAccessor creates an accessor. A nil factory builds real sockets and a
// nil logger writes through the package logger.
func NewAccessor(factory Factory, l Logger) *Accessor {
	if factory == nil {
		factory = SocketFactory
	}
	return &Accessor{factory: factory, logger: l}
}

func (a *Accessor) log() Logger {
	if a.logger != nil {
		return a.logger
	}
	return logger.Default()
}

// Get returns the shared handle, creating it for url on the first call.
// Later calls ignore url. Get never blocks on the network and never fails.
func (a *Accessor) Get(url string) Handle {
	l := a.log()
	l.Info("GetConnection called", "url", url)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle != nil {
		l.Info("Returning existing connection", "connected", a.handle.Connected())
		return a.handle
	}

	l.Info("Creating new connection", "url", url)
	h := a.factory(url, DefaultOptions())
	AttachDiagnostics(h, l)
	a.handle = h
	h.Connect()

	return h
}

// Current returns the memoized handle without creating one
func (a *Accessor) Current() Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// Reset forgets the memoized handle and closes it. The next Get creates a
// new one.
func (a *Accessor) Reset() {
	a.mu.Lock()
	h := a.handle
	a.handle = nil
	a.mu.Unlock()

	if h != nil {
		if err := h.Close(); err != nil {
			a.log().Error("Closing connection on reset failed", "error", err)
		}
	}
}

// AttachDiagnostics logs the lifecycle events of h. The observers only log.
func AttachDiagnostics(h Handle, l Logger) {
	h.On(socketio.EventConnect, func(args ...any) {
		l.Info("Socket connected", "id", h.ID())
	})
	h.On(socketio.EventDisconnect, func(args ...any) {
		l.Info("Socket disconnected", "reason", firstArg(args))
	})
	h.On(socketio.EventConnectError, func(args ...any) {
		l.Error("Socket connect_error", "error", firstArg(args))
	})
	h.On(socketio.EventError, func(args ...any) {
		l.Error("Socket error", "error", firstArg(args))
	})
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

var defaultAccessor = NewAccessor(nil, nil)

// GetConnection returns the process-wide connection, creating it for url
// on the first call
func GetConnection(url string) Handle {
	return defaultAccessor.Get(url)
}

// ResetDefault drops the process-wide connection
func ResetDefault() {
	defaultAccessor.Reset()
}
