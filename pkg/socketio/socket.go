// Package socketio is a socket.io v5 client running over the engine.io v4
// websocket transport.
package socketio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dostenterprises/socketlink/pkg/engineio"
	sockerrors "github.com/dostenterprises/socketlink/pkg/errors"
	"github.com/dostenterprises/socketlink/pkg/logger"
	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
)

// Listener receives the arguments of an event
type Listener func(args ...any)

// Lifecycle events emitted by the socket itself
const (
	EventConnect          = "connect"
	EventConnectError     = "connect_error"
	EventDisconnect       = "disconnect"
	EventError            = "error"
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnectFailed  = "reconnect_failed"
)

// Disconnect reasons passed to disconnect listeners
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// IsReservedEvent reports whether event is emitted by the socket itself
func IsReservedEvent(event string) bool {
	switch event {
	case EventConnect, EventConnectError, EventDisconnect, EventError,
		EventReconnectAttempt, EventReconnectFailed:
		return true
	}
	return false
}

// ConnectionState represents the state of the socket
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesReceived int64
	MessagesSent     int64
	ReconnectCount   int
	LastError        string
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Socket is one socket.io connection to a namespace. It owns a background
// loop that dials, handshakes, reads and reconnects; listeners run on that
// loop in event order.
type Socket struct {
	rawURL string
	opts   Options

	state atomic.Value // ConnectionState

	mu        sync.RWMutex
	conn      *websocket.Conn
	id        string
	namespace string

	writeMu sync.Mutex

	listenersMu    sync.RWMutex
	listeners      map[string][]listenerEntry
	nextListenerID uint64

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	statsLock sync.RWMutex
	stats     ConnectionStats
}

// session is an established engine.io connection with a joined namespace
type session struct {
	conn      *websocket.Conn
	handshake engineio.Handshake
	sid       string
	namespace string
	release   func() bool
}

// New creates a socket for rawURL. It never fails: a malformed URL or an
// unreachable server is reported through connect_error listeners once the
// socket starts connecting.
func New(rawURL string, opts Options) *Socket {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		rawURL:    rawURL,
		opts:      opts.withDefaults(),
		listeners: make(map[string][]listenerEntry),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.state.Store(StateDisconnected)

	if s.opts.AutoConnect {
		s.Connect()
	}
	return s
}

// URL returns the URL the socket was created with
func (s *Socket) URL() string {
	return s.rawURL
}

// Options returns the effective options
func (s *Socket) Options() Options {
	return s.opts
}

// Connect starts the connection loop. It returns immediately; calling it
// again, or after Close, has no effect.
func (s *Socket) Connect() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Close disconnects from the server and stops reconnecting.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.RLock()
		conn, namespace := s.conn, s.namespace
		s.mu.RUnlock()

		if conn != nil && s.Connected() {
			pkt := Packet{Type: PacketDisconnect, Namespace: namespace, ID: noID}
			if err := s.writePacket(conn, pkt); err != nil {
				logger.Debug("Failed to send disconnect packet", "error", err)
			}
		}

		s.cancel()

		// never started: nothing will close done
		s.startOnce.Do(func() {
			s.setState(StateClosed)
			close(s.done)
		})
	})
	return nil
}

// Done is closed once the connection loop has stopped for good
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// ID returns the socket.io session id, empty while not connected
func (s *Socket) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Connected returns true if the namespace connection is established
func (s *Socket) Connected() bool {
	return s.getState() == StateConnected
}

// State returns the current connection state
func (s *Socket) State() ConnectionState {
	return s.getState()
}

// On subscribes to an event and returns the unsubscribe function
func (s *Socket) On(event string, fn Listener) func() {
	s.listenersMu.Lock()
	s.nextListenerID++
	id := s.nextListenerID
	s.listeners[event] = append(s.listeners[event], listenerEntry{id: id, fn: fn})
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()

		entries := s.listeners[event]
		for i, e := range entries {
			if e.id == id {
				s.listeners[event] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
	}
}

// Emit sends an event to the server. Messages are not buffered while
// disconnected.
func (s *Socket) Emit(event string, args ...any) error {
	if IsReservedEvent(event) {
		return sockerrors.ReservedEventError(event)
	}

	s.mu.RLock()
	conn, namespace := s.conn, s.namespace
	s.mu.RUnlock()

	if conn == nil || !s.Connected() {
		return sockerrors.NotConnectedError()
	}

	pkt, err := eventPacket(namespace, event, args)
	if err != nil {
		return err
	}
	if err := s.writePacket(conn, pkt); err != nil {
		return sockerrors.TransportError(err)
	}

	s.recordMessageSent()
	return nil
}

// Stats returns connection statistics
func (s *Socket) Stats() ConnectionStats {
	s.statsLock.RLock()
	defer s.statsLock.RUnlock()
	return s.stats
}

// Private methods

func (s *Socket) run() {
	defer close(s.done)
	defer func() {
		if s.ctx.Err() != nil {
			s.setState(StateClosed)
		} else {
			s.setState(StateDisconnected)
		}
	}()

	delay := backoff.NewConstantBackOff(s.opts.ReconnectionDelay)
	attempts := 0

	for {
		if attempts == 0 {
			s.setState(StateConnecting)
		} else {
			s.setState(StateReconnecting)
			s.recordReconnect()
			s.emit(EventReconnectAttempt, attempts)
		}

		connected, retry := s.runSession()
		if connected {
			attempts = 0
		}

		if s.ctx.Err() != nil || !retry || !s.opts.Reconnection {
			return
		}

		attempts++
		if s.opts.ReconnectionAttempts != Unlimited && attempts > s.opts.ReconnectionAttempts {
			logger.Warn("Max reconnection attempts reached", "url", s.rawURL, "attempts", s.opts.ReconnectionAttempts)
			s.emit(EventReconnectFailed)
			return
		}

		wait := delay.NextBackOff()
		logger.Debug("Reconnecting socket", "url", s.rawURL, "attempt", attempts, "wait_ms", wait.Milliseconds())

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runSession performs one connection attempt and, when it succeeds, reads
// until the session ends. It reports whether the namespace was joined and
// whether a reconnection may follow.
func (s *Socket) runSession() (connected bool, retry bool) {
	sess, err := s.open()
	if err != nil {
		if s.ctx.Err() != nil {
			return false, false
		}
		s.recordError(err.Error())
		s.emit(EventConnectError, err)

		var sockErr *sockerrors.SocketError
		rejected := errors.As(err, &sockErr) && sockErr.Type == sockerrors.ErrorTypeServerRejected
		return false, !rejected
	}
	defer sess.release()

	s.mu.Lock()
	s.conn = sess.conn
	s.id = sess.sid
	s.namespace = sess.namespace
	s.mu.Unlock()

	s.setState(StateConnected)
	s.recordConnected()
	logger.Debug("Socket connected", "url", s.rawURL, "sid", sess.sid, "namespace", sess.namespace)
	s.emit(EventConnect)

	reason := s.readLoop(sess)

	s.mu.Lock()
	s.conn = nil
	s.id = ""
	s.mu.Unlock()
	sess.conn.Close()

	s.setState(StateDisconnected)
	s.recordDisconnected()
	logger.Debug("Socket disconnected", "url", s.rawURL, "reason", reason)
	s.emit(EventDisconnect, reason)

	return true, reason != ReasonServerDisconnect && reason != ReasonClientDisconnect
}

// open dials the engine.io endpoint and joins the namespace.
func (s *Socket) open() (*session, error) {
	target, namespace, err := s.endpoint()
	if err != nil {
		return nil, err
	}
	if !s.opts.allows(TransportWebsocket) {
		return nil, sockerrors.UnsupportedTransportError(s.opts.Transports)
	}

	dialer := s.opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: s.opts.Timeout,
		}
	}

	dialCtx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()

	logger.Debug("Dialing socket", "target", target)
	conn, resp, err := dialer.DialContext(dialCtx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, connectFailure(err)
	}

	release := context.AfterFunc(s.ctx, func() {
		conn.Close()
	})
	fail := func(err error) (*session, error) {
		release()
		conn.Close()
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(s.opts.Timeout))

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return fail(connectFailure(err))
	}
	pkt, err := engineio.Decode(frame, false)
	if err != nil {
		return fail(sockerrors.ConnectError(err))
	}
	hs, err := engineio.ParseHandshake(pkt)
	if err != nil {
		return fail(sockerrors.ConnectError(err))
	}

	connectPkt := Packet{Type: PacketConnect, Namespace: namespace, ID: noID}
	if len(s.opts.Auth) > 0 {
		data, err := json.Marshal(s.opts.Auth)
		if err != nil {
			return fail(sockerrors.ConnectError(err))
		}
		connectPkt.Data = data
	}
	if err := s.writePacket(conn, connectPkt); err != nil {
		return fail(connectFailure(err))
	}

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			return fail(connectFailure(err))
		}
		pkt, err := engineio.Decode(frame, msgType == websocket.BinaryMessage)
		if err != nil {
			return fail(sockerrors.ConnectError(err))
		}

		switch pkt.Type {
		case engineio.PacketPing:
			if err := s.writeFrame(conn, engineio.Packet{Type: engineio.PacketPong}); err != nil {
				return fail(connectFailure(err))
			}
			continue
		case engineio.PacketClose:
			return fail(sockerrors.ConnectError(sockerrors.ProtocolError("server closed the session during handshake")))
		case engineio.PacketMessage:
		default:
			continue
		}
		if pkt.Binary {
			continue
		}

		reply, err := DecodePacket(pkt.Data)
		if err != nil {
			return fail(sockerrors.ConnectError(err))
		}
		if reply.Namespace != namespace {
			continue
		}

		switch reply.Type {
		case PacketConnect:
			sid, err := connectSID(reply.Data)
			if err != nil {
				return fail(sockerrors.ConnectError(err))
			}
			return &session{
				conn:      conn,
				handshake: hs,
				sid:       sid,
				namespace: namespace,
				release:   release,
			}, nil
		case PacketConnectError:
			return fail(sockerrors.ServerRejectedError(connectErrorMessage(reply.Data)))
		}
	}
}

// endpoint maps the socket URL onto the engine.io websocket URL and the
// namespace selected by the URL path.
func (s *Socket) endpoint() (string, string, error) {
	u, err := url.Parse(s.rawURL)
	if err != nil {
		return "", "", sockerrors.InvalidURLError(s.rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", "", sockerrors.InvalidURLError(s.rawURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return "", "", sockerrors.InvalidURLError(s.rawURL, errors.New("missing host"))
	}

	namespace := strings.TrimSuffix(u.Path, "/")
	if namespace == "" {
		namespace = "/"
	}

	q := u.Query()
	q.Set("EIO", engineio.Protocol)
	q.Set("transport", TransportWebsocket)

	u.Path = s.opts.Path
	u.RawPath = ""
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String(), namespace, nil
}

// readLoop handles frames until the session ends and returns the
// disconnect reason.
func (s *Socket) readLoop(sess *session) string {
	conn := sess.conn
	heartbeat := sess.handshake.PingIntervalDuration() + sess.handshake.PingTimeoutDuration()

	for {
		if heartbeat > 0 {
			conn.SetReadDeadline(time.Now().Add(heartbeat))
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			return s.disconnectReason(err)
		}

		pkt, err := engineio.Decode(frame, msgType == websocket.BinaryMessage)
		if err != nil {
			s.emit(EventError, err)
			continue
		}

		switch pkt.Type {
		case engineio.PacketPing:
			if err := s.writeFrame(conn, engineio.Packet{Type: engineio.PacketPong}); err != nil {
				s.emit(EventError, sockerrors.TransportError(err))
				return ReasonTransportError
			}
		case engineio.PacketClose:
			return ReasonTransportClose
		case engineio.PacketMessage:
			if pkt.Binary {
				s.emit(EventError, sockerrors.ProtocolError("binary attachments are not supported"))
				continue
			}
			if reason, done := s.handlePacket(sess.namespace, pkt.Data); done {
				return reason
			}
		}
	}
}

// handlePacket dispatches one socket.io packet. done is true when the
// server ended the namespace session.
func (s *Socket) handlePacket(namespace string, data []byte) (reason string, done bool) {
	p, err := DecodePacket(data)
	if err != nil {
		s.emit(EventError, err)
		return "", false
	}
	if p.Namespace != namespace {
		return "", false
	}

	switch p.Type {
	case PacketEvent:
		name, args, err := eventArgs(p.Data)
		if err != nil {
			s.emit(EventError, err)
			return "", false
		}
		if IsReservedEvent(name) {
			logger.Debug("Ignoring server event with reserved name", "event", name)
			return "", false
		}
		if p.ID != noID {
			logger.Debug("Server requested an acknowledgement, not supported", "event", name, "id", p.ID)
		}
		s.recordMessageReceived()
		s.emit(name, args...)
	case PacketAck:
		logger.Debug("Ignoring acknowledgement", "id", p.ID)
	case PacketDisconnect:
		return ReasonServerDisconnect, true
	case PacketConnectError:
		s.emit(EventError, sockerrors.ServerRejectedError(connectErrorMessage(p.Data)))
	}
	return "", false
}

func (s *Socket) disconnectReason(err error) string {
	if s.ctx.Err() != nil {
		return ReasonClientDisconnect
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ReasonTransportClose
	}

	s.recordError(err.Error())
	s.emit(EventError, sockerrors.TransportError(err))
	return ReasonTransportError
}

func (s *Socket) writePacket(conn *websocket.Conn, p Packet) error {
	data, err := EncodePacket(p)
	if err != nil {
		return err
	}
	return s.writeFrame(conn, engineio.Packet{Type: engineio.PacketMessage, Data: data})
}

func (s *Socket) writeFrame(conn *websocket.Conn, p engineio.Packet) error {
	frame, err := engineio.Encode(p)
	if err != nil {
		return err
	}

	msgType := websocket.TextMessage
	if p.Binary {
		msgType = websocket.BinaryMessage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(msgType, frame)
}

func (s *Socket) emit(event string, args ...any) {
	s.listenersMu.RLock()
	entries := append([]listenerEntry(nil), s.listeners[event]...)
	s.listenersMu.RUnlock()

	for _, e := range entries {
		s.invoke(event, e.fn, args)
	}
}

func (s *Socket) invoke(event string, fn Listener, args []any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Socket listener panicked", "event", event, "panic", r)
		}
	}()
	fn(args...)
}

// connectFailure categorizes a dial or handshake error
func connectFailure(err error) error {
	categorized := sockerrors.CategorizeError(err)
	if categorized.Type == sockerrors.ErrorTypeUnknown {
		return sockerrors.ConnectError(err)
	}
	return categorized
}

func (s *Socket) setState(state ConnectionState) {
	s.state.Store(state)
}

func (s *Socket) getState() ConnectionState {
	return s.state.Load().(ConnectionState)
}

func (s *Socket) recordMessageReceived() {
	s.statsLock.Lock()
	s.stats.MessagesReceived++
	s.statsLock.Unlock()
}

func (s *Socket) recordMessageSent() {
	s.statsLock.Lock()
	s.stats.MessagesSent++
	s.statsLock.Unlock()
}

func (s *Socket) recordReconnect() {
	s.statsLock.Lock()
	s.stats.ReconnectCount++
	s.statsLock.Unlock()
}

func (s *Socket) recordError(errMsg string) {
	s.statsLock.Lock()
	s.stats.LastError = errMsg
	s.statsLock.Unlock()
}

func (s *Socket) recordConnected() {
	s.statsLock.Lock()
	s.stats.ConnectedAt = time.Now()
	s.statsLock.Unlock()
}

func (s *Socket) recordDisconnected() {
	s.statsLock.Lock()
	s.stats.DisconnectedAt = time.Now()
	s.statsLock.Unlock()
}
