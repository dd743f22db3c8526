// Package sockettest runs a minimal engine.io v4 / socket.io v5 server
// for tests. It answers the long-polling handshake and serves the
// websocket transport on /socket.io/.
package sockettest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
)

// Server is a fake socket.io server
type Server struct {
	*httptest.Server

	// RejectMessage, when set, answers every namespace CONNECT with a
	// CONNECT_ERROR carrying this message.
	RejectMessage string

	// PingInterval and PingTimeout are advertised in the handshake (ms)
	PingInterval int
	PingTimeout  int

	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]*sync.Mutex
	queries []url.Values
	auth    []map[string]any

	connects    atomic.Int32
	disconnects atomic.Int32
	pongs       atomic.Int32
	sessions    atomic.Int32

	// Connected receives the namespace of every accepted CONNECT
	Connected chan string
	// Received receives the raw socket.io packets sent by clients after CONNECT
	Received chan string
}

// NewServer starts a server and registers its shutdown with t.Cleanup
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		PingInterval: 25000,
		PingTimeout:  20000,
		conns:        make(map[*websocket.Conn]*sync.Mutex),
		Connected:    make(chan string, 64),
		Received:     make(chan string, 64),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		s.DropConnections()
		s.Close()
	})
	return s
}

// Connects returns how many namespace connections were accepted
func (s *Server) Connects() int {
	return int(s.connects.Load())
}

// Disconnects returns how many DISCONNECT packets clients sent
func (s *Server) Disconnects() int {
	return int(s.disconnects.Load())
}

// Pongs returns how many pong packets clients sent
func (s *Server) Pongs() int {
	return int(s.pongs.Load())
}

// Queries returns the query strings of all engine.io requests
func (s *Server) Queries() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.queries...)
}

// Auth returns the auth payloads of all CONNECT packets
func (s *Server) Auth() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.auth...)
}

// Emit sends an event to every connected client on the root namespace
func (s *Server) Emit(event string, args ...any) error {
	payload, err := json.Marshal(append([]any{event}, args...))
	if err != nil {
		return err
	}
	return s.Broadcast("42" + string(payload))
}

// Broadcast writes a raw engine.io frame to every connection
func (s *Server) Broadcast(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, wmu := range s.conns {
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(frame))
		wmu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Disconnect ends every namespace session from the server side
func (s *Server) Disconnect() error {
	return s.Broadcast("41")
}

// DropConnections closes every websocket without a close handshake
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
}

func (s *Server) handshake() string {
	sid := fmt.Sprintf("eio-%d", s.sessions.Add(1))
	return fmt.Sprintf(`{"sid":%q,"upgrades":["websocket"],"pingInterval":%d,"pingTimeout":%d,"maxPayload":1000000}`,
		sid, s.PingInterval, s.PingTimeout)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if r.URL.Path != "/socket.io/" || q.Get("EIO") != "4" {
		http.Error(w, "unknown endpoint", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	switch q.Get("transport") {
	case "polling":
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		io.WriteString(w, "0"+s.handshake())
		return
	case "websocket":
	default:
		http.Error(w, "unknown transport", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wmu := &sync.Mutex{}

	s.mu.Lock()
	s.conns[conn] = wmu
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	write := func(frame string) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}

	if err := write("0" + s.handshake()); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame := string(data)

		switch {
		case frame == "3":
			s.pongs.Add(1)
		case strings.HasPrefix(frame, "40"):
			namespace, payload := splitNamespace(frame[2:])
			if payload != "" {
				var auth map[string]any
				if json.Unmarshal([]byte(payload), &auth) == nil {
					s.mu.Lock()
					s.auth = append(s.auth, auth)
					s.mu.Unlock()
				}
			}
			prefix := ""
			if namespace != "/" {
				prefix = namespace + ","
			}
			if s.RejectMessage != "" {
				write(fmt.Sprintf(`44%s{"message":%q}`, prefix, s.RejectMessage))
				continue
			}
			n := s.connects.Add(1)
			if err := write(fmt.Sprintf(`40%s{"sid":"sock-%d"}`, prefix, n)); err != nil {
				return
			}
			select {
			case s.Connected <- namespace:
			default:
			}
		case strings.HasPrefix(frame, "41"):
			s.disconnects.Add(1)
			return
		case strings.HasPrefix(frame, "4"):
			select {
			case s.Received <- frame[1:]:
			default:
			}
		}
	}
}

func splitNamespace(rest string) (string, string) {
	if !strings.HasPrefix(rest, "/") {
		return "/", rest
	}
	i := strings.IndexByte(rest, ',')
	if i < 0 {
		return rest, ""
	}
	return rest[:i], rest[i+1:]
}

// WebsocketURL returns the server URL with the ws scheme
func (s *Server) WebsocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}
