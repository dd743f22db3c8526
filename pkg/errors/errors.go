package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrorType categorizes different error types
type ErrorType string

const (
	// Network errors
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeTimeout ErrorType = "timeout"

	// Connection errors
	ErrorTypeConnect              ErrorType = "connect"
	ErrorTypeTransport            ErrorType = "transport"
	ErrorTypeUnsupportedTransport ErrorType = "unsupported_transport"
	ErrorTypeInvalidURL           ErrorType = "invalid_url"
	ErrorTypeNotConnected         ErrorType = "not_connected"

	// Protocol errors
	ErrorTypeProtocol       ErrorType = "protocol"
	ErrorTypeServerRejected ErrorType = "server_rejected"
	ErrorTypeReservedEvent  ErrorType = "reserved_event"

	// Unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// SocketError represents a structured error with context
type SocketError struct {
	Type       ErrorType
	Message    string
	Cause      error
	Suggestion string
}

// Error implements the error interface
func (e *SocketError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// WithSuggestion adds a helpful suggestion to the error
func (e *SocketError) WithSuggestion(suggestion string) *SocketError {
	e.Suggestion = suggestion
	return e
}

// HasSuggestion returns true if the error has a suggestion
func (e *SocketError) HasSuggestion() bool {
	return e.Suggestion != ""
}

// Unwrap returns the underlying error
func (e *SocketError) Unwrap() error {
	return e.Cause
}

// Is matches any SocketError of the same type, so callers can test
// errors.Is(err, &SocketError{Type: ErrorTypeTimeout}).
func (e *SocketError) Is(target error) bool {
	var t *SocketError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// NewSocketError creates a new socket error
func NewSocketError(errorType ErrorType, message string, cause error) *SocketError {
	return &SocketError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NetworkError creates a network error
func NetworkError(cause error) *SocketError {
	err := NewSocketError(ErrorTypeNetwork, "Could not reach server", cause)
	err.Suggestion = "Check your network connection and that the server is running."
	return err
}

// TimeoutError creates a timeout error
func TimeoutError(cause error) *SocketError {
	err := NewSocketError(ErrorTypeTimeout, "Connection timed out", cause)
	err.Suggestion = "The server is taking too long to respond. It will be retried automatically."
	return err
}

// ConnectError wraps a failed connection attempt
func ConnectError(cause error) *SocketError {
	return NewSocketError(ErrorTypeConnect, "Connection attempt failed", cause)
}

// TransportError wraps a failure of an established transport
func TransportError(cause error) *SocketError {
	return NewSocketError(ErrorTypeTransport, "Transport error", cause)
}

// UnsupportedTransportError reports that none of the requested transports can be used
func UnsupportedTransportError(transports []string) *SocketError {
	err := NewSocketError(ErrorTypeUnsupportedTransport,
		fmt.Sprintf("No supported transport in [%s]", strings.Join(transports, ", ")),
		nil)
	err.Suggestion = "Only the websocket transport is available."
	return err
}

// InvalidURLError reports a server URL that cannot be dialed
func InvalidURLError(rawURL string, cause error) *SocketError {
	err := NewSocketError(ErrorTypeInvalidURL, fmt.Sprintf("Invalid server URL %q", rawURL), cause)
	err.Suggestion = "Use an http, https, ws or wss URL such as https://host:port."
	return err
}

// NotConnectedError is returned when sending without an open session
func NotConnectedError() *SocketError {
	return NewSocketError(ErrorTypeNotConnected, "Not connected", nil)
}

// ProtocolError reports a malformed or unexpected packet
func ProtocolError(message string) *SocketError {
	return NewSocketError(ErrorTypeProtocol, message, nil)
}

// ServerRejectedError reports a CONNECT_ERROR sent by the server
func ServerRejectedError(message string) *SocketError {
	err := NewSocketError(ErrorTypeServerRejected, message, nil)
	err.Suggestion = "The server refused the namespace connection. Check the credentials sent in the handshake."
	return err
}

// ReservedEventError is returned when emitting a lifecycle event name
func ReservedEventError(event string) *SocketError {
	return NewSocketError(ErrorTypeReservedEvent, fmt.Sprintf("%q is a reserved event name", event), nil)
}

// CategorizeError converts a standard error into a SocketError
func CategorizeError(err error) *SocketError {
	if err == nil {
		return nil
	}

	var sockErr *SocketError
	if errors.As(err, &sockErr) {
		return sockErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimeoutError(err)
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		err := TransportError(err)
		err.Suggestion = "The server did not accept the websocket upgrade. Check the URL and socket path."
		return err
	}

	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "connection refused"):
		return NetworkError(err)
	case strings.Contains(errMsg, "no such host"):
		return NetworkError(err)
	case strings.Contains(errMsg, "timeout"):
		return TimeoutError(err)
	case strings.Contains(errMsg, "context deadline exceeded"):
		return TimeoutError(err)
	default:
		return NewSocketError(ErrorTypeUnknown, errMsg, nil)
	}
}

// FormatError returns a user-friendly error message
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	sockErr := CategorizeError(err)
	var sb strings.Builder

	sb.WriteString("Error")
	if sockErr.Type != ErrorTypeUnknown {
		sb.WriteString(" (")
		sb.WriteString(string(sockErr.Type))
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(sockErr.Error())
	sb.WriteString("\n")

	if sockErr.HasSuggestion() {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(sockErr.Suggestion)
		sb.WriteString("\n")
	}

	return sb.String()
}
