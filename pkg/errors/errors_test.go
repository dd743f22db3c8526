package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// TestNewSocketError creates and validates a socket error
func TestNewSocketError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewSocketError(ErrorTypeProtocol, "Test error", cause)

	require.NotNil(t, err)
	assert.Equal(t, ErrorTypeProtocol, err.Type)
	assert.Equal(t, "Test error: underlying error", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestWithSuggestion(t *testing.T) {
	err := NewSocketError(ErrorTypeProtocol, "Test", nil)
	assert.False(t, err.HasSuggestion())

	result := err.WithSuggestion("Try something else")

	assert.True(t, result.HasSuggestion())
	assert.Equal(t, "Try something else", result.Suggestion)
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name       string
		err        *SocketError
		errType    ErrorType
		suggestion bool
	}{
		{"network", NetworkError(cause), ErrorTypeNetwork, true},
		{"timeout", TimeoutError(cause), ErrorTypeTimeout, true},
		{"connect", ConnectError(cause), ErrorTypeConnect, false},
		{"transport", TransportError(cause), ErrorTypeTransport, false},
		{"unsupported_transport", UnsupportedTransportError([]string{"polling"}), ErrorTypeUnsupportedTransport, true},
		{"invalid_url", InvalidURLError("::", cause), ErrorTypeInvalidURL, true},
		{"not_connected", NotConnectedError(), ErrorTypeNotConnected, false},
		{"protocol", ProtocolError("bad packet"), ErrorTypeProtocol, false},
		{"server_rejected", ServerRejectedError("not authorized"), ErrorTypeServerRejected, true},
		{"reserved_event", ReservedEventError("connect"), ErrorTypeReservedEvent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.errType, tt.err.Type)
			assert.Equal(t, tt.suggestion, tt.err.HasSuggestion())
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestUnsupportedTransportError_ListsTransports(t *testing.T) {
	err := UnsupportedTransportError([]string{"polling", "webtransport"})
	assert.Contains(t, err.Error(), "polling, webtransport")
}

func TestIs_MatchesByType(t *testing.T) {
	err := fmt.Errorf("dial: %w", NotConnectedError())

	assert.True(t, errors.Is(err, &SocketError{Type: ErrorTypeNotConnected}))
	assert.False(t, errors.Is(err, &SocketError{Type: ErrorTypeTimeout}))
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"already categorized", fmt.Errorf("wrapped: %w", ProtocolError("x")), ErrorTypeProtocol},
		{"net timeout", timeoutErr{}, ErrorTypeTimeout},
		{"bad handshake", fmt.Errorf("dial: %w", websocket.ErrBadHandshake), ErrorTypeTransport},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), ErrorTypeNetwork},
		{"no such host", errors.New("dial tcp: lookup nowhere: no such host"), ErrorTypeNetwork},
		{"deadline", context.DeadlineExceeded, ErrorTypeTimeout},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, tt.expected, result.Type)
		})
	}
}

func TestCategorizeError_Nil(t *testing.T) {
	assert.Nil(t, CategorizeError(nil))
}

func TestFormatError(t *testing.T) {
	assert.Empty(t, FormatError(nil))

	out := FormatError(NetworkError(errors.New("connection refused")))
	assert.True(t, strings.HasPrefix(out, "Error (network): "))
	assert.Contains(t, out, "Suggestion: ")

	out = FormatError(errors.New("plain failure"))
	assert.Equal(t, "Error: plain failure\n", out)
}
