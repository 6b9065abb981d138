package networking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Reconnecting(3)", Reconnecting(3).String())
	assert.Equal(t, "Error(boom)", ErrorState(errors.New("boom")).String())
	assert.Equal(t, "Error", ErrorState(nil).String())
	assert.Equal(t, "ConnectionStatus(42)", ConnectionStatus(42).String())
}

func TestConnectionStateIsConnected(t *testing.T) {
	assert.True(t, Connected.IsConnected())
	for _, state := range []ConnectionState{Disconnected, Connecting, Reconnecting(1), ErrorState(nil)} {
		assert.False(t, state.IsConnected(), state.String())
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("connection refused")
	exhausted := &ExhaustedRetriesError{Attempts: 5, Last: &TransportError{Op: "dial", Err: cause}}

	assert.ErrorIs(t, exhausted, cause)
	var transportErr *TransportError
	assert.ErrorAs(t, exhausted, &transportErr)
	assert.Equal(t, "dial", transportErr.Op)
	assert.Contains(t, exhausted.Error(), "5 attempts")
}
