package networking

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected is returned by Connect while a connection is live or being set up.
	ErrAlreadyConnected = errors.New("transport is already connected or connecting")
	ErrNotConnected     = errors.New("transport is not connected")
	errServerDisconnect = errors.New("server requested disconnection")
)

// AddressError means the connection address could not be built. Connect fails
// immediately and no retry is scheduled.
type AddressError struct {
	Address string
	Reason  string
	Err     error
}

func (e *AddressError) Error() string {
	if e.Address == "" {
		return "invalid connection address: " + e.Reason
	}
	return fmt.Sprintf("invalid connection address %q: %s", e.Address, e.Reason)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

// TransportError is an abrupt close, a dial failure or an I/O failure on the socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("gave up reconnecting after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

// ProtocolError describes an inbound frame that could not be understood.
type ProtocolError struct {
	Frame  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (frame %s)", e.Reason, e.Frame)
}

// ServerError carries the message of an inbound "error" frame.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}
