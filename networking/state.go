package networking

import "fmt"

type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusReconnecting:
		return "Reconnecting"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("ConnectionStatus(%d)", int(s))
	}
}

// ConnectionState is the Transport's single source of truth about the socket.
// Attempt is only set while Reconnecting, Reason only in the Error state.
type ConnectionState struct {
	Status  ConnectionStatus
	Attempt int
	Reason  error
}

var (
	Disconnected = ConnectionState{Status: StatusDisconnected}
	Connecting   = ConnectionState{Status: StatusConnecting}
	Connected    = ConnectionState{Status: StatusConnected}
)

func Reconnecting(attempt int) ConnectionState {
	return ConnectionState{Status: StatusReconnecting, Attempt: attempt}
}

func ErrorState(reason error) ConnectionState {
	return ConnectionState{Status: StatusError, Reason: reason}
}

func (s ConnectionState) IsConnected() bool {
	return s.Status == StatusConnected
}

func (s ConnectionState) String() string {
	switch s.Status {
	case StatusReconnecting:
		return fmt.Sprintf("Reconnecting(%d)", s.Attempt)
	case StatusError:
		if s.Reason == nil {
			return "Error"
		}
		return fmt.Sprintf("Error(%v)", s.Reason)
	default:
		return s.Status.String()
	}
}
