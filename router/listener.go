package router

import (
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/networking"
)

// StatusChange is an inbound ride:status:changed event. Ride is set when the
// server sent the full ride alongside the id and status.
type StatusChange struct {
	RideID domain.ID
	Status domain.RideStatus
	Ride   *domain.Ride
}

// Listener receives typed realtime events, always on the event loop.
type Listener interface {
	OnConnectionState(state networking.ConnectionState)
	OnRideRequest(ride domain.Ride)
	OnRideStatusChanged(change StatusChange)
	OnDriverLocation(update domain.DriverLocationUpdate)
	OnRideAccepted(ride domain.Ride)
	OnRideCancelled(rideID domain.ID)
	OnChatMessage(message domain.ChatMessage)
	OnError(err error)
}

// ListenerFuncs adapts optional functions to a Listener.
type ListenerFuncs struct {
	ConnectionState   func(networking.ConnectionState)
	RideRequest       func(domain.Ride)
	RideStatusChanged func(StatusChange)
	DriverLocation    func(domain.DriverLocationUpdate)
	RideAccepted      func(domain.Ride)
	RideCancelled     func(domain.ID)
	ChatMessage       func(domain.ChatMessage)
	Error             func(error)
}

func (l ListenerFuncs) OnConnectionState(state networking.ConnectionState) {
	if l.ConnectionState != nil {
		l.ConnectionState(state)
	}
}

func (l ListenerFuncs) OnRideRequest(ride domain.Ride) {
	if l.RideRequest != nil {
		l.RideRequest(ride)
	}
}

func (l ListenerFuncs) OnRideStatusChanged(change StatusChange) {
	if l.RideStatusChanged != nil {
		l.RideStatusChanged(change)
	}
}

func (l ListenerFuncs) OnDriverLocation(update domain.DriverLocationUpdate) {
	if l.DriverLocation != nil {
		l.DriverLocation(update)
	}
}

func (l ListenerFuncs) OnRideAccepted(ride domain.Ride) {
	if l.RideAccepted != nil {
		l.RideAccepted(ride)
	}
}

func (l ListenerFuncs) OnRideCancelled(rideID domain.ID) {
	if l.RideCancelled != nil {
		l.RideCancelled(rideID)
	}
}

func (l ListenerFuncs) OnChatMessage(message domain.ChatMessage) {
	if l.ChatMessage != nil {
		l.ChatMessage(message)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
