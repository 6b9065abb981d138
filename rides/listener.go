package rides

import (
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/networking"
)

// Listener receives ride-shaped events. Calls never interleave: they all run
// on the synchronizer's event loop.
type Listener interface {
	OnRideRequested(ride domain.Ride)
	OnRideStatusChanged(ride domain.Ride)
	OnRideAccepted(ride domain.Ride)
	OnRideCancelled(rideID domain.ID)
	OnDriverLocationUpdated(ride domain.Ride, location domain.Location)
	OnChatMessage(message domain.ChatMessage)
	OnConnectionState(state networking.ConnectionState)
}

type ListenerFuncs struct {
	RideRequested         func(domain.Ride)
	RideStatusChanged     func(domain.Ride)
	RideAccepted          func(domain.Ride)
	RideCancelled         func(domain.ID)
	DriverLocationUpdated func(domain.Ride, domain.Location)
	ChatMessage           func(domain.ChatMessage)
	ConnectionState       func(networking.ConnectionState)
}

func (l ListenerFuncs) OnRideRequested(ride domain.Ride) {
	if l.RideRequested != nil {
		l.RideRequested(ride)
	}
}

func (l ListenerFuncs) OnRideStatusChanged(ride domain.Ride) {
	if l.RideStatusChanged != nil {
		l.RideStatusChanged(ride)
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

func (l ListenerFuncs) OnDriverLocationUpdated(ride domain.Ride, location domain.Location) {
	if l.DriverLocationUpdated != nil {
		l.DriverLocationUpdated(ride, location)
	}
}

func (l ListenerFuncs) OnChatMessage(message domain.ChatMessage) {
	if l.ChatMessage != nil {
		l.ChatMessage(message)
	}
}

func (l ListenerFuncs) OnConnectionState(state networking.ConnectionState) {
	if l.ConnectionState != nil {
		l.ConnectionState(state)
	}
}
