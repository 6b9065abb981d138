package rides

import (
	"context"
	"fmt"

	"github.com/agaraleas/RideSync/api"
	"github.com/agaraleas/RideSync/dispatch"
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/logging"
	"github.com/agaraleas/RideSync/networking"
	"github.com/agaraleas/RideSync/router"
)

// Router is the realtime side the synchronizer drives.
type Router interface {
	Connect(ctx context.Context, userID domain.ID, role domain.Role) error
	Disconnect()
	IsConnected() bool
	JoinRideRoom(rideID domain.ID)
	LeaveRideRoom(rideID domain.ID)
	EmitRideStatusUpdate(rideID domain.ID, status domain.RideStatus)
	UpdateDriverLocation(driverID domain.ID, location domain.Location)
	SendChatMessage(rideID domain.ID, message string)
	Subscribe(l router.Listener) func()
}

// Synchronizer keeps the active rides in step with the server. Inbound events
// and command results are applied on the event loop, one at a time; commands
// reach the durable API first and the realtime channel second.
type Synchronizer struct {
	router    Router
	api       api.RideAPI
	loop      *dispatch.EventLoop
	logger    logging.AbstractLogger
	listeners dispatch.Listeners[Listener]
	cache     *activeRides

	unsubscribe func()
}

type SynchronizerOption func(*Synchronizer)

func WithLogger(logger logging.AbstractLogger) SynchronizerOption {
	return func(s *Synchronizer) { s.logger = logger }
}

// CreateSynchronizer subscribes to rt. The loop must be the one rt's
// transport delivers on.
func CreateSynchronizer(rt Router, rideAPI api.RideAPI, loop *dispatch.EventLoop, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		router: rt,
		api:    rideAPI,
		loop:   loop,
		logger: logging.ForComponent("rides"),
		cache:  newActiveRides(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubscribe = rt.Subscribe(router.ListenerFuncs{
		ConnectionState:   s.onConnectionState,
		RideRequest:       s.onRideRequest,
		RideStatusChanged: s.onRideStatusChanged,
		DriverLocation:    s.onDriverLocation,
		RideAccepted:      s.onRideAccepted,
		RideCancelled:     s.onRideCancelled,
		ChatMessage:       s.onChatMessage,
		Error:             s.onError,
	})
	return s
}

func (s *Synchronizer) Subscribe(l Listener) func() {
	return s.listeners.Add(l)
}

func (s *Synchronizer) Close() {
	s.unsubscribe()
}

func (s *Synchronizer) Connect(ctx context.Context, userID domain.ID, role domain.Role) error {
	return s.router.Connect(ctx, userID, role)
}

// Disconnect closes the realtime channel and forgets every cached ride.
func (s *Synchronizer) Disconnect() {
	s.router.Disconnect()
	s.loop.Post(s.cache.clear)
}

func (s *Synchronizer) IsConnected() bool {
	return s.router.IsConnected()
}

// ActiveRides returns a snapshot of the cache ordered by creation time.
func (s *Synchronizer) ActiveRides() []domain.Ride {
	return s.cache.list()
}

func (s *Synchronizer) Ride(id domain.ID) (domain.Ride, bool) {
	return s.cache.get(id)
}

// SendRideRequest tracks a ride already created through the durable API and
// joins its room.
func (s *Synchronizer) SendRideRequest(ride domain.Ride) error {
	if err := ride.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRide, err)
	}

	s.loop.Post(func() { s.cache.put(ride) })
	s.router.JoinRideRoom(ride.ID)
	return nil
}

func (s *Synchronizer) AcceptRide(ctx context.Context, rideID domain.ID) (domain.Ride, error) {
	return s.updateStatus(ctx, "accept ride", rideID, domain.RideAccepted)
}

// RejectRide leaves the ride's room and drops the request locally. The ride
// stays available to other drivers, so nothing is persisted.
func (s *Synchronizer) RejectRide(rideID domain.ID) {
	s.router.LeaveRideRoom(rideID)
	s.loop.Post(func() { s.cache.remove(rideID) })
}

func (s *Synchronizer) UpdateRideStatus(ctx context.Context, rideID domain.ID, status domain.RideStatus) (domain.Ride, error) {
	if !status.Valid() {
		return domain.Ride{}, &CommandError{Op: "update ride status", RideID: rideID, Err: domain.ErrInvalidStatus}
	}
	return s.updateStatus(ctx, "update ride status", rideID, status)
}

// CancelRide persists the cancellation, then drops the ride and leaves its
// room on the loop. The server's echo of the cancellation is not reported twice.
func (s *Synchronizer) CancelRide(ctx context.Context, rideID domain.ID) error {
	if _, err := s.updateStatus(ctx, "cancel ride", rideID, domain.RideCancelled); err != nil {
		return err
	}
	s.loop.Post(func() { s.cancelled(rideID) })
	return nil
}

// updateStatus persists first, notifies peers second and reconciles the cache
// from the API's answer, never from the requested status.
func (s *Synchronizer) updateStatus(ctx context.Context, op string, rideID domain.ID, status domain.RideStatus) (domain.Ride, error) {
	ride, err := s.api.UpdateRideStatus(ctx, rideID, status)
	if err != nil {
		s.logger.Warnf("Failed to %s %s: %v", op, rideID, err)
		return domain.Ride{}, &CommandError{Op: op, RideID: rideID, Err: err}
	}

	s.router.EmitRideStatusUpdate(rideID, status)
	s.loop.Post(func() { s.reconcile(ride) })
	return ride, nil
}

// SendChatMessage always persists; the realtime copy is only sent while connected.
func (s *Synchronizer) SendChatMessage(ctx context.Context, rideID domain.ID, message string) error {
	if err := s.api.SendChatMessage(ctx, rideID, message); err != nil {
		return &CommandError{Op: "send chat message", RideID: rideID, Err: err}
	}
	if s.router.IsConnected() {
		s.router.SendChatMessage(rideID, message)
	}
	return nil
}

func (s *Synchronizer) ChatHistory(ctx context.Context, rideID domain.ID) ([]domain.ChatMessage, error) {
	messages, err := s.api.ChatMessages(ctx, rideID)
	if err != nil {
		return nil, &CommandError{Op: "load chat history", RideID: rideID, Err: err}
	}
	return messages, nil
}

// UpdateDriverLocation is realtime only; while disconnected it is queued by the transport.
func (s *Synchronizer) UpdateDriverLocation(driverID domain.ID, location domain.Location) {
	s.router.UpdateDriverLocation(driverID, location)
}

// LoadActiveRides replaces the cache with the user's non-terminal rides from
// the durable API and joins each of their rooms.
func (s *Synchronizer) LoadActiveRides(ctx context.Context, userID domain.ID, role domain.Role) ([]domain.Ride, error) {
	history, err := s.api.RideHistory(ctx, userID)
	if err != nil {
		return nil, &CommandError{Op: "load active rides", Err: err}
	}

	active := make([]domain.Ride, 0, len(history))
	for _, ride := range history {
		if err := ride.Validate(); err != nil {
			s.logger.Warnf("Skipping ride from history: %v", err)
			continue
		}
		if ride.Status.Terminal() {
			continue
		}
		active = append(active, ride)
	}
	sortRides(active)

	s.logger.Infof("Loaded %d active rides for %s %s", len(active), role, userID)
	s.loop.Post(func() { s.cache.replace(active) })
	for _, ride := range active {
		s.router.JoinRideRoom(ride.ID)
	}
	return active, nil
}

// reconcile applies a command result. Callbacks fire only when the cached
// status actually changes.
func (s *Synchronizer) reconcile(ride domain.Ride) {
	cached, found := s.cache.get(ride.ID)
	if found && ride.DriverLocation == nil {
		ride.DriverLocation = cached.DriverLocation
	}
	if found && cached.Status == ride.Status {
		s.cache.put(ride)
		return
	}
	s.applyStatus(ride)
}

// applyStatus stores the snapshot and raises status-changed, then accepted or
// cancelled. Repeated cancellations of the same ride are ignored.
func (s *Synchronizer) applyStatus(ride domain.Ride) {
	if ride.Status == domain.RideCancelled && s.cache.isCancelled(ride.ID) {
		return
	}
	s.cache.put(ride)
	s.each(func(l Listener) { l.OnRideStatusChanged(ride) })

	switch ride.Status {
	case domain.RideAccepted:
		s.each(func(l Listener) { l.OnRideAccepted(ride) })
	case domain.RideCancelled:
		s.cancelled(ride.ID)
	}
}

// cancelled drops the ride, raises cancelled and leaves its room, once per ride
// whether or not it was cached.
func (s *Synchronizer) cancelled(rideID domain.ID) {
	if !s.cache.cancel(rideID) {
		return
	}
	s.each(func(l Listener) { l.OnRideCancelled(rideID) })
	s.router.LeaveRideRoom(rideID)
}

func (s *Synchronizer) onRideRequest(ride domain.Ride) {
	if ride.Status == domain.RideCancelled {
		s.cancelled(ride.ID)
		return
	}

	cached, found := s.cache.get(ride.ID)
	if found && ride.DriverLocation == nil {
		ride.DriverLocation = cached.DriverLocation
	}
	s.cache.put(ride)

	if ride.Status == domain.RidePending {
		s.each(func(l Listener) { l.OnRideRequested(ride) })
	}
	s.router.JoinRideRoom(ride.ID)
}

func (s *Synchronizer) onRideStatusChanged(change router.StatusChange) {
	cached, found := s.cache.get(change.RideID)

	var ride domain.Ride
	switch {
	case change.Ride != nil:
		ride = change.Ride.Clone()
		if found && ride.DriverLocation == nil {
			ride.DriverLocation = cached.DriverLocation
		}
	case found:
		ride = cached
	default:
		ride = domain.Ride{ID: change.RideID}
	}
	ride.Status = change.Status

	s.applyStatus(ride)
}

func (s *Synchronizer) onRideAccepted(ride domain.Ride) {
	cached, found := s.cache.get(ride.ID)
	if found && ride.DriverLocation == nil {
		ride.DriverLocation = cached.DriverLocation
	}
	if ride.Status == domain.RidePending {
		ride.Status = domain.RideAccepted
	}
	s.applyStatus(ride)
}

func (s *Synchronizer) onRideCancelled(rideID domain.ID) {
	s.cancelled(rideID)
}

func (s *Synchronizer) onDriverLocation(update domain.DriverLocationUpdate) {
	ride, found := s.cache.findByDriver(update.DriverID, update.RideID)
	if !found {
		s.logger.Debugf("No active ride for driver %s, dropping location", update.DriverID)
		return
	}

	location := update.Location
	ride.DriverLocation = &location
	s.cache.put(ride)
	s.each(func(l Listener) { l.OnDriverLocationUpdated(ride, location) })
}

func (s *Synchronizer) onChatMessage(message domain.ChatMessage) {
	s.each(func(l Listener) { l.OnChatMessage(message) })
}

func (s *Synchronizer) onConnectionState(state networking.ConnectionState) {
	s.each(func(l Listener) { l.OnConnectionState(state) })
}

func (s *Synchronizer) onError(err error) {
	s.logger.Errorf("Realtime error: %v", err)
}

func (s *Synchronizer) each(fn func(Listener)) {
	s.listeners.Each(fn)
}
