package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agaraleas/RideSync/auth"
	"github.com/agaraleas/RideSync/dispatch"
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/logging"
	"github.com/agaraleas/RideSync/networking"
)

const (
	AdminRoom        = "admin:all"
	driverRoomPrefix = "driver:"
	rideRoomPrefix   = "ride:"
)

var ErrMissingUser = errors.New("user id is required")

func DriverRoom(driverID domain.ID) string {
	return driverRoomPrefix + driverID.String()
}

func RideRoom(rideID domain.ID) string {
	return rideRoomPrefix + rideID.String()
}

// Transport is the realtime channel the Router drives.
type Transport interface {
	Connect(namespace string, token string) error
	Disconnect()
	Emit(event string, data map[string]any) error
	State() networking.ConnectionState
	Subscribe(h networking.Handler) func()
}

type Config struct {
	// Namespaces maps a role to the socket path it connects to. Missing roles use the root.
	Namespaces map[domain.Role]string
	// RejoinRideRooms re-joins every tracked ride room on reconnection, not
	// only the implicit role room.
	RejoinRideRooms bool
}

// Router turns raw transport events into typed callbacks and manages room
// membership. Rooms are fire-and-forget: nothing waits for server acknowledgment.
type Router struct {
	transport Transport
	tokens    auth.TokenProvider
	cfg       Config
	logger    logging.AbstractLogger
	listeners dispatch.Listeners[Listener]
	now       func() time.Time

	mu        sync.Mutex
	userID    domain.ID
	role      domain.Role
	rideRooms map[string]struct{}

	unsubscribe func()
}

type RouterOption func(*Router)

func WithLogger(logger logging.AbstractLogger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func CreateRouter(transport Transport, tokens auth.TokenProvider, cfg Config, opts ...RouterOption) *Router {
	r := &Router{
		transport: transport,
		tokens:    tokens,
		cfg:       cfg,
		logger:    logging.ForComponent("router"),
		now:       time.Now,
		rideRooms: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.unsubscribe = transport.Subscribe(networking.HandlerFuncs{
		StateChange: r.handleStateChange,
		Connected:   r.handleConnected,
		Error:       r.handleError,
		Event:       r.handleEvent,
	})
	return r
}

// Subscribe registers a listener and returns the function that removes it.
func (r *Router) Subscribe(l Listener) func() {
	return r.listeners.Add(l)
}

// Close detaches the Router from its transport.
func (r *Router) Close() {
	r.unsubscribe()
}

// Connect resolves the namespace for role and the bearer token, then opens the transport.
func (r *Router) Connect(ctx context.Context, userID domain.ID, role domain.Role) error {
	if userID.IsZero() {
		return ErrMissingUser
	}
	if !role.Valid() {
		return domain.ErrInvalidRole
	}

	var token string
	if r.tokens != nil {
		var err error
		token, err = r.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetching bearer token: %w", err)
		}
	}

	r.mu.Lock()
	previousUser, previousRole := r.userID, r.role
	r.userID, r.role = userID, role
	r.mu.Unlock()

	namespace := r.cfg.Namespaces[role]
	r.logger.Infof("Connecting %s %s to namespace '%s'", role, userID, namespace)
	if err := r.transport.Connect(namespace, token); err != nil {
		r.mu.Lock()
		r.userID, r.role = previousUser, previousRole
		r.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect closes the transport and forgets the user and every tracked room.
func (r *Router) Disconnect() {
	r.transport.Disconnect()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = ""
	r.role = ""
	r.rideRooms = make(map[string]struct{})
}

func (r *Router) IsConnected() bool {
	return r.transport.State().IsConnected()
}

func (r *Router) State() networking.ConnectionState {
	return r.transport.State()
}

// User returns the id and role of the last successful Connect.
func (r *Router) User() (domain.ID, domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID, r.role
}

// RideRooms returns the tracked ride rooms, sorted.
func (r *Router) RideRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]string, 0, len(r.rideRooms))
	for room := range r.rideRooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// JoinRideRoom subscribes to updates for one ride. Joining a room twice emits once.
func (r *Router) JoinRideRoom(rideID domain.ID) {
	room := RideRoom(rideID)

	r.mu.Lock()
	if _, member := r.rideRooms[room]; member {
		r.mu.Unlock()
		return
	}
	r.rideRooms[room] = struct{}{}
	r.mu.Unlock()

	if r.cfg.RejoinRideRooms && !r.IsConnected() {
		r.logger.Debugf("Recorded %s, joining on connection", room)
		return
	}
	r.emit(networking.EventJoin, map[string]any{"room": room})
}

// LeaveRideRoom always emits, even for rooms joined by the server on our
// behalf. Only the membership set is deduplicated.
func (r *Router) LeaveRideRoom(rideID domain.ID) {
	room := RideRoom(rideID)

	r.mu.Lock()
	delete(r.rideRooms, room)
	r.mu.Unlock()

	if r.cfg.RejoinRideRooms && !r.IsConnected() {
		r.logger.Debugf("Forgot %s while offline", room)
		return
	}
	r.emit(networking.EventLeave, map[string]any{"room": room})
}

func (r *Router) EmitRideStatusUpdate(rideID domain.ID, status domain.RideStatus) {
	r.emit(networking.EventRideStatusUpdate, map[string]any{
		"rideId": rideID.String(),
		"status": status.String(),
	})
}

func (r *Router) UpdateDriverLocation(driverID domain.ID, location domain.Location) {
	r.emit(networking.EventDriverLocationTx, map[string]any{
		"driverId": driverID.String(),
		"location": location.Payload(),
	})
}

func (r *Router) SendChatMessage(rideID domain.ID, message string) {
	r.emit(networking.EventChatMessage, map[string]any{
		"rideId":    rideID.String(),
		"message":   message,
		"timestamp": domain.FormatTimestamp(r.now()),
	})
}

func (r *Router) emit(event string, data map[string]any) {
	if err := r.transport.Emit(event, data); err != nil {
		r.logger.Warnf("Emitting '%s' failed: %v", event, err)
	}
}

func (r *Router) handleStateChange(state networking.ConnectionState) {
	r.listeners.Each(func(l Listener) { l.OnConnectionState(state) })
}

func (r *Router) handleError(err error) {
	r.listeners.Each(func(l Listener) { l.OnError(err) })
}

// handleConnected joins the implicit role room and, when configured, every tracked ride room.
func (r *Router) handleConnected() {
	r.mu.Lock()
	userID, role := r.userID, r.role
	var rooms []string
	if r.cfg.RejoinRideRooms {
		for room := range r.rideRooms {
			rooms = append(rooms, room)
		}
	}
	r.mu.Unlock()
	sort.Strings(rooms)

	switch role {
	case domain.RoleDriver:
		rooms = append([]string{DriverRoom(userID)}, rooms...)
	case domain.RoleAdmin:
		rooms = append([]string{AdminRoom}, rooms...)
	}

	if len(rooms) > 0 {
		r.logger.Infof("Joining rooms %s", strings.Join(rooms, ", "))
	}
	for _, room := range rooms {
		r.emit(networking.EventJoin, map[string]any{"room": room})
	}
}

func (r *Router) handleEvent(envelope networking.InboundEnvelope) {
	var err error

	switch envelope.Event {
	case networking.EventRideRequest:
		var ride domain.Ride
		if ride, err = decodeRide(envelope); err == nil {
			r.listeners.Each(func(l Listener) { l.OnRideRequest(ride) })
		}
	case networking.EventRideStatusChanged:
		var change StatusChange
		if change, err = decodeStatusChange(envelope); err == nil {
			r.listeners.Each(func(l Listener) { l.OnRideStatusChanged(change) })
		}
	case networking.EventDriverLocation:
		var update domain.DriverLocationUpdate
		if update, err = decodeDriverLocation(envelope); err == nil {
			r.listeners.Each(func(l Listener) { l.OnDriverLocation(update) })
		}
	case networking.EventRideAccepted:
		var ride domain.Ride
		if ride, err = decodeRide(envelope); err == nil {
			r.listeners.Each(func(l Listener) { l.OnRideAccepted(ride) })
		}
	case networking.EventRideCancelled:
		var rideID domain.ID
		if rideID, err = decodeCancellation(envelope); err == nil {
			r.listeners.Each(func(l Listener) { l.OnRideCancelled(rideID) })
		}
	case networking.EventChatMessage:
		var message domain.ChatMessage
		if message, err = decodeChatMessage(envelope); err == nil {
			r.listeners.Each(func(l Listener) { l.OnChatMessage(message) })
		}
	default:
		r.logger.Debugf("Ignoring '%s' event", envelope.Event)
	}

	if err != nil {
		r.logger.Warnf("Dropping malformed '%s' event: %v", envelope.Event, err)
	}
}
