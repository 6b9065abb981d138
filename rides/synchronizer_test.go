package rides

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/agaraleas/RideSync/dispatch"
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/logging"
	"github.com/agaraleas/RideSync/networking"
	"github.com/agaraleas/RideSync/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeRouter records every outbound call and delivers inbound events on the loop.
type fakeRouter struct {
	mu        sync.Mutex
	loop      *dispatch.EventLoop
	listener  router.Listener
	connected bool
	calls     []string
}

func (f *fakeRouter) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRouter) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRouter) count(call string) int {
	n := 0
	for _, c := range f.recorded() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRouter) Connect(ctx context.Context, userID domain.ID, role domain.Role) error {
	f.record("connect:" + userID.String() + ":" + role.String())
	return nil
}

func (f *fakeRouter) Disconnect() {
	f.record("disconnect")
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeRouter) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRouter) JoinRideRoom(rideID domain.ID)  { f.record("join:" + rideID.String()) }
func (f *fakeRouter) LeaveRideRoom(rideID domain.ID) { f.record("leave:" + rideID.String()) }

func (f *fakeRouter) EmitRideStatusUpdate(rideID domain.ID, status domain.RideStatus) {
	f.record("status:" + rideID.String() + ":" + status.String())
}

func (f *fakeRouter) UpdateDriverLocation(driverID domain.ID, location domain.Location) {
	f.record("location:" + driverID.String())
}

func (f *fakeRouter) SendChatMessage(rideID domain.ID, message string) {
	f.record("chat:" + rideID.String() + ":" + message)
}

func (f *fakeRouter) Subscribe(l router.Listener) func() {
	f.listener = l
	return func() { f.listener = nil }
}

func (f *fakeRouter) deliver(fn func(router.Listener)) {
	f.loop.Post(func() { fn(f.listener) })
}

type MockRideAPI struct {
	mock.Mock
}

func (m *MockRideAPI) UpdateRideStatus(ctx context.Context, rideID domain.ID, status domain.RideStatus) (domain.Ride, error) {
	args := m.Called(ctx, rideID, status)
	return args.Get(0).(domain.Ride), args.Error(1)
}

func (m *MockRideAPI) RideHistory(ctx context.Context, userID domain.ID) ([]domain.Ride, error) {
	args := m.Called(ctx, userID)
	rides, _ := args.Get(0).([]domain.Ride)
	return rides, args.Error(1)
}

func (m *MockRideAPI) SendChatMessage(ctx context.Context, rideID domain.ID, message string) error {
	args := m.Called(ctx, rideID, message)
	return args.Error(0)
}

func (m *MockRideAPI) ChatMessages(ctx context.Context, rideID domain.ID) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, rideID)
	messages, _ := args.Get(0).([]domain.ChatMessage)
	return messages, args.Error(1)
}

// callbackLog records listener callbacks; it is only touched on the loop.
type callbackLog struct {
	calls     []string
	locations []domain.Location
}

func (c *callbackLog) listener() ListenerFuncs {
	return ListenerFuncs{
		RideRequested:     func(r domain.Ride) { c.calls = append(c.calls, "requested:"+r.ID.String()) },
		RideStatusChanged: func(r domain.Ride) { c.calls = append(c.calls, "status:"+r.ID.String()+":"+r.Status.String()) },
		RideAccepted:      func(r domain.Ride) { c.calls = append(c.calls, "accepted:"+r.ID.String()) },
		RideCancelled:     func(id domain.ID) { c.calls = append(c.calls, "cancelled:"+id.String()) },
		DriverLocationUpdated: func(r domain.Ride, l domain.Location) {
			c.calls = append(c.calls, "location:"+r.ID.String())
			c.locations = append(c.locations, l)
		},
		ChatMessage:     func(m domain.ChatMessage) { c.calls = append(c.calls, "chat:"+m.Message) },
		ConnectionState: func(s networking.ConnectionState) { c.calls = append(c.calls, "state:"+s.String()) },
	}
}

func (c *callbackLog) count(call string) int {
	n := 0
	for _, recorded := range c.calls {
		if recorded == call {
			n++
		}
	}
	return n
}

type syncFixture struct {
	sync   *Synchronizer
	router *fakeRouter
	api    *MockRideAPI
	loop   *dispatch.EventLoop
	log    *callbackLog
}

func newSyncFixture(t *testing.T) *syncFixture {
	loop := dispatch.CreateEventLoop()
	t.Cleanup(loop.Stop)

	f := &syncFixture{
		router: &fakeRouter{loop: loop},
		api:    new(MockRideAPI),
		loop:   loop,
		log:    &callbackLog{},
	}
	f.sync = CreateSynchronizer(f.router, f.api, loop, WithLogger(&logging.NilLogger{}))
	f.sync.Subscribe(f.log.listener())
	return f
}

func (f *syncFixture) statusChanged(id domain.ID, status domain.RideStatus) {
	f.router.deliver(func(l router.Listener) {
		l.OnRideStatusChanged(router.StatusChange{RideID: id, Status: status})
	})
}

func ride(id domain.ID, status domain.RideStatus, driverID domain.ID) domain.Ride {
	return domain.Ride{ID: id, Status: status, DriverID: driverID, CreatedAt: time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)}
}

func assertNoCancelledSnapshots(t *testing.T, s *Synchronizer) {
	for _, r := range s.ActiveRides() {
		assert.NotEqual(t, domain.RideCancelled, r.Status, "ride %s cached as cancelled", r.ID)
	}
}

func TestAcceptedThenCancelled(t *testing.T) {
	f := newSyncFixture(t)

	f.statusChanged("42", domain.RideAccepted)
	f.statusChanged("42", domain.RideCancelled)
	f.loop.Wait()

	_, found := f.sync.Ride("42")
	assert.False(t, found)
	assert.Equal(t, 1, f.log.count("accepted:42"))
	assert.Equal(t, 1, f.log.count("cancelled:42"))
	assert.Equal(t, 1, f.router.count("leave:42"))
	assert.Equal(t, []string{"status:42:accepted", "accepted:42", "status:42:cancelled", "cancelled:42"}, f.log.calls)
}

func TestStatusChangedIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("7", domain.RidePending, "")) })

	f.statusChanged("7", domain.RideDriverArriving)
	f.loop.Wait()
	once := f.sync.ActiveRides()

	f.statusChanged("7", domain.RideDriverArriving)
	f.loop.Wait()
	assert.Equal(t, once, f.sync.ActiveRides())

	f.statusChanged("7", domain.RideCancelled)
	f.statusChanged("7", domain.RideCancelled)
	f.loop.Wait()
	assert.Empty(t, f.sync.ActiveRides())
	assert.Equal(t, 1, f.log.count("cancelled:7"))
}

func TestStatusChangedForUnknownRideInsertsSnapshot(t *testing.T) {
	f := newSyncFixture(t)

	f.statusChanged("5", domain.RideInProgress)
	f.loop.Wait()

	cached, found := f.sync.Ride("5")
	require.True(t, found)
	assert.Equal(t, domain.RideInProgress, cached.Status)
}

func TestStatusChangedCarriesFullRide(t *testing.T) {
	f := newSyncFixture(t)
	full := ride("5", domain.RideAccepted, "9")
	full.Pickup = domain.Location{Address: "Gombe"}

	f.router.deliver(func(l router.Listener) {
		l.OnRideStatusChanged(router.StatusChange{RideID: "5", Status: domain.RideAccepted, Ride: &full})
	})
	f.loop.Wait()

	cached, found := f.sync.Ride("5")
	require.True(t, found)
	assert.Equal(t, domain.ID("9"), cached.DriverID)
	assert.Equal(t, "Gombe", cached.Pickup.Address)
}

func TestRideRequest(t *testing.T) {
	f := newSyncFixture(t)

	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("2", domain.RideAccepted, "9")) })
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("3", domain.RideCancelled, "")) })
	f.loop.Wait()

	assert.Equal(t, []string{"requested:1", "cancelled:3"}, f.log.calls)
	assert.Equal(t, []string{"join:1", "join:2", "leave:3"}, f.router.recorded())
	assert.Len(t, f.sync.ActiveRides(), 2)
	assertNoCancelledSnapshots(t, f.sync)
}

func TestRideAcceptedEvent(t *testing.T) {
	f := newSyncFixture(t)
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
	f.router.deliver(func(l router.Listener) { l.OnRideAccepted(ride("1", domain.RideAccepted, "9")) })
	f.loop.Wait()

	assert.Equal(t, []string{"requested:1", "status:1:accepted", "accepted:1"}, f.log.calls)
	cached, _ := f.sync.Ride("1")
	assert.Equal(t, domain.ID("9"), cached.DriverID)
}

func TestRideCancelledEvent(t *testing.T) {
	f := newSyncFixture(t)
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
	f.router.deliver(func(l router.Listener) { l.OnRideCancelled("1") })
	f.router.deliver(func(l router.Listener) { l.OnRideCancelled("1") })
	f.loop.Wait()

	assert.Empty(t, f.sync.ActiveRides())
	assert.Equal(t, 1, f.log.count("cancelled:1"))
	assert.Equal(t, 1, f.router.count("leave:1"))
}

func TestDriverLocation(t *testing.T) {
	t.Run("Unknown driver is dropped", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RideAccepted, "9")) })
		f.router.deliver(func(l router.Listener) {
			l.OnDriverLocation(domain.DriverLocationUpdate{DriverID: "404", Location: domain.Location{Latitude: 1}})
		})
		f.loop.Wait()

		assert.Empty(t, f.log.calls)
		cached, _ := f.sync.Ride("1")
		assert.Nil(t, cached.DriverLocation)
	})

	t.Run("Matching driver updates the snapshot", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RideAccepted, "9")) })
		f.router.deliver(func(l router.Listener) {
			l.OnDriverLocation(domain.DriverLocationUpdate{DriverID: "9", Location: domain.Location{Latitude: -4.3, Longitude: 15.3}})
		})
		f.loop.Wait()

		assert.Equal(t, []string{"location:1"}, f.log.calls)
		assert.Equal(t, domain.Location{Latitude: -4.3, Longitude: 15.3}, f.log.locations[0])
		cached, _ := f.sync.Ride("1")
		require.NotNil(t, cached.DriverLocation)
		assert.Equal(t, -4.3, cached.DriverLocation.Latitude)
	})

	t.Run("Ride id in the update wins", func(t *testing.T) {
		f := newSyncFixture(t)
		older := ride("1", domain.RideAccepted, "9")
		newer := ride("2", domain.RideInProgress, "9")
		newer.CreatedAt = newer.CreatedAt.Add(time.Hour)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(older) })
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(newer) })

		f.router.deliver(func(l router.Listener) {
			l.OnDriverLocation(domain.DriverLocationUpdate{DriverID: "9"})
		})
		f.router.deliver(func(l router.Listener) {
			l.OnDriverLocation(domain.DriverLocationUpdate{DriverID: "9", RideID: "2"})
		})
		f.loop.Wait()

		assert.Equal(t, []string{"location:1", "location:2"}, f.log.calls)
	})

	t.Run("Location survives later status changes", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RideAccepted, "9")) })
		f.router.deliver(func(l router.Listener) {
			l.OnDriverLocation(domain.DriverLocationUpdate{DriverID: "9", Location: domain.Location{Latitude: 2}})
		})
		f.statusChanged("1", domain.RideInProgress)
		f.loop.Wait()

		cached, _ := f.sync.Ride("1")
		require.NotNil(t, cached.DriverLocation)
		assert.Equal(t, 2.0, cached.DriverLocation.Latitude)
	})
}

func TestLoadActiveRides(t *testing.T) {
	t.Run("Keeps non-terminal rides", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("stale", domain.RidePending, "")) })
		f.loop.Wait()
		f.router.calls = nil

		f.api.On("RideHistory", mock.Anything, domain.ID("7")).Return([]domain.Ride{
			ride("1", domain.RideAccepted, "9"),
			ride("2", domain.RideCompleted, "9"),
			ride("3", domain.RideInProgress, "9"),
		}, nil).Once()

		active, err := f.sync.LoadActiveRides(context.Background(), "7", domain.RoleDriver)
		require.NoError(t, err)
		assert.Len(t, active, 2)
		f.loop.Wait()

		cached := f.sync.ActiveRides()
		require.Len(t, cached, 2)
		assert.Equal(t, domain.ID("1"), cached[0].ID)
		assert.Equal(t, domain.ID("3"), cached[1].ID)
		assert.ElementsMatch(t, []string{"join:1", "join:3"}, f.router.recorded())
		f.api.AssertExpectations(t)
	})

	t.Run("Invalid rides are skipped", func(t *testing.T) {
		f := newSyncFixture(t)
		f.api.On("RideHistory", mock.Anything, domain.ID("7")).Return([]domain.Ride{
			{Status: domain.RidePending},
			ride("2", domain.RideStatus("teleporting"), ""),
			ride("3", domain.RidePending, ""),
		}, nil)

		active, err := f.sync.LoadActiveRides(context.Background(), "7", domain.RoleClient)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, domain.ID("3"), active[0].ID)
	})

	t.Run("API failure leaves the cache alone", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
		f.loop.Wait()

		f.api.On("RideHistory", mock.Anything, domain.ID("7")).Return(nil, errors.New("timeout"))

		_, err := f.sync.LoadActiveRides(context.Background(), "7", domain.RoleClient)
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "load active rides", cmdErr.Op)
		f.loop.Wait()
		assert.Len(t, f.sync.ActiveRides(), 1)
	})
}

func TestAcceptRide(t *testing.T) {
	t.Run("Persists, notifies, then reconciles from the response", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
		f.loop.Wait()
		f.router.calls = nil

		f.api.On("UpdateRideStatus", mock.Anything, domain.ID("1"), domain.RideAccepted).
			Run(func(mock.Arguments) { f.router.record("api") }).
			Return(ride("1", domain.RideAccepted, "9"), nil)

		accepted, err := f.sync.AcceptRide(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, domain.ID("9"), accepted.DriverID)
		f.loop.Wait()

		assert.Equal(t, []string{"api", "status:1:accepted"}, f.router.recorded())
		cached, _ := f.sync.Ride("1")
		assert.Equal(t, domain.RideAccepted, cached.Status)
		assert.Equal(t, domain.ID("9"), cached.DriverID)
		assert.Equal(t, 1, f.log.count("accepted:1"))
	})

	t.Run("Server answer wins over the requested status", func(t *testing.T) {
		f := newSyncFixture(t)
		f.api.On("UpdateRideStatus", mock.Anything, domain.ID("1"), domain.RideAccepted).
			Return(ride("1", domain.RideDriverArriving, "9"), nil)

		_, err := f.sync.AcceptRide(context.Background(), "1")
		require.NoError(t, err)
		f.loop.Wait()

		cached, _ := f.sync.Ride("1")
		assert.Equal(t, domain.RideDriverArriving, cached.Status)
	})

	t.Run("Echoed event does not repeat callbacks", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
		f.statusChanged("1", domain.RideAccepted)
		f.loop.Wait()

		f.api.On("UpdateRideStatus", mock.Anything, domain.ID("1"), domain.RideAccepted).
			Return(ride("1", domain.RideAccepted, "9"), nil)
		_, err := f.sync.AcceptRide(context.Background(), "1")
		require.NoError(t, err)
		f.loop.Wait()

		assert.Equal(t, 1, f.log.count("accepted:1"))
	})

	t.Run("API failure", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
		f.loop.Wait()
		f.router.calls = nil

		apiErr := errors.New("409 ride already taken")
		f.api.On("UpdateRideStatus", mock.Anything, domain.ID("1"), domain.RideAccepted).Return(domain.Ride{}, apiErr)

		_, err := f.sync.AcceptRide(context.Background(), "1")
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.ErrorIs(t, err, apiErr)
		assert.Equal(t, domain.ID("1"), cmdErr.RideID)
		f.loop.Wait()

		assert.Empty(t, f.router.recorded())
		cached, _ := f.sync.Ride("1")
		assert.Equal(t, domain.RidePending, cached.Status)
	})
}

func TestUpdateRideStatusRejectsUnknownStatus(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.sync.UpdateRideStatus(context.Background(), "1", domain.RideStatus("flying"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	f.api.AssertNotCalled(t, "UpdateRideStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelRide(t *testing.T) {
	f := newSyncFixture(t)
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RideAccepted, "9")) })
	f.loop.Wait()
	f.router.calls = nil

	f.api.On("UpdateRideStatus", mock.Anything, domain.ID("1"), domain.RideCancelled).
		Return(ride("1", domain.RideCancelled, "9"), nil)

	require.NoError(t, f.sync.CancelRide(context.Background(), "1"))
	f.loop.Wait()

	assert.Empty(t, f.sync.ActiveRides())
	assert.Equal(t, []string{"status:1:cancelled", "leave:1"}, f.router.recorded())
	assert.Equal(t, 1, f.log.count("cancelled:1"))

	f.statusChanged("1", domain.RideCancelled)
	f.router.deliver(func(l router.Listener) { l.OnRideCancelled("1") })
	f.loop.Wait()
	assert.Equal(t, 1, f.log.count("cancelled:1"), "server echo is not reported again")
	assert.Equal(t, 1, f.router.count("leave:1"))
}

func TestCancelRideNotYetCached(t *testing.T) {
	f := newSyncFixture(t)
	f.api.On("UpdateRideStatus", mock.Anything, domain.ID("8"), domain.RideCancelled).
		Return(ride("8", domain.RideCancelled, ""), nil)

	require.NoError(t, f.sync.CancelRide(context.Background(), "8"))
	f.loop.Wait()

	assert.Equal(t, 1, f.log.count("cancelled:8"))
	assert.Equal(t, []string{"status:8:cancelled", "leave:8"}, f.router.recorded())
}

func TestSendChatMessage(t *testing.T) {
	t.Run("Connected", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.connected = true
		f.api.On("SendChatMessage", mock.Anything, domain.ID("1"), "hello").Return(nil)

		require.NoError(t, f.sync.SendChatMessage(context.Background(), "1", "hello"))
		assert.Equal(t, []string{"chat:1:hello"}, f.router.recorded())
	})

	t.Run("Disconnected still persists", func(t *testing.T) {
		f := newSyncFixture(t)
		f.api.On("SendChatMessage", mock.Anything, domain.ID("1"), "hello").Return(nil)

		require.NoError(t, f.sync.SendChatMessage(context.Background(), "1", "hello"))
		f.api.AssertExpectations(t)
		assert.Empty(t, f.router.recorded())
	})

	t.Run("API failure skips realtime", func(t *testing.T) {
		f := newSyncFixture(t)
		f.router.connected = true
		f.api.On("SendChatMessage", mock.Anything, domain.ID("1"), "hello").Return(errors.New("500"))

		err := f.sync.SendChatMessage(context.Background(), "1", "hello")
		var cmdErr *CommandError
		assert.ErrorAs(t, err, &cmdErr)
		assert.Empty(t, f.router.recorded())
	})
}

func TestChatHistory(t *testing.T) {
	f := newSyncFixture(t)
	f.api.On("ChatMessages", mock.Anything, domain.ID("1")).Return([]domain.ChatMessage{{ID: "m1", Message: "hi"}}, nil).Once()
	f.api.On("ChatMessages", mock.Anything, domain.ID("2")).Return(nil, errors.New("404")).Once()

	messages, err := f.sync.ChatHistory(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	_, err = f.sync.ChatHistory(context.Background(), "2")
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestSendRideRequestAndReject(t *testing.T) {
	f := newSyncFixture(t)

	assert.ErrorIs(t, f.sync.SendRideRequest(domain.Ride{}), ErrInvalidRide)

	require.NoError(t, f.sync.SendRideRequest(ride("1", domain.RidePending, "")))
	f.loop.Wait()
	_, found := f.sync.Ride("1")
	assert.True(t, found)

	f.sync.RejectRide("1")
	f.loop.Wait()
	_, found = f.sync.Ride("1")
	assert.False(t, found)
	assert.Equal(t, []string{"join:1", "leave:1"}, f.router.recorded())
}

func TestRealtimePassThrough(t *testing.T) {
	f := newSyncFixture(t)

	require.NoError(t, f.sync.Connect(context.Background(), "9", domain.RoleDriver))
	f.sync.UpdateDriverLocation("9", domain.Location{Latitude: 1})
	f.router.deliver(func(l router.Listener) { l.OnChatMessage(domain.ChatMessage{Message: "hi"}) })
	f.router.deliver(func(l router.Listener) { l.OnConnectionState(networking.Connected) })
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("1", domain.RidePending, "")) })
	f.loop.Wait()

	f.sync.Disconnect()
	f.loop.Wait()

	assert.Equal(t, []string{"connect:9:driver", "location:9", "join:1", "disconnect"}, f.router.recorded())
	assert.Equal(t, []string{"chat:hi", "state:Connected", "requested:1"}, f.log.calls)
	assert.Empty(t, f.sync.ActiveRides())
	assert.False(t, f.sync.IsConnected())
}

func TestCacheNeverHoldsCancelledRides(t *testing.T) {
	f := newSyncFixture(t)
	rng := rand.New(rand.NewSource(42))
	statuses := []domain.RideStatus{
		domain.RidePending, domain.RideAccepted, domain.RideDriverArriving,
		domain.RideInProgress, domain.RideCompleted, domain.RideCancelled,
	}
	ids := []domain.ID{"1", "2", "3", "4"}

	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		status := statuses[rng.Intn(len(statuses))]

		switch rng.Intn(4) {
		case 0:
			f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride(id, status, "9")) })
		case 1:
			f.statusChanged(id, status)
		case 2:
			f.router.deliver(func(l router.Listener) { l.OnRideAccepted(ride(id, status, "9")) })
		case 3:
			f.router.deliver(func(l router.Listener) { l.OnRideCancelled(id) })
		}

		if i%50 == 0 {
			f.loop.Wait()
			assertNoCancelledSnapshots(t, f.sync)
		}
	}
	f.loop.Wait()
	assertNoCancelledSnapshots(t, f.sync)
}

func TestCommandErrorMessage(t *testing.T) {
	err := &CommandError{Op: "cancel ride", RideID: "4", Err: errors.New("boom")}
	assert.Equal(t, "cancel ride for ride 4 failed: boom", err.Error())

	err = &CommandError{Op: "load active rides", Err: errors.New("boom")}
	assert.Equal(t, "load active rides failed: boom", err.Error())
}

func TestDroppedEventsAreLogged(t *testing.T) {
	loop := dispatch.CreateEventLoop()
	t.Cleanup(loop.Stop)
	rt := &fakeRouter{loop: loop}

	logger := &logging.MockLogger{}
	logger.On("Debugf", "No active ride for driver %s, dropping location", []interface{}{domain.ID("404")}).Once()
	logger.On("Errorf", "Realtime error: %v", mock.Anything).Once()
	logger.Quiet()

	CreateSynchronizer(rt, new(MockRideAPI), loop, WithLogger(logger))
	rt.deliver(func(l router.Listener) { l.OnDriverLocation(domain.DriverLocationUpdate{DriverID: "404"}) })
	rt.deliver(func(l router.Listener) { l.OnError(errors.New("boom")) })
	loop.Wait()

	logger.AssertCalled(t, "Debugf", "No active ride for driver %s, dropping location", []interface{}{domain.ID("404")})
	logger.AssertCalled(t, "Errorf", "Realtime error: %v", mock.Anything)
}

func TestCancellationOfUncachedRides(t *testing.T) {
	f := newSyncFixture(t)

	f.router.deliver(func(l router.Listener) { l.OnRideCancelled("9") })
	f.statusChanged("10", domain.RideCancelled)
	f.loop.Wait()

	assert.Equal(t, []string{"cancelled:9", "status:10:cancelled", "cancelled:10"}, f.log.calls)
	assert.Equal(t, []string{"leave:9", "leave:10"}, f.router.recorded())
	assert.Empty(t, f.sync.ActiveRides())
}

func TestRideRevivedAfterCancellation(t *testing.T) {
	f := newSyncFixture(t)

	f.router.deliver(func(l router.Listener) { l.OnRideCancelled("5") })
	f.router.deliver(func(l router.Listener) { l.OnRideRequest(ride("5", domain.RidePending, "")) })
	f.router.deliver(func(l router.Listener) { l.OnRideCancelled("5") })
	f.loop.Wait()

	assert.Equal(t, 2, f.log.count("cancelled:5"))
	assert.Empty(t, f.sync.ActiveRides())
}

// recordingTransport stands in for the socket under a real router; it is always connected.
type recordingTransport struct {
	mu      sync.Mutex
	loop    *dispatch.EventLoop
	handler networking.Handler
	frames  []string
}

func (rt *recordingTransport) Connect(namespace string, token string) error { return nil }
func (rt *recordingTransport) Disconnect()                                  {}

func (rt *recordingTransport) Emit(event string, data map[string]any) error {
	frame, err := networking.OutboundMessage{Event: event, Data: data}.Encode()
	if err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.frames = append(rt.frames, string(frame))
	return nil
}

func (rt *recordingTransport) State() networking.ConnectionState {
	return networking.Connected
}

func (rt *recordingTransport) Subscribe(h networking.Handler) func() {
	rt.handler = h
	return func() {}
}

func (rt *recordingTransport) receive(t *testing.T, frame string) {
	envelope, err := networking.DecodeEnvelope([]byte(frame))
	require.NoError(t, err)
	rt.loop.Post(func() { rt.handler.OnEvent(envelope) })
}

func (rt *recordingTransport) sent() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.frames...)
}

func TestAcceptedThenCancelledOverRouter(t *testing.T) {
	loop := dispatch.CreateEventLoop()
	t.Cleanup(loop.Stop)
	transport := &recordingTransport{loop: loop}
	rt := router.CreateRouter(transport, nil, router.Config{}, router.WithLogger(&logging.NilLogger{}))
	synchronizer := CreateSynchronizer(rt, new(MockRideAPI), loop, WithLogger(&logging.NilLogger{}))
	callbacks := &callbackLog{}
	synchronizer.Subscribe(callbacks.listener())

	transport.receive(t, `{"event":"ride:status:changed","data":{"rideId":"42","status":"accepted"}}`)
	transport.receive(t, `{"event":"ride:status:changed","data":{"rideId":"42","status":"cancelled"}}`)
	transport.receive(t, `{"event":"ride:cancelled","data":{"rideId":"42"}}`)
	loop.Wait()

	assert.Equal(t, []string{"status:42:accepted", "accepted:42", "status:42:cancelled", "cancelled:42"}, callbacks.calls)
	require.Len(t, transport.sent(), 1)
	assert.JSONEq(t, `{"event":"leave","data":{"room":"ride:42"}}`, transport.sent()[0])
	_, found := synchronizer.Ride("42")
	assert.False(t, found)
}
