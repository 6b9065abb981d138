package rides

import (
	"sort"
	"sync"

	"github.com/agaraleas/RideSync/domain"
)

// activeRides maps ride id to its latest snapshot and remembers which ids
// were already seen cancelled. Only the event loop writes; readers from any
// goroutine take the read lock.
type activeRides struct {
	mu        sync.RWMutex
	rides     map[domain.ID]domain.Ride
	cancelled map[domain.ID]struct{}
}

func newActiveRides() *activeRides {
	return &activeRides{
		rides:     make(map[domain.ID]domain.Ride),
		cancelled: make(map[domain.ID]struct{}),
	}
}

func (c *activeRides) get(id domain.ID) (domain.Ride, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ride, found := c.rides[id]
	if !found {
		return domain.Ride{}, false
	}
	return ride.Clone(), true
}

// put stores ride, refusing cancelled snapshots. A live snapshot clears any
// earlier cancellation of the same id.
func (c *activeRides) put(ride domain.Ride) {
	if ride.Status == domain.RideCancelled {
		c.remove(ride.ID)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rides[ride.ID] = ride.Clone()
	delete(c.cancelled, ride.ID)
}

// cancel removes the ride and reports whether this is the first time the id
// is seen cancelled.
func (c *activeRides) cancel(id domain.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rides, id)
	if _, seen := c.cancelled[id]; seen {
		return false
	}
	c.cancelled[id] = struct{}{}
	return true
}

func (c *activeRides) isCancelled(id domain.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, seen := c.cancelled[id]
	return seen
}

func (c *activeRides) remove(id domain.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, found := c.rides[id]
	delete(c.rides, id)
	return found
}

func (c *activeRides) replace(rides []domain.Ride) {
	fresh := make(map[domain.ID]domain.Ride, len(rides))
	for _, ride := range rides {
		if ride.Status != domain.RideCancelled {
			fresh[ride.ID] = ride.Clone()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rides = fresh
	for id := range fresh {
		delete(c.cancelled, id)
	}
}

func (c *activeRides) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rides = make(map[domain.ID]domain.Ride)
	c.cancelled = make(map[domain.ID]struct{})
}

// findByDriver prefers the ride named in the update, then falls back to the
// oldest ride assigned to the driver.
func (c *activeRides) findByDriver(driverID domain.ID, rideID domain.ID) (domain.Ride, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !rideID.IsZero() {
		if ride, found := c.rides[rideID]; found && ride.DriverID == driverID {
			return ride.Clone(), true
		}
	}

	var candidates []domain.Ride
	for _, ride := range c.rides {
		if ride.DriverID == driverID {
			candidates = append(candidates, ride)
		}
	}
	if len(candidates) == 0 {
		return domain.Ride{}, false
	}
	sortRides(candidates)
	return candidates[0].Clone(), true
}

// list returns every snapshot ordered by creation time, then id.
func (c *activeRides) list() []domain.Ride {
	c.mu.RLock()
	rides := make([]domain.Ride, 0, len(c.rides))
	for _, ride := range c.rides {
		rides = append(rides, ride.Clone())
	}
	c.mu.RUnlock()

	sortRides(rides)
	return rides
}

func (c *activeRides) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rides)
}

func sortRides(rides []domain.Ride) {
	sort.Slice(rides, func(i, j int) bool {
		if !rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].CreatedAt.Before(rides[j].CreatedAt)
		}
		return rides[i].ID < rides[j].ID
	})
}
