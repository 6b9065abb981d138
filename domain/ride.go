package domain

import (
	"encoding/json"
	"errors"
	"time"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Payload renders the location as an outbound map.
func (l Location) Payload() map[string]any {
	payload := map[string]any{
		"latitude":  l.Latitude,
		"longitude": l.Longitude,
	}
	if l.Address != "" {
		payload["address"] = l.Address
	}
	return payload
}

// Ride is a snapshot of a ride as last reported by the backend.
type Ride struct {
	ID             ID         `json:"id"`
	ClientID       ID         `json:"clientId,omitempty"`
	DriverID       ID         `json:"driverId,omitempty"`
	Pickup         Location   `json:"pickupLocation"`
	Dropoff        Location   `json:"dropoffLocation"`
	Status         RideStatus `json:"status"`
	EstimatedPrice float64    `json:"estimatedPrice"`
	FinalPrice     *float64   `json:"finalPrice,omitempty"`
	PaymentMethod  string     `json:"paymentMethod,omitempty"`
	IsPaid         bool       `json:"isPaid,omitempty"`
	Distance       *float64   `json:"distance,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	DriverLocation *Location  `json:"driverLocation,omitempty"`
}

var ErrMissingRideID = errors.New("ride has no id")

func (r *Ride) UnmarshalJSON(data []byte) error {
	type plain Ride
	var wire struct {
		plain
		CreatedAt      string `json:"createdAt"`
		PickupAddress  string `json:"pickupAddress"`
		DropoffAddress string `json:"dropoffAddress"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = Ride(wire.plain)
	r.CreatedAt, _ = ParseTimestamp(wire.CreatedAt)
	if r.Pickup.Address == "" {
		r.Pickup.Address = wire.PickupAddress
	}
	if r.Dropoff.Address == "" {
		r.Dropoff.Address = wire.DropoffAddress
	}
	return nil
}

// Validate checks the fields every cached ride must carry.
func (r Ride) Validate() error {
	if r.ID.IsZero() {
		return ErrMissingRideID
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Clone returns a copy that shares no pointers with r.
func (r Ride) Clone() Ride {
	clone := r
	if r.FinalPrice != nil {
		price := *r.FinalPrice
		clone.FinalPrice = &price
	}
	if r.Distance != nil {
		distance := *r.Distance
		clone.Distance = &distance
	}
	if r.DriverLocation != nil {
		location := *r.DriverLocation
		clone.DriverLocation = &location
	}
	return clone
}

// DriverLocationUpdate is a position report for a driver, optionally tied to a ride.
type DriverLocationUpdate struct {
	DriverID ID       `json:"driverId"`
	RideID   ID       `json:"rideId,omitempty"`
	Location Location `json:"location"`
}
