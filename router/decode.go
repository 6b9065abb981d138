package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/networking"
)

var (
	errMissingRideID   = errors.New("missing rideId")
	errMissingDriverID = errors.New("missing driverId")
	errEmptyMessage    = errors.New("empty chat message")
)

// decodeRide accepts {"ride": {...}} as well as a bare ride object.
func decodeRide(envelope networking.InboundEnvelope) (domain.Ride, error) {
	var wrapper struct {
		Ride json.RawMessage `json:"ride"`
	}
	if err := envelope.Decode(&wrapper); err != nil {
		return domain.Ride{}, err
	}

	raw := envelope.Data
	if len(wrapper.Ride) > 0 && string(wrapper.Ride) != "null" {
		raw = wrapper.Ride
	}

	var ride domain.Ride
	if err := json.Unmarshal(raw, &ride); err != nil {
		return domain.Ride{}, err
	}
	if err := ride.Validate(); err != nil {
		return domain.Ride{}, err
	}
	return ride, nil
}

func decodeStatusChange(envelope networking.InboundEnvelope) (StatusChange, error) {
	var payload struct {
		RideID domain.ID       `json:"rideId"`
		Status string          `json:"status"`
		Ride   json.RawMessage `json:"ride"`
	}
	if err := envelope.Decode(&payload); err != nil {
		return StatusChange{}, err
	}

	change := StatusChange{RideID: payload.RideID}
	if len(payload.Ride) > 0 && string(payload.Ride) != "null" {
		var ride domain.Ride
		if err := json.Unmarshal(payload.Ride, &ride); err != nil {
			return StatusChange{}, err
		}
		if change.RideID.IsZero() {
			change.RideID = ride.ID
		}
		if payload.Status == "" {
			payload.Status = ride.Status.String()
		}
		change.Ride = &ride
	}

	if change.RideID.IsZero() {
		return StatusChange{}, errMissingRideID
	}
	status, err := domain.ParseRideStatus(payload.Status)
	if err != nil {
		return StatusChange{}, fmt.Errorf("%w %q", err, payload.Status)
	}
	change.Status = status

	if change.Ride != nil {
		change.Ride.ID = change.RideID
		change.Ride.Status = status
	}
	return change, nil
}

func decodeDriverLocation(envelope networking.InboundEnvelope) (domain.DriverLocationUpdate, error) {
	var update domain.DriverLocationUpdate
	if err := envelope.Decode(&update); err != nil {
		return update, err
	}
	if update.DriverID.IsZero() {
		return update, errMissingDriverID
	}
	return update, nil
}

func decodeCancellation(envelope networking.InboundEnvelope) (domain.ID, error) {
	var payload struct {
		RideID domain.ID `json:"rideId"`
	}
	if err := envelope.Decode(&payload); err != nil {
		return "", err
	}
	if payload.RideID.IsZero() {
		return "", errMissingRideID
	}
	return payload.RideID, nil
}

func decodeChatMessage(envelope networking.InboundEnvelope) (domain.ChatMessage, error) {
	var message domain.ChatMessage
	if err := envelope.Decode(&message); err != nil {
		return message, err
	}
	if message.Message == "" {
		return message, errEmptyMessage
	}
	return message, nil
}
