package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// RideStatus is the lifecycle of a ride as sent by the backend.
type RideStatus string

const (
	RidePending        RideStatus = "pending"
	RideAccepted       RideStatus = "accepted"
	RideDriverArriving RideStatus = "driver_arriving"
	RideInProgress     RideStatus = "in_progress"
	RideCompleted      RideStatus = "completed"
	RideCancelled      RideStatus = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseRideStatus normalizes (lowercases, trims, hyphens to underscores) and validates a status string.
func ParseRideStatus(in string) (RideStatus, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(in)), "-", "_")
	if normalized == "canceled" {
		normalized = string(RideCancelled)
	}

	status := RideStatus(normalized)
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

func (status RideStatus) Valid() bool {
	switch status {
	case RidePending, RideAccepted, RideDriverArriving, RideInProgress, RideCompleted, RideCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the ride is over and no longer belongs in the active set.
func (status RideStatus) Terminal() bool {
	return status == RideCompleted || status == RideCancelled
}

func (status RideStatus) String() string {
	return string(status)
}

// UnmarshalJSON keeps unknown values as-is so Valid can reject them later.
func (status *RideStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrInvalidStatus
	}
	parsed, err := ParseRideStatus(raw)
	if err != nil {
		*status = RideStatus(raw)
		return nil
	}
	*status = parsed
	return nil
}
