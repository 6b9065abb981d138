package rides

import (
	"errors"
	"fmt"

	"github.com/agaraleas/RideSync/domain"
)

var ErrInvalidRide = errors.New("invalid ride")

// CommandError wraps the durable API failure of a command. The cache is
// never touched when one is returned.
type CommandError struct {
	Op     string
	RideID domain.ID
	Err    error
}

func (e *CommandError) Error() string {
	if e.RideID.IsZero() {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s for ride %s failed: %v", e.Op, e.RideID, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
