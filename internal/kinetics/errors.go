package kinetics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every run configuration error. These are
	// reported before a run enters the running state.
	ErrInvalidConfig = errors.New("kinetics: invalid run configuration")

	// ErrNoPropensity is returned by the selector and the sampler when the
	// total propensity is not positive.
	ErrNoPropensity = errors.New("kinetics: total propensity must be positive")

	ErrModelNotFound = errors.New("kinetics: model not found")
	ErrRunNotFound   = errors.New("kinetics: run not found")
	ErrRunActive     = errors.New("kinetics: run is still active")
	ErrManagerClosed = errors.New("kinetics: manager closed")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// InvariantError reports a logic or data inconsistency detected during a run:
// a negative propensity or a species count that would go negative. A run that
// hits one is failed and never retried.
type InvariantError struct {
	Step     int64
	Time     float64
	Reaction ReactionID
	Species  SpeciesID
	Detail   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("kinetics: invariant violated at step %d (t=%g): %s", e.Step, e.Time, e.Detail)
}
