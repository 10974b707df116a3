package kinetics

import (
	"fmt"
	"strings"
)

// MethodKind names a simulation algorithm.
type MethodKind string

const (
	MethodDirect  MethodKind = "direct"
	MethodTauLeap MethodKind = "tau-leap"
)

// ParseMethodKind accepts the canonical names plus a few common aliases.
// The empty string selects the direct method.
func ParseMethodKind(s string) (MethodKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct", "ssa", "gillespie":
		return MethodDirect, nil
	case "tau-leap", "tauleap", "tau_leap":
		return MethodTauLeap, nil
	default:
		return "", fmt.Errorf("unsupported simulation method: %s", s)
	}
}

// EventKind classifies what a method step proposes.
type EventKind int

const (
	// EventFire proposes a state change at Event.Time.
	EventFire EventKind = iota
	// EventExhausted means the total propensity is zero: nothing can react.
	EventExhausted
	// EventHorizon means the next event would happen after the horizon; it
	// is not applied.
	EventHorizon
)

func (k EventKind) String() string {
	switch k {
	case EventFire:
		return "fire"
	case EventExhausted:
		return "exhausted"
	case EventHorizon:
		return "horizon"
	default:
		return "unknown"
	}
}

// Event is the outcome of one method step. A fire event carries either a
// single Reaction (Firings == nil) or a per-reaction firing count vector.
type Event struct {
	Kind     EventKind
	Time     float64
	Reaction ReactionID
	Firings  []int64
}

// Method is a stochastic simulation algorithm. Implementations propose
// events; the driver records samples and applies them through StateUpdater.
type Method interface {
	Kind() MethodKind
	Initialize(model *Model, rng *RNG) error
	Step(s *State, horizon float64) (Event, error)
	Finalize()
}

// MethodOptions tunes the non-default methods. Zero values pick defaults.
type MethodOptions struct {
	// Tau is the tau-leap step length.
	Tau float64
	// MaxRejections bounds how many times a leap is halved before falling
	// back to a single direct-method event.
	MaxRejections int
	// DirectThreshold: when the expected number of firings in a leap
	// (total propensity times tau) is below it, a direct event is used.
	DirectThreshold float64
}

const (
	DefaultMaxRejections   = 10
	DefaultDirectThreshold = 10.0
)

// NewMethod returns an uninitialised method of the requested kind.
func NewMethod(kind MethodKind, opts MethodOptions) (Method, error) {
	switch kind {
	case MethodDirect, "":
		return &DirectMethod{}, nil
	case MethodTauLeap:
		if !(opts.Tau > 0) {
			return nil, configError("tau-leap requires a positive tau, got %v", opts.Tau)
		}
		if opts.MaxRejections <= 0 {
			opts.MaxRejections = DefaultMaxRejections
		}
		if opts.DirectThreshold <= 0 {
			opts.DirectThreshold = DefaultDirectThreshold
		}
		return &TauLeapMethod{opts: opts}, nil
	default:
		return nil, configError("unsupported simulation method: %s", kind)
	}
}

// directEvent runs the selector and the time sampler on precomputed
// propensities. The selector draw comes first so runs stay reproducible.
func directEvent(props []float64, total float64, s *State, horizon float64, rng *RNG) (Event, error) {
	r, err := SelectReaction(props, total, rng.Uniform())
	if err != nil {
		return Event{}, err
	}
	dt, err := WaitingTime(total, rng.OpenUniform())
	if err != nil {
		return Event{}, err
	}
	t := s.Time + dt
	if t > horizon {
		return Event{Kind: EventHorizon, Time: t, Reaction: r}, nil
	}
	return Event{Kind: EventFire, Time: t, Reaction: r}, nil
}
