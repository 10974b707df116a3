package notifiers

import (
	"fmt"
	"slices"

	"github.com/daniacca/stochkin/internal/kinetics"
)

// EventFilter selects the run events a notifier forwards. Empty fields
// match everything.
type EventFilter struct {
	Events  []string       `json:"events,omitempty" yaml:"events,omitempty"`
	RunID   kinetics.RunID `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ModelID string         `json:"model_id,omitempty" yaml:"model_id,omitempty"`
}

var knownEvents = []string{
	kinetics.EventRunStarted,
	kinetics.EventRunProgress,
	kinetics.EventRunFinished,
}

func (f EventFilter) validate() error {
	for _, ev := range f.Events {
		if !slices.Contains(knownEvents, ev) {
			return fmt.Errorf("unknown event type %q (want one of %v)", ev, knownEvents)
		}
	}
	return nil
}

// Match reports whether the event passes the filter.
func (f EventFilter) Match(event kinetics.RunEvent) bool {
	if len(f.Events) > 0 && !slices.Contains(f.Events, event.Type) {
		return false
	}
	if f.RunID != "" && f.RunID != event.RunID {
		return false
	}
	return f.ModelID == "" || f.ModelID == event.ModelID
}
