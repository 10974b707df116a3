package kinetics

import "fmt"

// StateUpdater applies reaction events to a state using the balance vectors
// of the model. It is the only component that mutates species counts.
type StateUpdater struct {
	model *Model
	// scratch for multi-reaction events
	next []int64
}

func NewStateUpdater(model *Model) *StateUpdater {
	return &StateUpdater{model: model, next: make([]int64, model.NumSpecies())}
}

// Apply fires the event on s and advances s.Time to the event time. If any
// count would become negative, s is left untouched and an *InvariantError is
// returned.
func (u *StateUpdater) Apply(s *State, ev Event) error {
	if ev.Firings == nil {
		return u.applyOnce(s, ev)
	}
	if err := u.project(s, ev.Firings); err != nil {
		err.Time = ev.Time
		return err
	}
	copy(s.Counts, u.next)
	s.Time = ev.Time
	return nil
}

// CanApply reports whether firing each reaction firings[r] times keeps every
// count non-negative.
func (u *StateUpdater) CanApply(s *State, firings []int64) bool {
	return u.project(s, firings) == nil
}

func (u *StateUpdater) applyOnce(s *State, ev Event) error {
	balance := u.model.balances[ev.Reaction]
	for _, d := range balance {
		if s.Counts[d.Species]+d.Change < 0 {
			return &InvariantError{
				Time:     ev.Time,
				Reaction: ev.Reaction,
				Species:  d.Species,
				Detail: fmt.Sprintf("reaction %s would drive %s to %d",
					u.model.reactions[ev.Reaction].ID, u.model.species[d.Species].Name, s.Counts[d.Species]+d.Change),
			}
		}
	}
	for _, d := range balance {
		s.Counts[d.Species] += d.Change
	}
	s.Time = ev.Time
	return nil
}

// project writes the counts after the given firings into u.next.
func (u *StateUpdater) project(s *State, firings []int64) *InvariantError {
	copy(u.next, s.Counts)
	for r, k := range firings {
		if k == 0 {
			continue
		}
		for _, d := range u.model.balances[r] {
			u.next[d.Species] += k * d.Change
		}
	}
	for i, c := range u.next {
		if c < 0 {
			return &InvariantError{
				Time:     s.Time,
				Reaction: -1,
				Species:  SpeciesID(i),
				Detail:   fmt.Sprintf("leap would drive %s to %d", u.model.species[i].Name, c),
			}
		}
	}
	return nil
}
