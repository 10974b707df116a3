package kinetics

import (
	"fmt"
	"math"
)

// CompartmentID, SpeciesID and ReactionID are typed handles into the arrays
// owned by a Model. Names are resolved to handles once, when the model is
// built; the simulation core never looks anything up by name.
type (
	CompartmentID int
	SpeciesID     int
	ReactionID    int
)

// Compartment is a well-mixed reaction volume.
type Compartment struct {
	Name   string
	Volume float64
}

// Species is a chemical species living in one compartment.
type Species struct {
	Name         string
	Description  string
	Compartment  CompartmentID
	InitialCount int64
	Meta         map[string]any
}

// Term is one (species, multiplicity) pair of a reaction side.
type Term struct {
	Species      SpeciesID
	Multiplicity int
}

// Delta is the net change of one species when a reaction fires once.
type Delta struct {
	Species SpeciesID
	Change  int64
}

// Reaction is a mass-action reaction with a stochastic rate constant.
type Reaction struct {
	ID          string
	Name        string
	Compartment CompartmentID
	Rate        float64
	Substrates  []Term
	Products    []Term
}

// Order returns the total substrate multiplicity.
func (r Reaction) Order() int {
	n := 0
	for _, t := range r.Substrates {
		n += t.Multiplicity
	}
	return n
}

// Model is an immutable reaction network. It is safe to share a single Model
// between concurrent runs; every run owns its own State.
type Model struct {
	name         string
	compartments []Compartment
	species      []Species
	reactions    []Reaction
	balances     [][]Delta

	speciesIndex  map[string]SpeciesID
	reactionIndex map[string]ReactionID
}

func (m *Model) Name() string { return m.name }

// Compartments returns a copy of the compartment table.
func (m *Model) Compartments() []Compartment {
	out := make([]Compartment, len(m.compartments))
	copy(out, m.compartments)
	return out
}

// Species returns a copy of the species table.
func (m *Model) Species() []Species {
	out := make([]Species, len(m.species))
	copy(out, m.species)
	return out
}

// Reactions returns a copy of the reaction table.
func (m *Model) Reactions() []Reaction {
	out := make([]Reaction, len(m.reactions))
	copy(out, m.reactions)
	return out
}

func (m *Model) NumSpecies() int   { return len(m.species) }
func (m *Model) NumReactions() int { return len(m.reactions) }

// SpeciesByName resolves a species name to its handle.
func (m *Model) SpeciesByName(name string) (SpeciesID, bool) {
	id, ok := m.speciesIndex[name]
	return id, ok
}

// ReactionByID resolves a reaction identifier to its handle.
func (m *Model) ReactionByID(id string) (ReactionID, bool) {
	r, ok := m.reactionIndex[id]
	return r, ok
}

// SpeciesNames returns species names in handle order.
func (m *Model) SpeciesNames() []string {
	names := make([]string, len(m.species))
	for i, sp := range m.species {
		names[i] = sp.Name
	}
	return names
}

// Balance returns the non-zero net changes of reaction r.
func (m *Model) Balance(r ReactionID) []Delta {
	return m.balances[r]
}

func (m *Model) volume(r ReactionID) float64 {
	return m.compartments[m.reactions[r].Compartment].Volume
}

// InitialState returns the state at t=0 built from the species initial counts.
func (m *Model) InitialState() State {
	counts := make([]int64, len(m.species))
	for i, sp := range m.species {
		counts[i] = sp.InitialCount
	}
	return State{Time: 0, Counts: counts}
}

// computeBalance folds products minus substrates per species, keeping the
// first-seen species order so the result is deterministic.
func computeBalance(r Reaction) []Delta {
	order := make([]SpeciesID, 0, len(r.Substrates)+len(r.Products))
	net := make(map[SpeciesID]int64)
	add := func(s SpeciesID, v int64) {
		if _, seen := net[s]; !seen {
			order = append(order, s)
		}
		net[s] += v
	}
	for _, t := range r.Substrates {
		add(t.Species, -int64(t.Multiplicity))
	}
	for _, t := range r.Products {
		add(t.Species, int64(t.Multiplicity))
	}

	out := make([]Delta, 0, len(order))
	for _, s := range order {
		if net[s] != 0 {
			out = append(out, Delta{Species: s, Change: net[s]})
		}
	}
	return out
}

// newModel indexes and freezes the given tables. Handles inside species and
// reactions must already be valid.
func newModel(name string, compartments []Compartment, species []Species, reactions []Reaction) (*Model, error) {
	m := &Model{
		name:          name,
		compartments:  compartments,
		species:       species,
		reactions:     reactions,
		balances:      make([][]Delta, len(reactions)),
		speciesIndex:  make(map[string]SpeciesID, len(species)),
		reactionIndex: make(map[string]ReactionID, len(reactions)),
	}
	for _, c := range compartments {
		if !(c.Volume > 0) || math.IsInf(c.Volume, 0) {
			return nil, fmt.Errorf("compartment %s has invalid volume %v", c.Name, c.Volume)
		}
	}
	for i, sp := range species {
		if sp.InitialCount < 0 {
			return nil, fmt.Errorf("species %s has negative initial count %d", sp.Name, sp.InitialCount)
		}
		if _, dup := m.speciesIndex[sp.Name]; dup {
			return nil, fmt.Errorf("duplicate species name: %s", sp.Name)
		}
		if int(sp.Compartment) < 0 || int(sp.Compartment) >= len(compartments) {
			return nil, fmt.Errorf("species %s references unknown compartment %d", sp.Name, sp.Compartment)
		}
		m.speciesIndex[sp.Name] = SpeciesID(i)
	}
	for i, r := range reactions {
		if _, dup := m.reactionIndex[r.ID]; dup {
			return nil, fmt.Errorf("duplicate reaction ID: %s", r.ID)
		}
		if int(r.Compartment) < 0 || int(r.Compartment) >= len(compartments) {
			return nil, fmt.Errorf("reaction %s references unknown compartment %d", r.ID, r.Compartment)
		}
		if r.Rate < 0 || math.IsNaN(r.Rate) || math.IsInf(r.Rate, 0) {
			return nil, fmt.Errorf("reaction %s has invalid rate %v", r.ID, r.Rate)
		}
		for _, t := range append(append([]Term{}, r.Substrates...), r.Products...) {
			if int(t.Species) < 0 || int(t.Species) >= len(species) {
				return nil, fmt.Errorf("reaction %s references unknown species %d", r.ID, t.Species)
			}
			if t.Multiplicity < 1 {
				return nil, fmt.Errorf("reaction %s has multiplicity %d for species %s", r.ID, t.Multiplicity, species[t.Species].Name)
			}
		}
		m.reactionIndex[r.ID] = ReactionID(i)
		m.balances[i] = computeBalance(r)
	}
	return m, nil
}
