package kinetics

import (
	"fmt"
	"math"
)

// PropensityCalculator evaluates mass-action propensities for every reaction
// of a model. All propensities and their sum are recomputed from scratch on
// each call, which is linear in the network size; large networks would want
// a dependency graph and incremental updates instead.
type PropensityCalculator struct {
	model *Model
	// scale[r] = k_r / V_r^(N_r-1), or k_r for zero-order reactions.
	scale []float64
}

func NewPropensityCalculator(model *Model) *PropensityCalculator {
	scale := make([]float64, model.NumReactions())
	for i, r := range model.reactions {
		n := r.Order()
		if n == 0 {
			scale[i] = r.Rate
			continue
		}
		scale[i] = r.Rate / math.Pow(model.volume(ReactionID(i)), float64(n-1))
	}
	return &PropensityCalculator{model: model, scale: scale}
}

// FallingFactorial returns count*(count-1)*...*(count-n+1). It is zero
// whenever count < n, so insufficient substrate never yields a negative factor.
func FallingFactorial(count int64, n int) float64 {
	if n <= 0 {
		return 1
	}
	if count < int64(n) {
		return 0
	}
	f := 1.0
	for i := 0; i < n; i++ {
		f *= float64(count - int64(i))
	}
	return f
}

// Propensity computes the propensity of one reaction in state s.
func (c *PropensityCalculator) Propensity(r ReactionID, s *State) (float64, error) {
	a := c.scale[r]
	for _, t := range c.model.reactions[r].Substrates {
		count := s.Counts[t.Species]
		if count < 0 {
			return 0, &InvariantError{
				Time:     s.Time,
				Reaction: r,
				Species:  t.Species,
				Detail:   fmt.Sprintf("species %s has negative count %d", c.model.species[t.Species].Name, count),
			}
		}
		a *= FallingFactorial(count, t.Multiplicity)
		if a == 0 {
			break
		}
	}
	if a < 0 || math.IsNaN(a) || math.IsInf(a, 0) {
		return 0, &InvariantError{
			Time:     s.Time,
			Reaction: r,
			Detail:   fmt.Sprintf("reaction %s has invalid propensity %v", c.model.reactions[r].ID, a),
		}
	}
	return a, nil
}

// Compute fills out (len = number of reactions) and returns the total
// propensity.
func (c *PropensityCalculator) Compute(s *State, out []float64) (float64, error) {
	if len(out) != len(c.scale) {
		return 0, fmt.Errorf("propensity buffer has %d entries, model has %d reactions", len(out), len(c.scale))
	}
	total := 0.0
	for i := range c.scale {
		a, err := c.Propensity(ReactionID(i), s)
		if err != nil {
			return 0, err
		}
		out[i] = a
		total += a
	}
	if math.IsInf(total, 0) {
		return 0, &InvariantError{Time: s.Time, Detail: "total propensity overflowed"}
	}
	return total, nil
}
