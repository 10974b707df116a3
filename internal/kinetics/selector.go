package kinetics

// SelectReaction draws a reaction index with probability proportional to its
// propensity. u must be uniform on [0,1) and total must be the sum of
// propensities. The first index r with u*total < sum(propensities[0..r]) is
// returned.
//
// If rounding keeps the running sum below the scaled draw, the last reaction
// with a non-zero propensity is returned; a reaction with zero propensity is
// never selected.
func SelectReaction(propensities []float64, total, u float64) (ReactionID, error) {
	if !(total > 0) {
		return -1, ErrNoPropensity
	}

	target := u * total
	cumulative := 0.0
	last := -1
	for i, a := range propensities {
		if a <= 0 {
			continue
		}
		last = i
		cumulative += a
		if target < cumulative {
			return ReactionID(i), nil
		}
	}
	if last < 0 {
		return -1, ErrNoPropensity
	}
	return ReactionID(last), nil
}
