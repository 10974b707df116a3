package kinetics

// DirectMethod is Gillespie's direct method: every step recomputes all
// propensities, picks one reaction weighted by propensity and draws an
// exponential waiting time from the total.
type DirectMethod struct {
	calc  *PropensityCalculator
	rng   *RNG
	props []float64
}

func (m *DirectMethod) Kind() MethodKind { return MethodDirect }

func (m *DirectMethod) Initialize(model *Model, rng *RNG) error {
	m.calc = NewPropensityCalculator(model)
	m.rng = rng
	m.props = make([]float64, model.NumReactions())
	return nil
}

func (m *DirectMethod) Step(s *State, horizon float64) (Event, error) {
	total, err := m.calc.Compute(s, m.props)
	if err != nil {
		return Event{}, err
	}
	if total == 0 {
		return Event{Kind: EventExhausted, Time: s.Time}, nil
	}
	return directEvent(m.props, total, s, horizon, m.rng)
}

// Propensities returns the vector computed by the last step.
func (m *DirectMethod) Propensities() []float64 {
	out := make([]float64, len(m.props))
	copy(out, m.props)
	return out
}

func (m *DirectMethod) Finalize() {
	m.props = nil
}
