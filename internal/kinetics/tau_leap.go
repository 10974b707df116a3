package kinetics

import "gonum.org/v1/gonum/stat/distuv"

// TauLeapMethod is explicit fixed-step tau-leaping. Each reaction fires a
// Poisson(a_j*tau) number of times per leap. Leaps that would make a count
// negative are rejected and retried with half the step; when the expected
// number of firings is small, or the retries run out, the step degrades to a
// single direct-method event.
type TauLeapMethod struct {
	opts    MethodOptions
	calc    *PropensityCalculator
	updater *StateUpdater
	rng     *RNG
	props   []float64
	firings []int64
}

func (m *TauLeapMethod) Kind() MethodKind { return MethodTauLeap }

func (m *TauLeapMethod) Initialize(model *Model, rng *RNG) error {
	m.calc = NewPropensityCalculator(model)
	m.updater = NewStateUpdater(model)
	m.rng = rng
	m.props = make([]float64, model.NumReactions())
	m.firings = make([]int64, model.NumReactions())
	return nil
}

func (m *TauLeapMethod) Step(s *State, horizon float64) (Event, error) {
	total, err := m.calc.Compute(s, m.props)
	if err != nil {
		return Event{}, err
	}
	if total == 0 {
		return Event{Kind: EventExhausted, Time: s.Time}, nil
	}

	tau := m.opts.Tau
	clipped := s.Time+tau > horizon
	if clipped {
		tau = horizon - s.Time
	}
	if !(tau > 0) || total*tau < m.opts.DirectThreshold {
		return directEvent(m.props, total, s, horizon, m.rng)
	}

	for attempt := 0; attempt <= m.opts.MaxRejections; attempt++ {
		m.drawFirings(tau)
		if m.updater.CanApply(s, m.firings) {
			firings := make([]int64, len(m.firings))
			copy(firings, m.firings)
			at := s.Time + tau
			if clipped {
				at = horizon
			}
			return Event{Kind: EventFire, Time: at, Reaction: -1, Firings: firings}, nil
		}
		tau /= 2
		clipped = false
	}
	return directEvent(m.props, total, s, horizon, m.rng)
}

func (m *TauLeapMethod) drawFirings(tau float64) {
	for j, a := range m.props {
		lambda := a * tau
		if lambda <= 0 {
			m.firings[j] = 0
			continue
		}
		p := distuv.Poisson{Lambda: lambda, Src: m.rng.Source()}
		m.firings[j] = int64(p.Rand())
	}
}

func (m *TauLeapMethod) Finalize() {
	m.props = nil
	m.firings = nil
}
