package kinetics

// State is the mutable part of a run: the current time and one particle
// count per species, indexed by SpeciesID.
type State struct {
	Time   float64 `json:"time"`
	Counts []int64 `json:"counts"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	counts := make([]int64, len(s.Counts))
	copy(counts, s.Counts)
	return State{Time: s.Time, Counts: counts}
}

// Count returns the particle count of one species.
func (s State) Count(id SpeciesID) int64 {
	return s.Counts[id]
}

// Sample is one recorded point of a trajectory.
type Sample struct {
	Time   float64 `json:"time"`
	Counts []int64 `json:"counts"`
}

// Trajectory is the ordered, append-only record of a run. Samples never alias
// the live state of the driver.
type Trajectory struct {
	Species []string `json:"species"`
	Samples []Sample `json:"samples"`
}

func NewTrajectory(species []string) *Trajectory {
	names := make([]string, len(species))
	copy(names, species)
	return &Trajectory{Species: names, Samples: make([]Sample, 0, 64)}
}

// Append records a copy of s.
func (t *Trajectory) Append(s State) {
	t.AppendAt(s.Time, s)
}

// AppendAt records a copy of the counts of s stamped with time at.
func (t *Trajectory) AppendAt(at float64, s State) {
	counts := make([]int64, len(s.Counts))
	copy(counts, s.Counts)
	t.Samples = append(t.Samples, Sample{Time: at, Counts: counts})
}

func (t *Trajectory) Len() int { return len(t.Samples) }

// Last returns the most recent sample, if any.
func (t *Trajectory) Last() (Sample, bool) {
	if len(t.Samples) == 0 {
		return Sample{}, false
	}
	return t.Samples[len(t.Samples)-1], true
}

// Times returns the sample times.
func (t *Trajectory) Times() []float64 {
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.Time
	}
	return out
}

// Series returns the counts of one species over time as floats.
func (t *Trajectory) Series(species string) ([]float64, bool) {
	idx := -1
	for i, name := range t.Species {
		if name == species {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = float64(s.Counts[idx])
	}
	return out, true
}
