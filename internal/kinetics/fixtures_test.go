package kinetics

import "testing"

// decayModel: A -> 0 with rate k.
func decayModel(t *testing.T, a0 int64, k float64) *Model {
	t.Helper()
	m, err := NewModelBuilder("decay").
		Species("A", a0).
		Reaction("decay", k, Terms("A", 1), nil).
		Build()
	if err != nil {
		t.Fatalf("build decay model: %v", err)
	}
	return m
}

// dimerModel: 2A -> B in a compartment of the given volume, plus B -> 2A.
func dimerModel(t *testing.T, a0 int64, volume float64) *Model {
	t.Helper()
	m, err := NewModelBuilder("dimerisation").
		Compartment("cell", volume).
		Species("A", a0).
		Species("B", 0).
		Reaction("dimerise", 0.5, Terms("A", 2), Terms("B", 1)).
		Reaction("dissociate", 0.1, Terms("B", 1), Terms("A", 2)).
		Build()
	if err != nil {
		t.Fatalf("build dimer model: %v", err)
	}
	return m
}

// blockedModel: A + B -> C with B absent, so nothing can ever fire.
func blockedModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModelBuilder("blocked").
		Species("A", 10).
		Species("B", 0).
		Species("C", 0).
		Reaction("bind", 1, Terms("A", 1, "B", 1), Terms("C", 1)).
		Build()
	if err != nil {
		t.Fatalf("build blocked model: %v", err)
	}
	return m
}

// conversionModel: A -> B, closed system.
func conversionModel(t *testing.T, a0 int64, k float64) *Model {
	t.Helper()
	m, err := NewModelBuilder("conversion").
		Species("A", a0).
		Species("B", 0).
		Reaction("convert", k, Terms("A", 1), Terms("B", 1)).
		Build()
	if err != nil {
		t.Fatalf("build conversion model: %v", err)
	}
	return m
}

func seed(v uint64) *uint64 { return &v }
