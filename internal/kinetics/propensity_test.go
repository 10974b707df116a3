package kinetics

import (
	"errors"
	"math"
	"testing"
)

func TestFallingFactorial(t *testing.T) {
	tests := []struct {
		count int64
		n     int
		want  float64
	}{
		{5, 0, 1},
		{5, 1, 5},
		{5, 2, 20},
		{5, 3, 60},
		{1, 2, 0},
		{0, 1, 0},
		{2, 2, 2},
	}
	for _, tt := range tests {
		if got := FallingFactorial(tt.count, tt.n); got != tt.want {
			t.Errorf("FallingFactorial(%d, %d) = %v, want %v", tt.count, tt.n, got, tt.want)
		}
	}
}

func TestPropensityMassAction(t *testing.T) {
	// 2A -> B with k=0.5, V=2, A=10: 0.5 * 10*9 / 2^(2-1) = 22.5
	m := dimerModel(t, 10, 2)
	calc := NewPropensityCalculator(m)
	s := m.InitialState()

	a, err := calc.Propensity(0, &s)
	if err != nil {
		t.Fatalf("Propensity: %v", err)
	}
	if a != 22.5 {
		t.Errorf("dimerise propensity = %v, want 22.5", a)
	}
	// B is 0, so dissociation cannot fire.
	if a, _ := calc.Propensity(1, &s); a != 0 {
		t.Errorf("dissociate propensity = %v, want 0", a)
	}

	props := make([]float64, m.NumReactions())
	total, err := calc.Compute(&s, props)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if total != 22.5 || props[0] != 22.5 || props[1] != 0 {
		t.Errorf("Compute = %v %v", total, props)
	}
}

func TestPropensityZeroOrderIsRate(t *testing.T) {
	m, err := NewModelBuilder("production").
		Compartment("c", 5).
		Species("A", 0).
		Reaction("make", 3, nil, Terms("A", 1)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := m.InitialState()
	a, err := NewPropensityCalculator(m).Propensity(0, &s)
	if err != nil {
		t.Fatalf("Propensity: %v", err)
	}
	if a != 3 {
		t.Errorf("zero-order propensity = %v, want 3", a)
	}
}

func TestPropensityInsufficientSubstrateIsZero(t *testing.T) {
	m := dimerModel(t, 1, 1)
	s := m.InitialState()
	a, err := NewPropensityCalculator(m).Propensity(0, &s)
	if err != nil {
		t.Fatalf("Propensity: %v", err)
	}
	if a != 0 {
		t.Errorf("propensity with A=1 for 2A -> B = %v, want 0", a)
	}
}

func TestPropensityNeverNegative(t *testing.T) {
	m := dimerModel(t, 0, 3)
	calc := NewPropensityCalculator(m)
	props := make([]float64, m.NumReactions())
	for a := int64(0); a < 50; a++ {
		for b := int64(0); b < 5; b++ {
			s := State{Counts: []int64{a, b}}
			if _, err := calc.Compute(&s, props); err != nil {
				t.Fatalf("Compute(%d,%d): %v", a, b, err)
			}
			for r, p := range props {
				if p < 0 {
					t.Fatalf("negative propensity %v for reaction %d at A=%d B=%d", p, r, a, b)
				}
			}
		}
	}
}

func TestPropensityInvariantViolations(t *testing.T) {
	m := decayModel(t, 10, 1)
	calc := NewPropensityCalculator(m)

	s := State{Counts: []int64{-1}}
	_, err := calc.Propensity(0, &s)
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected *InvariantError for negative count, got %v", err)
	}

	huge, err := NewModelBuilder("overflow").
		Species("A", 1_000_000_000).
		Reaction("r", math.MaxFloat64/10, Terms("A", 2), nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	hs := huge.InitialState()
	if _, err := NewPropensityCalculator(huge).Propensity(0, &hs); !errors.As(err, &inv) {
		t.Fatalf("expected *InvariantError for infinite propensity, got %v", err)
	}

	if _, err := calc.Compute(&s, make([]float64, 3)); err == nil {
		t.Fatal("expected error for wrong buffer length")
	}
}
