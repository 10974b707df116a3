package kinetics

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildModelDefaults(t *testing.T) {
	m, err := BuildModelFromConfig(ModelConfig{
		Name:    "defaults",
		Species: []SpeciesConfig{{Name: "A", InitialCount: 5}, {Name: "B"}},
		Reactions: []ReactionConfig{
			{ID: "r1", Rate: 1, Substrates: []TermConfig{{Species: "A"}}, Products: []TermConfig{{Species: "B", Multiplicity: 2}}},
		},
	})
	if err != nil {
		t.Fatalf("BuildModelFromConfig: %v", err)
	}

	comps := m.Compartments()
	if len(comps) != 1 || comps[0].Name != DefaultCompartment || comps[0].Volume != 1 {
		t.Errorf("expected implicit default compartment, got %+v", comps)
	}
	r := m.Reactions()[0]
	if r.Name != "r1" {
		t.Errorf("reaction name should default to its ID, got %q", r.Name)
	}
	if r.Substrates[0].Multiplicity != 1 {
		t.Errorf("zero multiplicity should mean 1, got %d", r.Substrates[0].Multiplicity)
	}
	if got := m.InitialState().Counts; got[0] != 5 || got[1] != 0 {
		t.Errorf("unexpected initial state %v", got)
	}
	if id, ok := m.SpeciesByName("B"); !ok || id != 1 {
		t.Errorf("SpeciesByName(B) = %d, %v", id, ok)
	}
	if _, ok := m.ReactionByID("missing"); ok {
		t.Error("unknown reaction should not resolve")
	}
}

func TestBalanceIsProductsMinusSubstrates(t *testing.T) {
	// A + B -> 2A: A nets +1, B nets -1.
	m, err := NewModelBuilder("autocatalysis").
		Species("A", 1).
		Species("B", 10).
		Reaction("r", 1, Terms("A", 1, "B", 1), Terms("A", 2)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := m.Balance(0)
	want := []Delta{{Species: 0, Change: 1}, {Species: 1, Change: -1}}
	if len(got) != len(want) {
		t.Fatalf("Balance = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Balance[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCatalystHasNoBalanceEntry(t *testing.T) {
	m, err := NewModelBuilder("catalysis").
		Species("E", 1).
		Species("S", 10).
		Species("P", 0).
		Reaction("r", 1, Terms("E", 1, "S", 1), Terms("E", 1, "P", 1)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, d := range m.Balance(0) {
		if d.Species == 0 {
			t.Errorf("catalyst E should not appear in the balance: %v", m.Balance(0))
		}
	}
}

func TestValidateModelConfigCollectsIssues(t *testing.T) {
	cfg := ModelConfig{
		Compartments: []CompartmentConfig{{Name: "c", Volume: 0}},
		Species:      []SpeciesConfig{{Name: "A", InitialCount: -1}, {Name: "A"}},
		Reactions: []ReactionConfig{
			{ID: "r", Rate: -1, Substrates: []TermConfig{{Species: "X"}}},
			{ID: "r"},
		},
	}
	err := ValidateModelConfig(cfg)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	for _, want := range []string{
		"model name is required",
		"volume must be a positive finite number",
		"initial count must be >= 0",
		"duplicate species name: A",
		"rate must be a non-negative finite number",
		"species 'X' does not exist",
		"duplicate reaction ID: r",
		"at least one substrate or product",
	} {
		found := false
		for _, issue := range verr.Issues {
			if strings.Contains(issue, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing issue %q in %v", want, verr.Issues)
		}
	}
}

func TestModelConfigRoundTrip(t *testing.T) {
	m := dimerModel(t, 10, 2)
	again, err := BuildModelFromConfig(m.Config())
	if err != nil {
		t.Fatalf("rebuild from Config(): %v", err)
	}
	if again.NumSpecies() != m.NumSpecies() || again.NumReactions() != m.NumReactions() {
		t.Fatalf("round trip changed the model shape")
	}
	if again.volume(0) != 2 {
		t.Errorf("volume lost in round trip: %v", again.volume(0))
	}
}

func TestDecodeModelConfig(t *testing.T) {
	yamlDoc := `
name: decay
species:
  - name: A
    initial_count: 100
reactions:
  - id: decay
    rate: 0.1
    substrates:
      - species: A
`
	cfg, err := DecodeModelConfig([]byte(yamlDoc), FormatYAML)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if cfg.Species[0].InitialCount != 100 || cfg.Reactions[0].Rate != 0.1 {
		t.Errorf("unexpected yaml decode: %+v", cfg)
	}

	jsonDoc := `{"name":"decay","species":[{"name":"A","initial_count":3}],"reactions":[{"id":"d","rate":1,"substrates":[{"species":"A"}]}]}`
	cfg, err = DecodeModelConfig([]byte(jsonDoc), FormatJSON)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if cfg.Species[0].InitialCount != 3 {
		t.Errorf("unexpected json decode: %+v", cfg)
	}

	if _, err := DecodeModelConfig([]byte(`{"name":"x","speces":[]}`), FormatJSON); err == nil {
		t.Error("expected unknown field to be rejected")
	}
}

func TestFormatDetection(t *testing.T) {
	if FormatFromPath("model.YML") != FormatYAML || FormatFromPath("model.json") != FormatJSON {
		t.Error("FormatFromPath mismatch")
	}
	if FormatFromContentType("application/x-yaml") != FormatYAML || FormatFromContentType("application/json") != FormatJSON {
		t.Error("FormatFromContentType mismatch")
	}
}

func TestModelBuilderRejectsInvalid(t *testing.T) {
	_, err := NewModelBuilder("bad").
		Species("A", 1).
		Reaction("r", 1, Terms("B", 1), nil).
		Build()
	if err == nil {
		t.Fatal("expected error for unknown species")
	}
}
