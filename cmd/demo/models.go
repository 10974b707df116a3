package main

import "github.com/daniacca/stochkin/internal/kinetics"

// demoModel pairs a model with the run that showcases it.
type demoModel struct {
	model *kinetics.Model
	cfg   kinetics.RunConfig
}

// decayModel: A -> 0, the textbook first-order decay.
func decayModel() (*kinetics.Model, error) {
	return kinetics.NewModelBuilder("decay").
		Species("A", 1000).
		Reaction("decay", 0.5, kinetics.Terms("A", 1), nil).
		Build()
}

// dimerisationModel: 2A <-> B in a unit compartment.
func dimerisationModel() (*kinetics.Model, error) {
	return kinetics.NewModelBuilder("dimerisation").
		Compartment("cell", 1).
		Species("A", 300).
		Species("B", 0).
		Reaction("dimerise", 0.002, kinetics.Terms("A", 2), kinetics.Terms("B", 1)).
		Reaction("dissociate", 0.1, kinetics.Terms("B", 1), kinetics.Terms("A", 2)).
		Build()
}

// lotkaVolterraModel: prey reproduce, predators eat prey and die.
func lotkaVolterraModel() (*kinetics.Model, error) {
	return kinetics.NewModelBuilder("lotka-volterra").
		Species("prey", 1000).
		Species("predator", 1000).
		Reaction("prey_birth", 10, kinetics.Terms("prey", 1), kinetics.Terms("prey", 2)).
		Reaction("predation", 0.01, kinetics.Terms("prey", 1, "predator", 1), kinetics.Terms("predator", 2)).
		Reaction("predator_death", 10, kinetics.Terms("predator", 1), nil).
		Build()
}

func demoModels(seed uint64) ([]demoModel, error) {
	builders := []struct {
		build func() (*kinetics.Model, error)
		cfg   kinetics.RunConfig
	}{
		{decayModel, kinetics.RunConfig{StopTime: 10, SampleInterval: 1}},
		{dimerisationModel, kinetics.RunConfig{StopTime: 20, SampleInterval: 2}},
		{lotkaVolterraModel, kinetics.RunConfig{StopTime: 2, SampleInterval: 0.2, MaxSteps: 2_000_000}},
	}
	out := make([]demoModel, 0, len(builders))
	for _, b := range builders {
		m, err := b.build()
		if err != nil {
			return nil, err
		}
		out = append(out, demoModel{model: m, cfg: b.cfg.WithSeed(seed)})
	}
	return out, nil
}
