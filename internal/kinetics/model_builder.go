package kinetics

import "fmt"

// DefaultCompartment is created when a model declares no compartment.
const DefaultCompartment = "default"

// BuildModelFromConfig resolves all names in cfg to typed handles and returns
// the frozen Model. Callers that accept untrusted input should run
// ValidateModelConfig first to get every issue at once; this function stops
// at the first one.
func BuildModelFromConfig(cfg ModelConfig) (*Model, error) {
	compartmentCfgs := cfg.Compartments
	if len(compartmentCfgs) == 0 {
		compartmentCfgs = []CompartmentConfig{{Name: DefaultCompartment, Volume: 1}}
	}

	compartments := make([]Compartment, 0, len(compartmentCfgs))
	compartmentIDs := make(map[string]CompartmentID, len(compartmentCfgs))
	for i, c := range compartmentCfgs {
		compartments = append(compartments, Compartment{Name: c.Name, Volume: c.Volume})
		compartmentIDs[c.Name] = CompartmentID(i)
	}

	resolveCompartment := func(name string) (CompartmentID, error) {
		if name == "" {
			return 0, nil
		}
		id, ok := compartmentIDs[name]
		if !ok {
			return 0, fmt.Errorf("unknown compartment: %s", name)
		}
		return id, nil
	}

	species := make([]Species, 0, len(cfg.Species))
	speciesIDs := make(map[string]SpeciesID, len(cfg.Species))
	for i, sc := range cfg.Species {
		cid, err := resolveCompartment(sc.Compartment)
		if err != nil {
			return nil, fmt.Errorf("species %s: %w", sc.Name, err)
		}
		species = append(species, Species{
			Name:         sc.Name,
			Description:  sc.Description,
			Compartment:  cid,
			InitialCount: sc.InitialCount,
			Meta:         sc.Meta,
		})
		speciesIDs[sc.Name] = SpeciesID(i)
	}

	resolveTerms := func(terms []TermConfig) ([]Term, error) {
		out := make([]Term, 0, len(terms))
		for _, t := range terms {
			sid, ok := speciesIDs[t.Species]
			if !ok {
				return nil, fmt.Errorf("unknown species: %s", t.Species)
			}
			n := t.Multiplicity
			if n == 0 {
				n = 1
			}
			out = append(out, Term{Species: sid, Multiplicity: n})
		}
		return out, nil
	}

	reactions := make([]Reaction, 0, len(cfg.Reactions))
	for _, rc := range cfg.Reactions {
		substrates, err := resolveTerms(rc.Substrates)
		if err != nil {
			return nil, fmt.Errorf("reaction %s: %w", rc.ID, err)
		}
		products, err := resolveTerms(rc.Products)
		if err != nil {
			return nil, fmt.Errorf("reaction %s: %w", rc.ID, err)
		}

		var cid CompartmentID
		switch {
		case rc.Compartment != "":
			if cid, err = resolveCompartment(rc.Compartment); err != nil {
				return nil, fmt.Errorf("reaction %s: %w", rc.ID, err)
			}
		case len(substrates) > 0:
			cid = species[substrates[0].Species].Compartment
		case len(products) > 0:
			cid = species[products[0].Species].Compartment
		}

		name := rc.Name
		if name == "" {
			name = rc.ID
		}
		reactions = append(reactions, Reaction{
			ID:          rc.ID,
			Name:        name,
			Compartment: cid,
			Rate:        rc.Rate,
			Substrates:  substrates,
			Products:    products,
		})
	}

	return newModel(cfg.Name, compartments, species, reactions)
}

// ModelBuilder assembles a ModelConfig in code. It is mostly used by tests,
// the demo binary and callers that generate networks programmatically.
type ModelBuilder struct {
	cfg ModelConfig
}

func NewModelBuilder(name string) *ModelBuilder {
	return &ModelBuilder{cfg: ModelConfig{Name: name}}
}

// Compartment declares a compartment with the given volume.
func (b *ModelBuilder) Compartment(name string, volume float64) *ModelBuilder {
	b.cfg.Compartments = append(b.cfg.Compartments, CompartmentConfig{Name: name, Volume: volume})
	return b
}

// Species declares a species in the first compartment.
func (b *ModelBuilder) Species(name string, initialCount int64) *ModelBuilder {
	b.cfg.Species = append(b.cfg.Species, SpeciesConfig{Name: name, InitialCount: initialCount})
	return b
}

// SpeciesIn declares a species in a named compartment.
func (b *ModelBuilder) SpeciesIn(name, compartment string, initialCount int64) *ModelBuilder {
	b.cfg.Species = append(b.cfg.Species, SpeciesConfig{Name: name, Compartment: compartment, InitialCount: initialCount})
	return b
}

// Reaction declares a mass-action reaction; build each side with Terms.
func (b *ModelBuilder) Reaction(id string, rate float64, substrates, products []TermConfig) *ModelBuilder {
	b.cfg.Reactions = append(b.cfg.Reactions, ReactionConfig{
		ID:         id,
		Rate:       rate,
		Substrates: substrates,
		Products:   products,
	})
	return b
}

// Terms is shorthand for a reaction side: Terms("A", 2, "B", 1).
func Terms(pairs ...any) []TermConfig {
	out := make([]TermConfig, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		n, _ := pairs[i+1].(int)
		out = append(out, TermConfig{Species: name, Multiplicity: n})
	}
	return out
}

// Config returns the accumulated configuration.
func (b *ModelBuilder) Config() ModelConfig {
	return b.cfg
}

// Build validates and builds the model.
func (b *ModelBuilder) Build() (*Model, error) {
	if err := ValidateModelConfig(b.cfg); err != nil {
		return nil, err
	}
	return BuildModelFromConfig(b.cfg)
}

// Config converts a built model back into its configuration form. Defaults
// applied at build time (compartment, reaction names, multiplicities) are
// made explicit.
func (m *Model) Config() ModelConfig {
	cfg := ModelConfig{
		Name:         m.name,
		Compartments: make([]CompartmentConfig, 0, len(m.compartments)),
		Species:      make([]SpeciesConfig, 0, len(m.species)),
		Reactions:    make([]ReactionConfig, 0, len(m.reactions)),
	}
	for _, c := range m.compartments {
		cfg.Compartments = append(cfg.Compartments, CompartmentConfig{Name: c.Name, Volume: c.Volume})
	}
	for _, s := range m.species {
		cfg.Species = append(cfg.Species, SpeciesConfig{
			Name:         s.Name,
			Description:  s.Description,
			Compartment:  m.compartments[s.Compartment].Name,
			InitialCount: s.InitialCount,
			Meta:         s.Meta,
		})
	}
	terms := func(ts []Term) []TermConfig {
		out := make([]TermConfig, 0, len(ts))
		for _, t := range ts {
			out = append(out, TermConfig{Species: m.species[t.Species].Name, Multiplicity: t.Multiplicity})
		}
		return out
	}
	for _, r := range m.reactions {
		cfg.Reactions = append(cfg.Reactions, ReactionConfig{
			ID:          r.ID,
			Name:        r.Name,
			Compartment: m.compartments[r.Compartment].Name,
			Rate:        r.Rate,
			Substrates:  terms(r.Substrates),
			Products:    terms(r.Products),
		})
	}
	return cfg
}
