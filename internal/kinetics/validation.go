package kinetics

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError collects multiple validation issues
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid model: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return "model validation errors: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateModelConfig performs comprehensive validation of a ModelConfig
func ValidateModelConfig(cfg ModelConfig) error {
	err := &ValidationError{}

	if cfg.Name == "" {
		err.Add("model name is required")
	}

	compartments := make(map[string]bool)
	for i, c := range cfg.Compartments {
		if c.Name == "" {
			err.Add(fmt.Sprintf("compartment at index %d: name is required", i))
			continue
		}
		if compartments[c.Name] {
			err.Add("duplicate compartment name: " + c.Name)
		}
		compartments[c.Name] = true
		if !(c.Volume > 0) || !isFinite(c.Volume) {
			err.Add(fmt.Sprintf("compartment '%s': volume must be a positive finite number, got %v", c.Name, c.Volume))
		}
	}

	species := make(map[string]bool)
	for i, sp := range cfg.Species {
		if sp.Name == "" {
			err.Add(fmt.Sprintf("species at index %d: name is required", i))
			continue
		}
		if species[sp.Name] {
			err.Add("duplicate species name: " + sp.Name)
		}
		species[sp.Name] = true
		if sp.Compartment != "" && !compartments[sp.Compartment] {
			err.Add(fmt.Sprintf("species '%s': compartment '%s' does not exist", sp.Name, sp.Compartment))
		}
		if sp.InitialCount < 0 {
			err.Add(fmt.Sprintf("species '%s': initial count must be >= 0, got %d", sp.Name, sp.InitialCount))
		}
	}

	reactionIDs := make(map[string]bool)
	for i, rc := range cfg.Reactions {
		prefix := fmt.Sprintf("reaction at index %d", i)
		if rc.ID != "" {
			prefix = "reaction '" + rc.ID + "'"
		}

		if rc.ID == "" {
			err.Add(prefix + ": reaction ID is required")
		} else if reactionIDs[rc.ID] {
			err.Add("duplicate reaction ID: " + rc.ID)
		} else {
			reactionIDs[rc.ID] = true
		}

		if rc.Rate < 0 || !isFinite(rc.Rate) {
			err.Add(fmt.Sprintf("%s: rate must be a non-negative finite number, got %v", prefix, rc.Rate))
		}
		if rc.Compartment != "" && !compartments[rc.Compartment] {
			err.Add(fmt.Sprintf("%s: compartment '%s' does not exist", prefix, rc.Compartment))
		}
		if len(rc.Substrates) == 0 && len(rc.Products) == 0 {
			err.Add(prefix + ": reaction needs at least one substrate or product")
		}

		validateTerms(rc.Substrates, prefix+" substrate", species, err)
		validateTerms(rc.Products, prefix+" product", species, err)
	}

	if err.HasIssues() {
		return err
	}
	return nil
}

func validateTerms(terms []TermConfig, prefix string, species map[string]bool, err *ValidationError) {
	for j, t := range terms {
		termPrefix := fmt.Sprintf("%s at index %d", prefix, j)
		if t.Species == "" {
			err.Add(termPrefix + ": species is required")
		} else if !species[t.Species] {
			err.Add(termPrefix + ": species '" + t.Species + "' does not exist")
		}
		if t.Multiplicity < 0 {
			err.Add(fmt.Sprintf("%s: multiplicity must be >= 0, got %d", termPrefix, t.Multiplicity))
		}
	}
}
