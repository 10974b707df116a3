package kinetics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type CompartmentConfig struct {
	Name   string  `json:"name" yaml:"name"`
	Volume float64 `json:"volume" yaml:"volume"`
}

type SpeciesConfig struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Compartment  string         `json:"compartment,omitempty" yaml:"compartment,omitempty"`
	InitialCount int64          `json:"initial_count" yaml:"initial_count"`
	Meta         map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// TermConfig references a species by name. A zero multiplicity means 1.
type TermConfig struct {
	Species      string `json:"species" yaml:"species"`
	Multiplicity int    `json:"multiplicity,omitempty" yaml:"multiplicity,omitempty"`
}

type ReactionConfig struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Compartment string       `json:"compartment,omitempty" yaml:"compartment,omitempty"`
	Rate        float64      `json:"rate" yaml:"rate"`
	Substrates  []TermConfig `json:"substrates,omitempty" yaml:"substrates,omitempty"`
	Products    []TermConfig `json:"products,omitempty" yaml:"products,omitempty"`
}

// ModelConfig is the on-disk and on-the-wire description of a reaction
// network. It is turned into a Model by BuildModelFromConfig.
type ModelConfig struct {
	Name         string              `json:"name" yaml:"name"`
	Compartments []CompartmentConfig `json:"compartments,omitempty" yaml:"compartments,omitempty"`
	Species      []SpeciesConfig     `json:"species" yaml:"species"`
	Reactions    []ReactionConfig    `json:"reactions" yaml:"reactions"`
}

// Config encodings understood by DecodeModelConfig and DecodeRunConfig.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// FormatFromPath picks an encoding from a file extension, defaulting to JSON.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// FormatFromContentType picks an encoding from an HTTP Content-Type header,
// defaulting to JSON.
func FormatFromContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "yaml") || strings.Contains(ct, "yml") {
		return FormatYAML
	}
	return FormatJSON
}

// DecodeModelConfig decodes a model configuration in the given format.
// Unknown JSON fields are rejected so typos in model files surface early.
func DecodeModelConfig(data []byte, format string) (ModelConfig, error) {
	var cfg ModelConfig
	if err := decodeConfig(data, format, &cfg); err != nil {
		return ModelConfig{}, fmt.Errorf("failed to decode model config: %w", err)
	}
	return cfg, nil
}

// LoadModelConfigFile reads, validates and builds a model from a JSON or YAML
// file.
func LoadModelConfigFile(path string) (ModelConfig, *Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelConfig{}, nil, fmt.Errorf("reading model file: %w", err)
	}
	cfg, err := DecodeModelConfig(data, FormatFromPath(path))
	if err != nil {
		return ModelConfig{}, nil, err
	}
	if err := ValidateModelConfig(cfg); err != nil {
		return ModelConfig{}, nil, fmt.Errorf("validating model: %w", err)
	}
	model, err := BuildModelFromConfig(cfg)
	if err != nil {
		return ModelConfig{}, nil, fmt.Errorf("building model: %w", err)
	}
	return cfg, model, nil
}

func decodeConfig(data []byte, format string, out any) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(out)
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(out)
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}
}
