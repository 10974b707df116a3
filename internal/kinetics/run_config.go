package kinetics

import (
	"fmt"
	"math"
	"os"
)

// DefaultProgressEvery is the progress hook period when none is configured.
const DefaultProgressEvery = 1000

// defaultIntervalSamples is the number of grid points used when interval
// sampling is selected without an explicit interval.
const defaultIntervalSamples = 100

// RunConfig describes one simulation run.
//
// A run stops at StopTime, after MaxSteps accepted steps, or both, whichever
// comes first. StopTime 0 means no time horizon. Samples are recorded after
// every accepted step when RecordEveryStep is set, otherwise on a fixed grid
// of SampleInterval (default StopTime/100).
type RunConfig struct {
	StopTime        float64 `json:"stop_time" yaml:"stop_time"`
	MaxSteps        int64   `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	Seed            *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	RequireSeed     bool    `json:"require_seed,omitempty" yaml:"require_seed,omitempty"`
	RecordEveryStep bool    `json:"record_every_step,omitempty" yaml:"record_every_step,omitempty"`
	SampleInterval  float64 `json:"sample_interval,omitempty" yaml:"sample_interval,omitempty"`
	Method          string  `json:"method,omitempty" yaml:"method,omitempty"`
	Tau             float64 `json:"tau,omitempty" yaml:"tau,omitempty"`
	ProgressEvery   int64   `json:"progress_every,omitempty" yaml:"progress_every,omitempty"`
}

// WithSeed returns a copy of the config with the seed set.
func (c RunConfig) WithSeed(seed uint64) RunConfig {
	c.Seed = &seed
	return c
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c RunConfig) Validate() error {
	if math.IsNaN(c.StopTime) || c.StopTime < 0 {
		return configError("stop_time must be a non-negative number, got %v", c.StopTime)
	}
	if c.MaxSteps < 0 {
		return configError("max_steps must be non-negative, got %d", c.MaxSteps)
	}
	if !c.hasHorizon() && c.MaxSteps == 0 {
		return configError("either stop_time or max_steps must be set")
	}
	if c.RequireSeed && c.Seed == nil {
		return configError("a seed is required for this run")
	}
	if math.IsNaN(c.SampleInterval) || c.SampleInterval < 0 {
		return configError("sample_interval must be non-negative, got %v", c.SampleInterval)
	}
	if !c.RecordEveryStep && !c.hasHorizon() {
		return configError("interval sampling requires a finite stop_time")
	}
	if math.IsNaN(c.Tau) || c.Tau < 0 {
		return configError("tau must be non-negative, got %v", c.Tau)
	}
	if c.ProgressEvery < 0 {
		return configError("progress_every must be non-negative, got %d", c.ProgressEvery)
	}
	kind, err := ParseMethodKind(c.Method)
	if err != nil {
		return configError("%v", err)
	}
	if kind == MethodTauLeap && c.Tau == 0 {
		return configError("tau-leap requires tau > 0")
	}
	return nil
}

func (c RunConfig) hasHorizon() bool {
	return c.StopTime > 0 && !math.IsInf(c.StopTime, 1)
}

// Horizon is the time bound of the run; +Inf when only MaxSteps bounds it.
func (c RunConfig) Horizon() float64 {
	if c.hasHorizon() {
		return c.StopTime
	}
	return math.Inf(1)
}

// Interval is the effective sampling interval, or 0 when every step is
// recorded.
func (c RunConfig) Interval() float64 {
	if c.RecordEveryStep {
		return 0
	}
	if c.SampleInterval > 0 {
		return c.SampleInterval
	}
	return c.StopTime / defaultIntervalSamples
}

func (c RunConfig) progressEvery() int64 {
	if c.ProgressEvery > 0 {
		return c.ProgressEvery
	}
	return DefaultProgressEvery
}

// ParseRunConfig parses a JSON or YAML run configuration without validating
// it, for callers that fill in fields before running.
func ParseRunConfig(data []byte, format string) (RunConfig, error) {
	var cfg RunConfig
	if err := decodeConfig(data, format, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// DecodeRunConfig parses a JSON or YAML run configuration and validates it.
func DecodeRunConfig(data []byte, format string) (RunConfig, error) {
	cfg, err := ParseRunConfig(data, format)
	if err != nil {
		return RunConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// DecodeRunRequest parses a JSON or YAML run request and validates its
// configuration.
func DecodeRunRequest(data []byte, format string) (RunRequest, error) {
	var req RunRequest
	if err := decodeConfig(data, format, &req); err != nil {
		return RunRequest{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := req.Config.Validate(); err != nil {
		return RunRequest{}, err
	}
	return req, nil
}

// ReadRunConfigFile reads a run configuration from a .json, .yaml or .yml
// file. It is not validated: fields missing from the file may be supplied
// afterwards, e.g. from command-line flags.
func ReadRunConfigFile(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("reading run config: %w", err)
	}
	return ParseRunConfig(data, FormatFromPath(path))
}
