package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/daniacca/stochkin/internal/observability"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Addr              string
	ModelFile         string
	ModelID           string
	Store             string
	SQLitePath        string
	LogLevel          string
	LogFormat         string
	MaxConcurrentRuns int
	NotifyWorkers     int
	Tracing           observability.TracingConfig
}

// configResolver defines how to resolve a single configuration value
type configResolver struct {
	flagName    string
	envVarName  string
	defaultVal  string
	description string
	setter      func(*ServerConfig, string) error
}

func serverResolvers() []configResolver {
	return []configResolver{
		{
			flagName:    "addr",
			envVarName:  "STOCHKIN_ADDR",
			defaultVal:  ":8080",
			description: "HTTP listen address (e.g. :8080, 0.0.0.0:8080)",
			setter:      func(c *ServerConfig, v string) error { c.Addr = v; return nil },
		},
		{
			flagName:    "model-file",
			envVarName:  "STOCHKIN_MODEL_FILE",
			defaultVal:  "",
			description: "optional JSON or YAML model file to register at startup",
			setter:      func(c *ServerConfig, v string) error { c.ModelFile = v; return nil },
		},
		{
			flagName:    "model-id",
			envVarName:  "STOCHKIN_MODEL_ID",
			defaultVal:  "default",
			description: "ID under which the startup model is registered",
			setter:      func(c *ServerConfig, v string) error { c.ModelID = v; return nil },
		},
		{
			flagName:    "store",
			envVarName:  "STOCHKIN_STORE",
			defaultVal:  "memory",
			description: "run store backend: memory or sqlite",
			setter:      func(c *ServerConfig, v string) error { c.Store = v; return nil },
		},
		{
			flagName:    "sqlite-path",
			envVarName:  "STOCHKIN_SQLITE_PATH",
			defaultVal:  "./data/stochkin.db",
			description: "SQLite database path when --store=sqlite",
			setter:      func(c *ServerConfig, v string) error { c.SQLitePath = v; return nil },
		},
		{
			flagName:    "log-level",
			envVarName:  "STOCHKIN_LOG_LEVEL",
			defaultVal:  "info",
			description: "Log level: debug, info, warn, error",
			setter:      func(c *ServerConfig, v string) error { c.LogLevel = v; return nil },
		},
		{
			flagName:    "log-format",
			envVarName:  "STOCHKIN_LOG_FORMAT",
			defaultVal:  "console",
			description: "Log format: console or json",
			setter:      func(c *ServerConfig, v string) error { c.LogFormat = v; return nil },
		},
		{
			flagName:    "max-concurrent-runs",
			envVarName:  "STOCHKIN_MAX_CONCURRENT_RUNS",
			defaultVal:  "4",
			description: "How many runs may simulate at once; further runs queue",
			setter: func(c *ServerConfig, v string) error {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					return fmt.Errorf("max-concurrent-runs must be a positive integer, got %q", v)
				}
				c.MaxConcurrentRuns = n
				return nil
			},
		},
		{
			flagName:    "notify-workers",
			envVarName:  "STOCHKIN_NOTIFY_WORKERS",
			defaultVal:  "2",
			description: "Number of notification delivery workers",
			setter: func(c *ServerConfig, v string) error {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					return fmt.Errorf("notify-workers must be a positive integer, got %q", v)
				}
				c.NotifyWorkers = n
				return nil
			},
		},
		{
			flagName:    "tracing-enabled",
			envVarName:  "STOCHKIN_TRACING_ENABLED",
			defaultVal:  "false",
			description: "Enable OpenTelemetry tracing",
			setter: func(c *ServerConfig, v string) error {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return fmt.Errorf("tracing-enabled must be a boolean, got %q", v)
				}
				c.Tracing.Enabled = b
				return nil
			},
		},
		{
			flagName:    "tracing-exporter",
			envVarName:  "STOCHKIN_TRACING_EXPORTER",
			defaultVal:  "stdout",
			description: "Trace exporter: stdout or otlp",
			setter:      func(c *ServerConfig, v string) error { c.Tracing.Exporter = strings.ToLower(v); return nil },
		},
		{
			flagName:    "otlp-endpoint",
			envVarName:  "STOCHKIN_OTLP_ENDPOINT",
			defaultVal:  "localhost:4317",
			description: "OTLP gRPC endpoint when --tracing-exporter=otlp",
			setter:      func(c *ServerConfig, v string) error { c.Tracing.Endpoint = v; return nil },
		},
		{
			flagName:    "tracing-sample-ratio",
			envVarName:  "STOCHKIN_TRACING_SAMPLE_RATIO",
			defaultVal:  "1",
			description: "Fraction of runs to trace, between 0 and 1",
			setter: func(c *ServerConfig, v string) error {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return fmt.Errorf("tracing-sample-ratio must be a number, got %q", v)
				}
				c.Tracing.SampleRatio = f
				return nil
			},
		},
	}
}

// loadServerConfig resolves every option from, in order, its command line
// flag, its environment variable and its default.
func loadServerConfig(args []string, getenv func(string) string) (ServerConfig, error) {
	cfg := ServerConfig{Tracing: observability.TracingConfig{ServiceName: "stochkin-server"}}
	resolvers := serverResolvers()

	fs := pflag.NewFlagSet("stochkin-server", pflag.ContinueOnError)
	flagVars := make(map[string]*string, len(resolvers))
	for _, resolver := range resolvers {
		flagVars[resolver.flagName] = fs.String(resolver.flagName, "", resolver.description)
	}
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	for _, resolver := range resolvers {
		var value string
		if fs.Changed(resolver.flagName) {
			value = *flagVars[resolver.flagName]
		} else if envValue := getenv(resolver.envVarName); envValue != "" {
			value = envValue
		} else {
			value = resolver.defaultVal
		}
		if err := resolver.setter(&cfg, value); err != nil {
			return ServerConfig{}, err
		}
	}
	return cfg, nil
}

// applyModelFile loads a model file and registers it with the manager.
func applyModelFile(manager *kinetics.Manager, path, id string) (*kinetics.Model, error) {
	_, model, err := kinetics.LoadModelConfigFile(path)
	if err != nil {
		return nil, err
	}
	if err := manager.PutModel(id, model); err != nil {
		return nil, err
	}
	return model, nil
}
