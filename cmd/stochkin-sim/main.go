package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/daniacca/stochkin/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	modelFile  string
	runConfig  string
	stopTime   float64
	maxSteps   int64
	seed       uint64
	method     string
	tau        float64
	everyStep  bool
	interval   float64
	replicates int
	workers    int
	format     string
	logLevel   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := pflag.NewFlagSet("stochkin-sim", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.modelFile, "model-file", "", "path to a JSON or YAML model file (required)")
	fs.StringVar(&opts.runConfig, "run-config", "", "optional JSON or YAML run configuration; flags override its fields")
	fs.Float64Var(&opts.stopTime, "stop-time", 10, "simulated time at which the run stops; 0 means no time limit")
	fs.Int64Var(&opts.maxSteps, "max-steps", 0, "maximum number of steps; 0 means unlimited")
	fs.Uint64Var(&opts.seed, "seed", 0, "random seed; a random seed is used and reported when unset")
	fs.StringVar(&opts.method, "method", "direct", "simulation method: direct or tau-leap")
	fs.Float64Var(&opts.tau, "tau", 0, "tau-leap step size")
	fs.BoolVar(&opts.everyStep, "every-step", false, "record a sample after every step")
	fs.Float64Var(&opts.interval, "interval", 0, "sampling interval; 0 means stop-time/100")
	fs.IntVar(&opts.replicates, "replicates", 1, "number of replicates; more than one runs an ensemble")
	fs.IntVar(&opts.workers, "workers", 0, "ensemble concurrency; 0 means GOMAXPROCS")
	fs.StringVar(&opts.format, "format", "summary", "output format: summary, csv or json")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.modelFile == "" {
		fmt.Fprintf(stderr, "error: --model-file is required\n")
		fs.Usage()
		return 2
	}
	switch opts.format {
	case "summary", "csv", "json":
	default:
		fmt.Fprintf(stderr, "error: unknown --format %q\n", opts.format)
		return 2
	}

	logger, err := logging.NewWithWriter(logging.Config{Level: opts.logLevel}, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	_, model, err := kinetics.LoadModelConfigFile(opts.modelFile)
	if err != nil {
		fmt.Fprintf(stderr, "error loading model: %v\n", err)
		return 1
	}

	cfg, err := buildRunConfig(fs, opts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	if opts.replicates > 1 {
		res, err := kinetics.RunEnsemble(ctx, model, cfg, kinetics.EnsembleOptions{
			Replicates: opts.replicates,
			Workers:    opts.workers,
			Logger:     logger,
		})
		if err != nil {
			fmt.Fprintf(stderr, "ensemble failed: %v\n", err)
			return 1
		}
		if err := writeEnsemble(stdout, opts.format, model.Name(), res); err != nil {
			fmt.Fprintf(stderr, "error writing output: %v\n", err)
			return 1
		}
		return 0
	}

	driver := kinetics.NewDriver(model)
	driver.SetLogger(logger)
	res, runErr := driver.Run(ctx, cfg)
	if res == nil {
		fmt.Fprintf(stderr, "error: %v\n", runErr)
		return 2
	}
	if err := writeResult(stdout, opts.format, model.Name(), res); err != nil {
		fmt.Fprintf(stderr, "error writing output: %v\n", err)
		return 1
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "run failed: %v\n", runErr)
		return 1
	}
	return 0
}

// buildRunConfig starts from the optional run config file and applies every
// flag the user set explicitly. Validation happens once, after the overrides.
func buildRunConfig(fs *pflag.FlagSet, opts options) (kinetics.RunConfig, error) {
	var cfg kinetics.RunConfig
	if opts.runConfig != "" {
		loaded, err := kinetics.ReadRunConfigFile(opts.runConfig)
		if err != nil {
			return kinetics.RunConfig{}, err
		}
		cfg = loaded
	} else {
		cfg.StopTime = opts.stopTime
		cfg.Method = opts.method
	}

	if fs.Changed("stop-time") {
		cfg.StopTime = opts.stopTime
	}
	if fs.Changed("max-steps") {
		cfg.MaxSteps = opts.maxSteps
	}
	if fs.Changed("seed") {
		cfg = cfg.WithSeed(opts.seed)
	}
	if fs.Changed("method") {
		cfg.Method = opts.method
	}
	if fs.Changed("tau") {
		cfg.Tau = opts.tau
	}
	if fs.Changed("every-step") {
		cfg.RecordEveryStep = opts.everyStep
	}
	if fs.Changed("interval") {
		cfg.SampleInterval = opts.interval
	}
	return cfg, cfg.Validate()
}

func writeResult(w io.Writer, format, modelName string, res *kinetics.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*kinetics.Result
			Trajectory *kinetics.Trajectory `json:"trajectory"`
		}{res, res.Trajectory})
	case "csv":
		return writeTrajectoryCSV(w, res.Trajectory)
	default:
		fmt.Fprintf(w, "Simulation finished (model=%s, method=%s, seed=%d)\n", modelName, res.Method, res.Seed)
		fmt.Fprintf(w, "Status: %s", res.Status)
		if res.Reason != "" {
			fmt.Fprintf(w, " (%s)", res.Reason)
		}
		fmt.Fprintf(w, "\nSteps: %d\nFinal time: %g\nSamples: %d\n", res.Steps, res.FinalTime, res.Trajectory.Len())
		fmt.Fprintln(w, "Final counts:")
		for i, name := range res.Trajectory.Species {
			fmt.Fprintf(w, "  %s: %d\n", name, res.FinalState.Counts[i])
		}
		return nil
	}
}

func writeTrajectoryCSV(w io.Writer, traj *kinetics.Trajectory) error {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, traj.Species...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, s := range traj.Samples {
		row[0] = strconv.FormatFloat(s.Time, 'g', -1, 64)
		for i, c := range s.Counts {
			row[i+1] = strconv.FormatInt(c, 10)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeEnsemble(w io.Writer, format, modelName string, res *kinetics.EnsembleResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "csv":
		cw := csv.NewWriter(w)
		header := []string{"time"}
		for _, name := range res.Species {
			header = append(header, name+"_mean", name+"_std")
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		for t, at := range res.Times {
			row := []string{strconv.FormatFloat(at, 'g', -1, 64)}
			for s := range res.Species {
				row = append(row,
					strconv.FormatFloat(res.Mean[s][t], 'g', 6, 64),
					strconv.FormatFloat(res.StdDev[s][t], 'g', 6, 64))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		fmt.Fprintf(w, "Ensemble finished (model=%s, replicates=%d, base_seed=%d)\n", modelName, res.Replicates, res.BaseSeed)
		statuses := slices.Sorted(maps.Keys(res.Statuses))
		for _, st := range statuses {
			fmt.Fprintf(w, "  %s: %d\n", st, res.Statuses[st])
		}
		last := len(res.Times) - 1
		fmt.Fprintf(w, "At t=%g:\n", res.Times[last])
		for s, name := range res.Species {
			fmt.Fprintf(w, "  %s: mean=%.3f std=%.3f\n", name, res.Mean[s][last], res.StdDev[s][last])
		}
		return nil
	}
}
