package kinetics

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// EnsembleOptions controls RunEnsemble.
type EnsembleOptions struct {
	Replicates int
	// Workers bounds how many replicates run at once. Zero means GOMAXPROCS.
	Workers int
	Logger  Logger
}

// EnsembleResult summarises independent replicates on a common time grid.
// Mean and StdDev are indexed [species][time].
type EnsembleResult struct {
	Species    []string       `json:"species"`
	Times      []float64      `json:"times"`
	Mean       [][]float64    `json:"mean"`
	StdDev     [][]float64    `json:"std_dev"`
	Statuses   map[Status]int `json:"statuses"`
	BaseSeed   uint64         `json:"base_seed"`
	Seeds      []uint64       `json:"seeds"`
	Replicates int            `json:"replicates"`
}

// RunEnsemble runs opts.Replicates independent simulations of model and
// aggregates them. Replicate i uses DeriveSeed(base, i), so a fixed base seed
// reproduces the whole ensemble regardless of scheduling. Runs must use
// interval sampling; replicates that end early hold their last state for the
// rest of the grid. The first failing replicate aborts the ensemble.
func RunEnsemble(ctx context.Context, model *Model, cfg RunConfig, opts EnsembleOptions) (*EnsembleResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RecordEveryStep {
		return nil, configError("ensembles require interval sampling")
	}
	if opts.Replicates < 1 {
		return nil, configError("replicates must be at least 1, got %d", opts.Replicates)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}

	base := RandomSeed()
	if cfg.Seed != nil {
		base = *cfg.Seed
	}
	times := GridTimes(cfg)
	seeds := make([]uint64, opts.Replicates)
	values := make([][][]int64, opts.Replicates)
	statuses := make([]Status, opts.Replicates)

	driver := NewDriver(model)
	driver.SetLogger(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < opts.Replicates; i++ {
		seeds[i] = DeriveSeed(base, i)
		g.Go(func() error {
			res, err := driver.Run(gctx, cfg.WithSeed(seeds[i]))
			if err != nil {
				return fmt.Errorf("replicate %d (seed %d): %w", i, seeds[i], err)
			}
			if res.Status == StatusCancelled {
				if err := gctx.Err(); err != nil {
					return err
				}
				return fmt.Errorf("replicate %d (seed %d): cancelled", i, seeds[i])
			}
			statuses[i] = res.Status
			values[i] = resample(res.Trajectory, times)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &EnsembleResult{
		Species:    model.SpeciesNames(),
		Times:      times,
		Mean:       make([][]float64, model.NumSpecies()),
		StdDev:     make([][]float64, model.NumSpecies()),
		Statuses:   make(map[Status]int),
		BaseSeed:   base,
		Seeds:      seeds,
		Replicates: opts.Replicates,
	}
	for _, st := range statuses {
		out.Statuses[st]++
	}
	x := make([]float64, opts.Replicates)
	for s := range out.Species {
		out.Mean[s] = make([]float64, len(times))
		out.StdDev[s] = make([]float64, len(times))
		for t := range times {
			for i := range values {
				x[i] = float64(values[i][t][s])
			}
			mean, std := stat.MeanStdDev(x, nil)
			if opts.Replicates == 1 {
				std = 0
			}
			out.Mean[s][t] = mean
			out.StdDev[s][t] = std
		}
	}
	logger.Infof("ensemble finished: model=%s replicates=%d base_seed=%d points=%d",
		model.Name(), opts.Replicates, base, len(times))
	return out, nil
}

// resample returns the counts in effect at each grid time: those of the last
// sample at or before it.
func resample(traj *Trajectory, times []float64) [][]int64 {
	out := make([][]int64, len(times))
	for t, at := range times {
		idx := sort.Search(len(traj.Samples), func(j int) bool {
			return traj.Samples[j].Time > at
		}) - 1
		if idx < 0 {
			idx = 0
		}
		out[t] = traj.Samples[idx].Counts
	}
	return out
}
