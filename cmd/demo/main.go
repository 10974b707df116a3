// Command demo runs a few classic reaction networks built in code and prints
// their trajectories.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/daniacca/stochkin/internal/logging"
)

func main() {
	seed := pflag.Uint64("seed", 2024, "random seed shared by every demo run")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	demos, err := demoModels(*seed)
	if err != nil {
		logger.Fatalf("building demo models: %v", err)
	}

	ctx := context.Background()
	for _, d := range demos {
		driver := kinetics.NewDriver(d.model)
		driver.SetLogger(logger)
		res, err := driver.Run(ctx, d.cfg)
		if err != nil {
			logger.Errorf("demo %s failed: %v", d.model.Name(), err)
			continue
		}
		logger.Infof("demo %s: status=%s reason=%q steps=%d t=%g",
			d.model.Name(), res.Status, res.Reason, res.Steps, res.FinalTime)
		printTrajectory(d.model.Name(), res.Trajectory)
	}
}

func printTrajectory(name string, traj *kinetics.Trajectory) {
	fmt.Printf("== %s ==\n", name)
	fmt.Printf("%10s", "time")
	for _, sp := range traj.Species {
		fmt.Printf(" %10s", sp)
	}
	fmt.Println()
	for _, s := range traj.Samples {
		fmt.Printf("%10.3f", s.Time)
		for _, c := range s.Counts {
			fmt.Printf(" %10d", c)
		}
		fmt.Println()
	}
	fmt.Println(strings.Repeat("-", 11*(len(traj.Species)+1)))
}
