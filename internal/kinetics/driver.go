package kinetics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Status is the lifecycle state of a run.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	// StatusCompleted: the stop time or the step limit was reached.
	StatusCompleted
	// StatusTerminated: total propensity reached zero, nothing can react.
	StatusTerminated
	StatusCancelled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusIdle:       "idle",
	StatusRunning:    "running",
	StatusCompleted:  "completed",
	StatusTerminated: "terminated",
	StatusCancelled:  "cancelled",
	StatusFailed:     "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s >= StatusCompleted
}

func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("unknown run status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run status %q", string(text))
}

// Progress is reported to the progress hook.
type Progress struct {
	Steps int64
	Time  float64
	// Fraction is Time/StopTime, or Steps/MaxSteps for step-bounded runs.
	Fraction float64
}

// ProgressFunc is polled every RunConfig.ProgressEvery steps. Returning false
// asks the driver to cancel the run.
type ProgressFunc func(Progress) bool

// Result is the outcome of a run.
type Result struct {
	Status     Status      `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	Seed       uint64      `json:"seed"`
	Steps      int64       `json:"steps"`
	FinalTime  float64     `json:"final_time"`
	FinalState State       `json:"final_state"`
	Method     MethodKind  `json:"method"`
	Trajectory *Trajectory `json:"-"`
}

type runOptions struct {
	progress ProgressFunc
}

// RunOption customises a single Driver.Run call.
type RunOption func(*runOptions)

// WithProgress installs a progress and cancellation hook.
func WithProgress(fn ProgressFunc) RunOption {
	return func(o *runOptions) { o.progress = fn }
}

// Driver runs simulations of one model. The model is never mutated, so one
// driver may serve concurrent runs; every run owns its state and generator.
type Driver struct {
	model  *Model
	logger Logger
}

func NewDriver(model *Model) *Driver {
	return &Driver{model: model, logger: NewNoOpLogger()}
}

// SetLogger sets the logger used by the driver.
func (d *Driver) SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	d.logger = logger
}

func (d *Driver) Model() *Model { return d.model }

// Run validates cfg and simulates until a terminal status is reached.
//
// Expected terminal states (completed, terminated, cancelled) are reported
// through Result.Status with a nil error. A failed run returns both the
// result and the *InvariantError that caused it. Configuration errors are
// returned before anything runs, with a nil result.
func (d *Driver) Run(ctx context.Context, cfg RunConfig, opts ...RunOption) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	kind, _ := ParseMethodKind(cfg.Method)
	method, err := NewMethod(kind, MethodOptions{Tau: cfg.Tau})
	if err != nil {
		return nil, err
	}
	seed := RandomSeed()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	rng := NewRNG(seed)
	if err := method.Initialize(d.model, rng); err != nil {
		return nil, fmt.Errorf("initializing %s method: %w", kind, err)
	}
	defer method.Finalize()

	r := &run{
		cfg:      cfg,
		model:    d.model,
		method:   method,
		updater:  NewStateUpdater(d.model),
		state:    d.model.InitialState(),
		horizon:  cfg.Horizon(),
		progress: o.progress,
		every:    cfg.progressEvery(),
	}
	r.traj = NewTrajectory(d.model.SpeciesNames())
	r.traj.Append(r.state)
	if interval := cfg.Interval(); interval > 0 {
		r.grid = &sampleGrid{interval: interval, stop: r.horizon, next: 1}
	}

	d.logger.Debugf("run starting: model=%s method=%s seed=%d stop_time=%g max_steps=%d",
		d.model.Name(), kind, seed, cfg.StopTime, cfg.MaxSteps)

	status, reason, runErr := r.loop(ctx)

	res := &Result{
		Status:     status,
		Reason:     reason,
		Seed:       seed,
		Steps:      r.steps,
		FinalTime:  r.state.Time,
		FinalState: r.state.Clone(),
		Method:     kind,
		Trajectory: r.traj,
	}
	if runErr != nil {
		d.logger.Errorf("run failed: model=%s seed=%d steps=%d: %v", d.model.Name(), seed, r.steps, runErr)
		return res, runErr
	}
	d.logger.Debugf("run finished: model=%s status=%s reason=%q steps=%d t=%g",
		d.model.Name(), status, reason, r.steps, r.state.Time)
	return res, nil
}

// run holds the per-call mutable state of Driver.Run.
type run struct {
	cfg      RunConfig
	model    *Model
	method   Method
	updater  *StateUpdater
	state    State
	traj     *Trajectory
	grid     *sampleGrid
	horizon  float64
	steps    int64
	progress ProgressFunc
	every    int64
	cancel   bool
}

func (r *run) loop(ctx context.Context) (Status, string, error) {
	for {
		if err := ctx.Err(); err != nil {
			r.finishEarly()
			return StatusCancelled, err.Error(), nil
		}
		if r.cancel {
			r.finishEarly()
			return StatusCancelled, "cancelled by progress hook", nil
		}
		if r.cfg.MaxSteps > 0 && r.steps >= r.cfg.MaxSteps {
			r.finishEarly()
			return StatusCompleted, "max steps reached", nil
		}

		ev, err := r.method.Step(&r.state, r.horizon)
		if err != nil {
			return StatusFailed, err.Error(), r.stamp(err)
		}

		switch ev.Kind {
		case EventExhausted:
			r.finishEarly()
			return StatusTerminated, "total propensity is zero", nil
		case EventHorizon:
			r.finishAtHorizon()
			return StatusCompleted, "stop time reached", nil
		}

		if r.grid != nil {
			r.grid.recordBefore(r.traj, r.state, ev.Time)
		}
		if err := r.updater.Apply(&r.state, ev); err != nil {
			return StatusFailed, err.Error(), r.stamp(err)
		}
		r.steps++
		if r.cfg.RecordEveryStep {
			r.traj.Append(r.state)
		}
		if r.state.Time >= r.horizon {
			r.finishAtHorizon()
			return StatusCompleted, "stop time reached", nil
		}
		if r.progress != nil && r.steps%r.every == 0 {
			if !r.progress(r.report()) {
				r.cancel = true
			}
		}
	}
}

// finishAtHorizon records the state at the stop time. No reaction is applied.
func (r *run) finishAtHorizon() {
	if r.grid != nil {
		r.grid.recordThrough(r.traj, r.state, r.horizon)
	}
	if last, ok := r.traj.Last(); !ok || last.Time < r.horizon {
		r.traj.AppendAt(r.horizon, r.state)
	}
	r.state.Time = r.horizon
}

// finishEarly records the state reached before the stop time. Grid points up
// to the current time get it, then the state itself is appended at its own
// time so the trajectory always ends on the final state.
func (r *run) finishEarly() {
	if r.grid != nil {
		r.grid.recordThrough(r.traj, r.state, r.state.Time)
	}
	if last, ok := r.traj.Last(); !ok || last.Time < r.state.Time {
		r.traj.Append(r.state)
	}
}

func (r *run) report() Progress {
	p := Progress{Steps: r.steps, Time: r.state.Time}
	switch {
	case r.cfg.hasHorizon():
		p.Fraction = r.state.Time / r.horizon
	case r.cfg.MaxSteps > 0:
		p.Fraction = float64(r.steps) / float64(r.cfg.MaxSteps)
	}
	if p.Fraction > 1 {
		p.Fraction = 1
	}
	return p
}

func (r *run) stamp(err error) error {
	var inv *InvariantError
	if errors.As(err, &inv) {
		inv.Step = r.steps + 1
	}
	return err
}

// sampleGrid emits samples at k*interval for k = 1, 2, ... up to stop.
type sampleGrid struct {
	interval float64
	stop     float64
	next     int
}

// at returns the k-th grid time, snapped onto stop when rounding leaves the
// last point a hair away from it.
func (g *sampleGrid) at(k int) float64 {
	t := float64(k) * g.interval
	if math.Abs(t-g.stop) <= 1e-9*g.stop {
		return g.stop
	}
	return t
}

// recordBefore appends s for every pending grid time strictly before t. The
// state is constant between events, so s is the state at those times.
func (g *sampleGrid) recordBefore(traj *Trajectory, s State, t float64) {
	for {
		gt := g.at(g.next)
		if gt >= t || gt > g.stop {
			return
		}
		traj.AppendAt(gt, s)
		g.next++
	}
}

// recordThrough appends s for every pending grid time at or before t.
func (g *sampleGrid) recordThrough(traj *Trajectory, s State, t float64) {
	for {
		gt := g.at(g.next)
		if gt > t || gt > g.stop {
			return
		}
		traj.AppendAt(gt, s)
		g.next++
	}
}

// GridTimes returns the sampling grid of an interval-sampled run: 0, every
// multiple of the interval up to the stop time, and the stop time itself.
func GridTimes(cfg RunConfig) []float64 {
	interval := cfg.Interval()
	if interval <= 0 || !cfg.hasHorizon() {
		return nil
	}
	g := &sampleGrid{interval: interval, stop: cfg.StopTime}
	times := []float64{0}
	for k := 1; ; k++ {
		t := g.at(k)
		if t > g.stop {
			break
		}
		times = append(times, t)
	}
	if times[len(times)-1] < cfg.StopTime {
		times = append(times, cfg.StopTime)
	}
	return times
}
