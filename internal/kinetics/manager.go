package kinetics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/daniacca/stochkin/internal/kinetics"

// RunID identifies an asynchronous run.
type RunID string

// MetricsRecorder receives run lifecycle measurements.
type MetricsRecorder interface {
	RunStarted(modelID string, method MethodKind)
	RunFinished(modelID string, status Status, steps int64, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RunStarted(string, MethodKind)                    {}
func (noopMetrics) RunFinished(string, Status, int64, time.Duration) {}

// RunRequest is what a caller submits to start a run.
type RunRequest struct {
	Config    RunConfig `json:"config" yaml:"config"`
	Notifiers []string  `json:"notifiers,omitempty" yaml:"notifiers,omitempty"`
}

// ModelInfo summarises a registered model.
type ModelInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Species      []string `json:"species"`
	NumReactions int      `json:"num_reactions"`
}

// ManagerOptions configures a Manager. Nil fields fall back to no-op
// implementations.
type ManagerOptions struct {
	// MaxConcurrentRuns bounds how many runs simulate at once; queued runs
	// wait in the idle state. Zero means 4.
	MaxConcurrentRuns int
	Logger            Logger
	Metrics           MetricsRecorder
	Notifications     *NotificationManager
	Store             TrajectoryStore
}

const defaultMaxConcurrentRuns = 4

type runEntry struct {
	mu        sync.Mutex
	record    RunRecord
	notifiers []string
	cancel    context.CancelFunc
	done      chan struct{}
}

func (e *runEntry) snapshot() RunRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Summary()
}

// Manager owns a registry of models and the asynchronous runs simulating
// them. Each model is isolated: runs never share state or generators.
type Manager struct {
	mu     sync.RWMutex
	models map[string]*Model
	runs   map[RunID]*runEntry
	closed bool

	sem       chan struct{}
	wg        sync.WaitGroup
	baseCtx   context.Context
	cancelAll context.CancelFunc

	logger        Logger
	metrics       MetricsRecorder
	notifications *NotificationManager
	store         TrajectoryStore
	tracer        trace.Tracer
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = defaultMaxConcurrentRuns
	}
	if opts.Logger == nil {
		opts.Logger = NewNoOpLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		models:        make(map[string]*Model),
		runs:          make(map[RunID]*runEntry),
		sem:           make(chan struct{}, opts.MaxConcurrentRuns),
		baseCtx:       ctx,
		cancelAll:     cancel,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		notifications: opts.Notifications,
		store:         opts.Store,
		tracer:        otel.Tracer(tracerName),
	}
}

// Notifications returns the notification manager, or nil.
func (m *Manager) Notifications() *NotificationManager { return m.notifications }

// PutModel registers or replaces a model.
func (m *Manager) PutModel(id string, model *Model) error {
	if id == "" {
		return fmt.Errorf("model id cannot be empty")
	}
	if model == nil {
		return fmt.Errorf("model cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	_, replaced := m.models[id]
	m.models[id] = model
	if replaced {
		m.logger.Infof("model replaced: id=%s species=%d reactions=%d", id, model.NumSpecies(), model.NumReactions())
	} else {
		m.logger.Infof("model registered: id=%s species=%d reactions=%d", id, model.NumSpecies(), model.NumReactions())
	}
	return nil
}

func (m *Manager) GetModel(id string) (*Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[id]
	return model, ok
}

// DeleteModel removes a model. Models with active runs cannot be deleted.
func (m *Manager) DeleteModel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[id]; !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	for runID, e := range m.runs {
		rec := e.snapshot()
		if rec.ModelID == id && !rec.Status.Terminal() {
			return fmt.Errorf("%w: model %s has run %s", ErrRunActive, id, runID)
		}
	}
	delete(m.models, id)
	m.logger.Infof("model deleted: id=%s", id)
	return nil
}

// ListModels returns the registered models sorted by ID.
func (m *Manager) ListModels() []ModelInfo {
	m.mu.RLock()
	out := make([]ModelInfo, 0, len(m.models))
	for id, model := range m.models {
		out = append(out, ModelInfo{
			ID:           id,
			Name:         model.Name(),
			Species:      model.SpeciesNames(),
			NumReactions: model.NumReactions(),
		})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Submit validates req and schedules a run of the model. It returns as soon
// as the run is queued. The run outlives ctx; only its trace parent is taken
// from it. Use Cancel to stop it.
func (m *Manager) Submit(ctx context.Context, modelID string, req RunRequest) (RunID, error) {
	if err := req.Config.Validate(); err != nil {
		return "", err
	}
	for _, id := range req.Notifiers {
		if m.notifications == nil {
			return "", fmt.Errorf("%w: notifications are not enabled", ErrInvalidConfig)
		}
		if _, ok := m.notifications.GetNotifier(id); !ok {
			return "", fmt.Errorf("%w: unknown notifier %s", ErrInvalidConfig, id)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrManagerClosed
	}
	model, ok := m.models[modelID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}

	id := RunID(uuid.New().String())
	runCtx, cancel := context.WithCancel(m.baseCtx)
	runCtx = trace.ContextWithSpanContext(runCtx, trace.SpanContextFromContext(ctx))
	e := &runEntry{
		record: RunRecord{
			RunID:       id,
			ModelID:     modelID,
			ModelName:   model.Name(),
			Config:      req.Config,
			Status:      StatusIdle,
			SubmittedAt: time.Now().UTC(),
		},
		notifiers: append([]string(nil), req.Notifiers...),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.runs[id] = e

	m.wg.Add(1)
	go m.execute(runCtx, e, model)

	m.logger.Infof("run submitted: run_id=%s model=%s", id, modelID)
	return id, nil
}

func (m *Manager) execute(ctx context.Context, e *runEntry, model *Model) {
	defer m.wg.Done()
	defer close(e.done)
	defer e.cancel()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.finish(e, &Result{Status: StatusCancelled, Reason: "cancelled before start"}, nil, time.Time{})
		return
	}

	e.mu.Lock()
	cfg := e.record.Config
	started := time.Now().UTC()
	e.record.Status = StatusRunning
	e.record.StartedAt = &started
	runID, modelID := e.record.RunID, e.record.ModelID
	e.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "kinetics.run", trace.WithAttributes(
		attribute.String("run.id", string(runID)),
		attribute.String("model.id", modelID),
		attribute.String("run.method", cfg.Method),
		attribute.Float64("run.stop_time", cfg.StopTime),
		attribute.Int64("run.max_steps", cfg.MaxSteps),
	))
	defer span.End()

	kind, _ := ParseMethodKind(cfg.Method)
	m.metrics.RunStarted(modelID, kind)
	m.publish(e, EventRunStarted, nil)
	m.logger.Infof("run started: run_id=%s model=%s method=%s", runID, modelID, kind)

	driver := NewDriver(model)
	driver.SetLogger(m.logger)
	res, err := driver.Run(ctx, cfg, WithProgress(func(p Progress) bool {
		e.mu.Lock()
		e.record.Steps = p.Steps
		e.record.Time = p.Time
		e.record.Progress = p.Fraction
		e.mu.Unlock()
		m.publish(e, EventRunProgress, nil)
		return true
	}))
	if res == nil {
		res = &Result{Status: StatusFailed, Reason: "run could not start"}
	}

	span.SetAttributes(
		attribute.String("run.status", res.Status.String()),
		attribute.Int64("run.steps", res.Steps),
		attribute.Int64("run.seed", int64(res.Seed)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.finish(e, res, err, started)
}

// finish records the outcome of a run. A zero started time means the run
// was cancelled while queued and never counted as started.
func (m *Manager) finish(e *runEntry, res *Result, runErr error, started time.Time) {
	finished := time.Now().UTC()
	e.mu.Lock()
	e.record.Status = res.Status
	e.record.Reason = res.Reason
	e.record.Method = res.Method
	e.record.Seed = res.Seed
	e.record.Steps = res.Steps
	e.record.Time = res.FinalTime
	e.record.FinishedAt = &finished
	if res.Status == StatusCompleted {
		e.record.Progress = 1
	}
	if res.FinalState.Counts != nil {
		e.record.FinalState = append([]int64(nil), res.FinalState.Counts...)
	}
	e.record.Trajectory = res.Trajectory
	if runErr != nil {
		e.record.Error = runErr.Error()
	}
	record := e.record
	e.mu.Unlock()

	if !started.IsZero() {
		m.metrics.RunFinished(record.ModelID, record.Status, record.Steps, finished.Sub(started))
	}
	m.publish(e, EventRunFinished, runErr)

	if runErr != nil {
		m.logger.Errorf("run failed: run_id=%s model=%s steps=%d: %v", record.RunID, record.ModelID, record.Steps, runErr)
	} else {
		m.logger.Infof("run finished: run_id=%s model=%s status=%s steps=%d t=%g",
			record.RunID, record.ModelID, record.Status, record.Steps, record.Time)
	}

	if m.store != nil && record.Trajectory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.store.SaveRun(ctx, record); err != nil {
			m.logger.Errorf("persisting run %s: %v", record.RunID, err)
		}
	}
}

func (m *Manager) publish(e *runEntry, eventType string, runErr error) {
	if m.notifications == nil || len(e.notifiers) == 0 {
		return
	}
	e.mu.Lock()
	ev := RunEvent{
		Type:      eventType,
		RunID:     e.record.RunID,
		ModelID:   e.record.ModelID,
		Status:    e.record.Status,
		Time:      e.record.Time,
		Steps:     e.record.Steps,
		Fraction:  e.record.Progress,
		Reason:    e.record.Reason,
		Timestamp: time.Now().Unix(),
	}
	e.mu.Unlock()
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	m.notifications.Enqueue(ev, e.notifiers)
}

// GetRun returns the run summary, from memory or the store.
func (m *Manager) GetRun(ctx context.Context, id RunID) (RunRecord, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if ok {
		return e.snapshot(), nil
	}
	rec, err := m.storedRun(ctx, id)
	if err != nil {
		return RunRecord{}, err
	}
	return rec.Summary(), nil
}

// Trajectory returns the trajectory of a finished run.
func (m *Manager) Trajectory(ctx context.Context, id RunID) (*Trajectory, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.record.Status.Terminal() {
			return nil, fmt.Errorf("%w: %s", ErrRunActive, id)
		}
		if e.record.Trajectory == nil {
			return nil, fmt.Errorf("run %s has no trajectory", id)
		}
		return e.record.Trajectory, nil
	}
	rec, err := m.storedRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Trajectory == nil {
		return nil, fmt.Errorf("run %s has no trajectory", id)
	}
	return rec.Trajectory, nil
}

func (m *Manager) storedRun(ctx context.Context, id RunID) (RunRecord, error) {
	if m.store == nil {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	rec, ok, err := m.store.GetRun(ctx, id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec, nil
}

// ListRuns returns every known run, in-memory and persisted, newest first.
func (m *Manager) ListRuns(ctx context.Context) ([]RunRecord, error) {
	m.mu.RLock()
	out := make([]RunRecord, 0, len(m.runs))
	seen := make(map[RunID]struct{}, len(m.runs))
	for id, e := range m.runs {
		out = append(out, e.snapshot())
		seen[id] = struct{}{}
	}
	m.mu.RUnlock()

	if m.store != nil {
		stored, err := m.store.ListRuns(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing stored runs: %w", err)
		}
		for _, rec := range stored {
			if _, ok := seen[rec.RunID]; !ok {
				out = append(out, rec.Summary())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

// Cancel requests cancellation of a run. Cancelling a finished run is a
// no-op.
func (m *Manager) Cancel(id RunID) error {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	e.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id RunID) (RunRecord, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return m.GetRun(ctx, id)
	}
	select {
	case <-e.done:
		return e.snapshot(), nil
	case <-ctx.Done():
		return RunRecord{}, ctx.Err()
	}
}

// DeleteRun forgets a finished run, in memory and in the store.
func (m *Manager) DeleteRun(ctx context.Context, id RunID) error {
	m.mu.Lock()
	e, inMemory := m.runs[id]
	if inMemory {
		if !e.snapshot().Status.Terminal() {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrRunActive, id)
		}
		delete(m.runs, id)
	}
	m.mu.Unlock()

	if m.store == nil {
		if !inMemory {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	}
	if !inMemory {
		if _, err := m.storedRun(ctx, id); err != nil {
			return err
		}
	}
	if err := m.store.DeleteRun(ctx, id); err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	return nil
}

// Close cancels every active run and waits for them to finish. The
// notification manager, if any, is closed last so final events are
// delivered.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancelAll()
	m.wg.Wait()

	var errs []error
	if m.notifications != nil {
		if err := m.notifications.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
