package kinetics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// RunRecord is the persisted form of a run: what was asked, what happened
// and, once finished, the recorded trajectory.
type RunRecord struct {
	RunID       RunID       `json:"run_id"`
	ModelID     string      `json:"model_id"`
	ModelName   string      `json:"model_name"`
	Config      RunConfig   `json:"config"`
	Status      Status      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Error       string      `json:"error,omitempty"`
	Method      MethodKind  `json:"method,omitempty"`
	Seed        uint64      `json:"seed"`
	Steps       int64       `json:"steps"`
	Time        float64     `json:"time"`
	Progress    float64     `json:"progress"`
	FinalState  []int64     `json:"final_state,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	Trajectory  *Trajectory `json:"trajectory,omitempty"`
}

// Summary returns a copy of the record without its trajectory.
func (r RunRecord) Summary() RunRecord {
	r.Trajectory = nil
	if r.FinalState != nil {
		r.FinalState = append([]int64(nil), r.FinalState...)
	}
	return r
}

// TrajectoryStore persists finished runs.
type TrajectoryStore interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, record RunRecord) error
	// GetRun returns the full record including its trajectory.
	GetRun(ctx context.Context, id RunID) (RunRecord, bool, error)
	// ListRuns returns summaries, without trajectories.
	ListRuns(ctx context.Context) ([]RunRecord, error)
	DeleteRun(ctx context.Context, id RunID) error
}

func EncodeRunRecordJSON(record RunRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run record: %w", err)
	}
	return data, nil
}

func DecodeRunRecordJSON(data []byte) (RunRecord, error) {
	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RunRecord{}, fmt.Errorf("failed to decode run record: %w", err)
	}
	if record.Trajectory != nil {
		if err := ValidateTrajectory(record.Trajectory, nil); err != nil {
			return RunRecord{}, fmt.Errorf("run record %s: %w", record.RunID, err)
		}
	}
	return record, nil
}

// ValidateTrajectory checks that:
//   - sample times are finite and non-decreasing
//   - every sample has one count per species and no negative count
//   - species names match the model, when one is given
func ValidateTrajectory(traj *Trajectory, model *Model) error {
	if traj == nil {
		return fmt.Errorf("trajectory is nil")
	}
	if model != nil {
		names := model.SpeciesNames()
		if len(names) != len(traj.Species) {
			return fmt.Errorf("trajectory has %d species, model %s has %d", len(traj.Species), model.Name(), len(names))
		}
		for i, name := range names {
			if traj.Species[i] != name {
				return fmt.Errorf("trajectory species %d is %q, model has %q", i, traj.Species[i], name)
			}
		}
	}
	prev := math.Inf(-1)
	for i, s := range traj.Samples {
		if math.IsNaN(s.Time) || math.IsInf(s.Time, 0) {
			return fmt.Errorf("sample %d has invalid time %v", i, s.Time)
		}
		if s.Time < prev {
			return fmt.Errorf("sample %d time %g precedes previous sample time %g", i, s.Time, prev)
		}
		prev = s.Time
		if len(s.Counts) != len(traj.Species) {
			return fmt.Errorf("sample %d has %d counts, expected %d", i, len(s.Counts), len(traj.Species))
		}
		for j, c := range s.Counts {
			if c < 0 {
				return fmt.Errorf("sample %d has negative count %d for %s", i, c, traj.Species[j])
			}
		}
	}
	return nil
}
