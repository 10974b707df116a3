package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/daniacca/stochkin/internal/kinetics"
)

// MemoryStore keeps run records in process memory. Records are copied on
// the way in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[kinetics.RunID]kinetics.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[kinetics.RunID]kinetics.RunRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, record kinetics.RunRecord) error {
	if record.RunID == "" {
		return errors.New("run record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New("store is not initialized")
	}

	s.runs[record.RunID] = cloneRecord(record)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id kinetics.RunID) (kinetics.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.runs[id]
	if !ok {
		return kinetics.RunRecord{}, false, nil
	}
	return cloneRecord(record), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]kinetics.RunRecord, error) {
	s.mu.RLock()
	out := make([]kinetics.RunRecord, 0, len(s.runs))
	for _, record := range s.runs {
		out = append(out, record.Summary())
	}
	s.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id kinetics.RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	return nil
}

func cloneRecord(r kinetics.RunRecord) kinetics.RunRecord {
	out := r.Summary()
	if r.Trajectory != nil {
		traj := kinetics.NewTrajectory(r.Trajectory.Species)
		for _, sample := range r.Trajectory.Samples {
			traj.AppendAt(sample.Time, kinetics.State{Counts: sample.Counts})
		}
		out.Trajectory = traj
	}
	return out
}

// sortRecords orders newest first, ties broken by id.
func sortRecords(records []kinetics.RunRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].SubmittedAt.Equal(records[j].SubmittedAt) {
			return records[i].SubmittedAt.After(records[j].SubmittedAt)
		}
		return records[i].RunID < records[j].RunID
	})
}
