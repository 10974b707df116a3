// Package storage persists finished simulation runs.
package storage

import (
	"github.com/daniacca/stochkin/internal/kinetics"
)

// Store is the persistence contract used by the run manager.
type Store = kinetics.TrajectoryStore

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
