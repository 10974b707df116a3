package storage

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/daniacca/stochkin/internal/kinetics"
)

func makeRecord(id string, submitted time.Time) kinetics.RunRecord {
	seed := uint64(7)
	traj := kinetics.NewTrajectory([]string{"A", "B"})
	traj.Append(kinetics.State{Time: 0, Counts: []int64{10, 0}})
	traj.Append(kinetics.State{Time: 0.5, Counts: []int64{9, 1}})
	traj.AppendAt(1, kinetics.State{Counts: []int64{9, 1}})
	return kinetics.RunRecord{
		RunID:       kinetics.RunID(id),
		ModelID:     "decay",
		ModelName:   "decay",
		Config:      kinetics.RunConfig{StopTime: 1, Seed: &seed, RecordEveryStep: true},
		Status:      kinetics.StatusCompleted,
		Method:      kinetics.MethodDirect,
		Seed:        seed,
		Steps:       1,
		Time:        1,
		FinalState:  []int64{9, 1},
		SubmittedAt: submitted.UTC(),
		Trajectory:  traj,
	}
}

// storeContract runs the behaviour every Store backend must share.
func storeContract(newStore func() Store) {
	var (
		ctx   context.Context
		store Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
		Expect(store.Init(ctx)).To(Succeed())
		DeferCleanup(func() {
			Expect(CloseIfSupported(store)).To(Succeed())
		})
	})

	It("round-trips a run with its trajectory", func() {
		rec := makeRecord("run-1", time.Now())
		Expect(store.SaveRun(ctx, rec)).To(Succeed())

		got, ok, err := store.GetRun(ctx, "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.ModelID).To(Equal("decay"))
		Expect(got.Status).To(Equal(kinetics.StatusCompleted))
		Expect(*got.Config.Seed).To(Equal(uint64(7)))
		Expect(got.Trajectory).NotTo(BeNil())
		Expect(got.Trajectory.Species).To(Equal([]string{"A", "B"}))
		Expect(got.Trajectory.Samples).To(HaveLen(3))
		Expect(got.Trajectory.Samples[1].Counts).To(Equal([]int64{9, 1}))
	})

	It("reports missing runs without an error", func() {
		_, ok, err := store.GetRun(ctx, "nope")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("overwrites a run saved twice", func() {
		rec := makeRecord("run-1", time.Now())
		Expect(store.SaveRun(ctx, rec)).To(Succeed())
		rec.Status = kinetics.StatusCancelled
		Expect(store.SaveRun(ctx, rec)).To(Succeed())

		got, ok, err := store.GetRun(ctx, "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Status).To(Equal(kinetics.StatusCancelled))

		all, err := store.ListRuns(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
	})

	It("lists summaries newest first", func() {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		Expect(store.SaveRun(ctx, makeRecord("old", base))).To(Succeed())
		Expect(store.SaveRun(ctx, makeRecord("new", base.Add(time.Minute)))).To(Succeed())

		all, err := store.ListRuns(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
		Expect(all[0].RunID).To(Equal(kinetics.RunID("new")))
		Expect(all[1].RunID).To(Equal(kinetics.RunID("old")))
		Expect(all[0].Trajectory).To(BeNil())
	})

	It("deletes runs", func() {
		Expect(store.SaveRun(ctx, makeRecord("run-1", time.Now()))).To(Succeed())
		Expect(store.DeleteRun(ctx, "run-1")).To(Succeed())

		_, ok, err := store.GetRun(ctx, "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("rejects records without an id", func() {
		Expect(store.SaveRun(ctx, kinetics.RunRecord{})).NotTo(Succeed())
	})
}

var _ = Describe("MemoryStore", func() {
	storeContract(func() Store { return NewMemoryStore() })

	It("does not share trajectories with the caller", func() {
		ctx := context.Background()
		store := NewMemoryStore()
		Expect(store.Init(ctx)).To(Succeed())

		rec := makeRecord("run-1", time.Now())
		Expect(store.SaveRun(ctx, rec)).To(Succeed())
		rec.Trajectory.Samples[0].Counts[0] = 999

		got, _, err := store.GetRun(ctx, "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Trajectory.Samples[0].Counts[0]).To(Equal(int64(10)))
	})
})

var _ = Describe("SQLiteStore", func() {
	storeContract(func() Store {
		return NewSQLiteStore(filepath.Join(GinkgoT().TempDir(), "stochkin.db"))
	})

	It("survives reopening the database", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "stochkin.db")

		first := NewSQLiteStore(path)
		Expect(first.Init(ctx)).To(Succeed())
		Expect(first.SaveRun(ctx, makeRecord("run-1", time.Now()))).To(Succeed())
		Expect(first.Close()).To(Succeed())

		second := NewSQLiteStore(path)
		Expect(second.Init(ctx)).To(Succeed())
		defer second.Close()
		got, ok, err := second.GetRun(ctx, "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Trajectory.Samples).To(HaveLen(3))
	})

	It("fails before Init", func() {
		store := NewSQLiteStore(filepath.Join(GinkgoT().TempDir(), "x.db"))
		_, _, err := store.GetRun(context.Background(), "run-1")
		Expect(err).To(HaveOccurred())
	})
})
