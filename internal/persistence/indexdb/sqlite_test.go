package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"epiworld.sim/internal/sim/database"
)

func sampleDB() *database.Database {
	db := database.New([]string{"S", "I"}, []string{"flu"}, nil)
	db.RecordDay([]int{3, 1}, [][]int{{0, 1}}, nil)
	db.RecordTransmission(0, database.SeedSource, 0, 0)
	db.RecordTransmission(1, 0, 1, 0)
	db.RecordTransition(1, 1, 0, 1)
	db.RecordDay([]int{2, 2}, [][]int{{0, 2}}, nil)
	return db
}

func TestSQLiteIndex_RecordReplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := idx.RecordBatch(Batch{ID: "b1", Name: "seir", Scenario: "{}", Replicates: 2, Threads: 2, BaseSeed: 9, Days: 1, StartedAt: start}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	idx.RecordReplicate(Replicate{Batch: "b1", Index: 0, Seed: 11, Digest: "d0", ElapsedMS: 1.5}, sampleDB())
	idx.RecordReplicate(Replicate{Batch: "b1", Index: 1, Seed: 12, Digest: "d1", SnapshotPath: "/tmp/r1.snap.zst"}, sampleDB())
	idx.FinishBatch("b1", start.Add(time.Minute))

	reps, err := idx.Replicates("b1")
	if err != nil {
		t.Fatalf("Replicates: %v", err)
	}
	if len(reps) != 2 || reps[1].Seed != 12 || reps[1].SnapshotPath != "/tmp/r1.snap.zst" || reps[0].SnapshotPath != "" {
		t.Fatalf("replicates = %+v", reps)
	}
	means, err := idx.MeanHistory("b1")
	if err != nil {
		t.Fatalf("MeanHistory: %v", err)
	}
	if len(means) != 4 || means[3].Day != 1 || means[3].Status != "S" || means[3].Mean != 2 {
		t.Fatalf("means = %+v", means)
	}
	rt, err := idx.MeanReproductive("b1")
	if err != nil {
		t.Fatalf("MeanReproductive: %v", err)
	}
	if rt[0] != 1 || rt[1] != 0 {
		t.Fatalf("R = %v", rt)
	}
	batches, err := idx.Batches()
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(batches) != 1 || batches[0].FinishedAt.IsZero() || !batches[0].StartedAt.Equal(start) {
		t.Fatalf("batches = %+v", batches)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transitions WHERE batch='b1' AND from_status='S' AND to_status='I'`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 2 {
		t.Fatalf("transition rows = %d, want 2", n)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqFinish}
	s.RecordReplicate(Replicate{Batch: "b"}, sampleDB())

	st := s.Stats()
	if st.DropReplicateTotal != 1 {
		t.Fatalf("DropReplicateTotal=%d want=1", st.DropReplicateTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RollbackStats(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := idx.RecordBatch(Batch{ID: "b1", Name: "seir", Scenario: "{}", Replicates: 2, Days: 1, StartedAt: start}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	// The second row violates the batches foreign key and takes the first one down with it.
	idx.RecordReplicate(Replicate{Batch: "b1", Index: 0, Seed: 1, Digest: "d0"}, sampleDB())
	idx.RecordReplicate(Replicate{Batch: "missing", Index: 1, Seed: 2, Digest: "d1"}, sampleDB())
	idx.FinishBatch("b1", start.Add(time.Minute))

	if st := idx.Stats(); st.RollbackReplicateTotal != 2 || st.DropReplicateTotal != 0 {
		t.Fatalf("stats = %+v, want 2 rolled back", st)
	}
	reps, err := idx.Replicates("b1")
	if err != nil {
		t.Fatalf("Replicates: %v", err)
	}
	if len(reps) != 0 {
		t.Fatalf("replicates = %+v, want none committed", reps)
	}

	idx.RecordReplicate(Replicate{Batch: "b1", Index: 0, Seed: 1, Digest: "d0"}, sampleDB())
	idx.FinishBatch("b1", start.Add(2*time.Minute))
	if reps, err = idx.Replicates("b1"); err != nil || len(reps) != 1 {
		t.Fatalf("replicates after retry = %+v (%v)", reps, err)
	}
	if st := idx.Stats(); st.RollbackReplicateTotal != 2 {
		t.Fatalf("rollbacks = %d after a clean batch", st.RollbackReplicateTotal)
	}
}
