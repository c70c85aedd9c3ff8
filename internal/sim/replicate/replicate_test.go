package replicate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"epiworld.sim/internal/persistence/snapshot"
	"epiworld.sim/internal/persistence/tables"
	"epiworld.sim/internal/sim/database"
	"epiworld.sim/internal/sim/model"
	"epiworld.sim/internal/sim/modeltest"
)

func digests(t *testing.T, threads int) []string {
	t.Helper()
	h := modeltest.NewSEIR(t, 200, 4, 3)
	if err := h.Model.Init(30, 0); err != nil {
		t.Fatalf("init: %v", err)
	}
	var order []int
	out := make([]string, 8)
	r := &Replicator{
		Count:    8,
		Threads:  threads,
		BaseSeed: 42,
		After: func(res Result) error {
			order = append(order, res.Index)
			out[res.Index] = res.Model.DB().Digest()
			if res.Digest != out[res.Index] {
				t.Errorf("result digest %s, database digest %s", res.Digest, out[res.Index])
			}
			return nil
		},
	}
	if err := r.Run(context.Background(), h.Model); err != nil {
		t.Fatalf("run (%d threads): %v", threads, err)
	}
	for i, idx := range order {
		if idx != i {
			t.Fatalf("callback order %v, want ascending", order)
		}
	}
	if len(order) != 8 {
		t.Fatalf("callbacks = %d, want 8", len(order))
	}
	return out
}

func TestReplicator_ThreadCountInvariance(t *testing.T) {
	one := digests(t, 1)
	four := digests(t, 4)
	for i := range one {
		if one[i] != four[i] {
			t.Fatalf("replicate %d: digest %s with 1 thread, %s with 4", i, one[i], four[i])
		}
	}
	distinct := map[string]bool{}
	for _, d := range one {
		distinct[d] = true
	}
	if len(distinct) < 2 {
		t.Fatalf("all replicates produced the same history")
	}
}

func TestReplicator_SavesArtifacts(t *testing.T) {
	dir := t.TempDir()
	h := modeltest.NewSEIR(t, 50, 2, 1)
	var progress []ProgressEvent
	r := &Replicator{
		Count:    3,
		Threads:  2,
		BaseSeed: 7,
		Days:     10,
		Save: &SaveRun{
			Dir:      dir,
			Pattern:  "run-%02d",
			Tables:   tables.Selection{TotalHist: true, Transmission: true},
			Snapshot: true,
			DayLog:   true,
		},
		Progress: func(ev ProgressEvent) { progress = append(progress, ev) },
	}
	if err := r.Run(context.Background(), h.Model); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{
		"run-00_total_hist.csv", "run-01_transmission.csv", "run-02.snap.zst", "run-02_days.jsonl.zst",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if len(progress) != 3 || progress[2].Done != 3 || progress[2].Total != 3 {
		t.Fatalf("progress = %+v", progress)
	}

	snap, err := snapshot.ReadSnapshot(filepath.Join(dir, "run-01.snap.zst"))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Header.Replicate != 1 || snap.Header.Days != 10 || len(snap.History) != 11 {
		t.Fatalf("snapshot header %+v with %d rows", snap.Header, len(snap.History))
	}
	if got := database.FromSnapshot(snap).Digest(); got != snap.Header.Digest {
		t.Fatalf("restored digest %s, header %s", got, snap.Header.Digest)
	}
}

func TestReplicator_FirstErrorAbortsBatch(t *testing.T) {
	m := model.New("faulty", 4)
	m.AddStatus("S", model.UpdaterFunc(func(a *model.Agent, m *model.Model) {
		m.ChangeStatus(a, model.Status(99))
	}))
	if err := m.Init(3, 1); err != nil {
		t.Fatalf("init: %v", err)
	}
	calls := 0
	r := &Replicator{Count: 5, Threads: 2, After: func(Result) error { calls++; return nil }}
	err := r.Run(context.Background(), m)
	var ie *model.InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want InvariantError", err)
	}
	if calls != 0 {
		t.Fatalf("after called %d times for failed replicates", calls)
	}
}

func TestReplicator_SuccessfulBatchReturnsNil(t *testing.T) {
	h := modeltest.NewSEIR(t, 20, 2, 1)
	calls := 0
	r := &Replicator{Count: 3, Threads: 3, Days: 5, After: func(Result) error { calls++; return nil }}
	if err := r.Run(context.Background(), h.Model); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("after called %d times, want 3", calls)
	}
}

func TestReplicator_CanceledContext(t *testing.T) {
	h := modeltest.NewSEIR(t, 20, 2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	r := &Replicator{Count: 3, Threads: 2, Days: 5, After: func(Result) error { calls++; return nil }}
	if err := r.Run(ctx, h.Model); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("after called %d times on a canceled batch", calls)
	}
}

func TestReplicator_AfterErrorStops(t *testing.T) {
	h := modeltest.NewSEIR(t, 20, 2, 1)
	stop := errors.New("enough")
	r := &Replicator{Count: 4, Threads: 1, Days: 5, After: func(res Result) error {
		if res.Index == 1 {
			return stop
		}
		return nil
	}}
	if err := r.Run(context.Background(), h.Model); !errors.Is(err, stop) {
		t.Fatalf("err = %v, want %v", err, stop)
	}
}

func TestReplicator_RequiresCount(t *testing.T) {
	h := modeltest.NewSEIR(t, 10, 2, 1)
	if err := (&Replicator{}).Run(context.Background(), h.Model); err == nil {
		t.Fatalf("zero count accepted")
	}
}
