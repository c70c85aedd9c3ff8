package database

import (
	"math"
	"path/filepath"
	"testing"

	"epiworld.sim/internal/persistence/snapshot"
)

func syntheticLog() *Database {
	db := New([]string{"S", "E", "I", "R"}, []string{"flu"}, nil)
	// Agent 0 is seeded on day 5 and infects 1 and 2.
	db.RecordTransmission(5, SeedSource, 0, 0)
	db.RecordTransmission(7, 0, 1, 0)
	db.RecordTransmission(8, 0, 2, 0)
	return db
}

func TestReproductiveNumbers_SyntheticLog(t *testing.T) {
	got := syntheticLog().ReproductiveNumbers()
	want := []RepNum{
		{Variant: 0, Source: 0, ExposureDay: 5, Count: 2},
		{Variant: 0, Source: 1, ExposureDay: 7, Count: 0},
		{Variant: 0, Source: 2, ExposureDay: 8, Count: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestReproductiveNumbers_Reinfection(t *testing.T) {
	db := New([]string{"S", "I"}, []string{"a"}, nil)
	db.RecordTransmission(0, SeedSource, 0, 0)
	db.RecordTransmission(2, 0, 1, 0)
	db.RecordTransmission(10, 1, 0, 0) // agent 0 reinfected on day 10
	db.RecordTransmission(12, 0, 2, 0)

	byKey := map[[3]int]int{}
	for _, r := range db.ReproductiveNumbers() {
		byKey[[3]int{r.Variant, r.Source, r.ExposureDay}] = r.Count
	}
	if byKey[[3]int{0, 0, 0}] != 1 {
		t.Fatalf("first exposure of agent 0: got %d want 1", byKey[[3]int{0, 0, 0}])
	}
	if byKey[[3]int{0, 0, 10}] != 1 {
		t.Fatalf("second exposure of agent 0: got %d want 1", byKey[[3]int{0, 0, 10}])
	}
	if byKey[[3]int{0, 1, 2}] != 1 {
		t.Fatalf("agent 1: got %d want 1", byKey[[3]int{0, 1, 2}])
	}
}

func TestGenerationTimes(t *testing.T) {
	gts := syntheticLog().GenerationTimes()
	if len(gts) != 2 {
		t.Fatalf("got %d generation times want 2", len(gts))
	}
	if gts[0].Gap != 2 || gts[1].Gap != 3 {
		t.Fatalf("gaps: %+v", gts)
	}
	if m := MeanGenerationTime(gts)[0]; m != 2.5 {
		t.Fatalf("mean generation time: got %v want 2.5", m)
	}
}

func TestTransitionMatrix_RowsSumToOneOrZero(t *testing.T) {
	db := New([]string{"S", "E", "I", "R"}, nil, nil)
	db.RecordTransition(1, 0, 0, 1)
	db.RecordTransition(1, 1, 0, 1)
	db.RecordTransition(2, 0, 1, 2)
	db.RecordTransition(3, 0, 2, 3)
	db.RecordTransition(3, 2, 1, 3) // E -> R
	db.RecordTransition(4, 3, 3, 3) // not a transition

	m := db.TransitionMatrix()
	for i, row := range m {
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		if sum != 0 && math.Abs(sum-1) > 1e-12 {
			t.Fatalf("row %d sums to %v", i, sum)
		}
	}
	if m[1][2] != 0.5 || m[1][3] != 0.5 {
		t.Fatalf("E row: %v", m[1])
	}
	for _, p := range m[3] {
		if p != 0 {
			t.Fatalf("R row should be all zero: %v", m[3])
		}
	}
	if len(db.Transitions()) != 5 {
		t.Fatalf("self transition should not be recorded")
	}
}

func TestTransitionCounts_GroupedByDay(t *testing.T) {
	db := New([]string{"S", "I"}, nil, nil)
	db.RecordTransition(2, 5, 0, 1)
	db.RecordTransition(1, 4, 0, 1)
	db.RecordTransition(1, 3, 0, 1)

	got := db.TransitionCounts()
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0] != (TransitionCount{Day: 1, From: 0, To: 1, Count: 2}) {
		t.Fatalf("first row: %+v", got[0])
	}
}

func TestSnapshot_RederivesViews(t *testing.T) {
	db := syntheticLog()
	db.RecordDay([]int{2, 1, 0, 0}, [][]int{{0, 1, 0, 0}}, nil)
	db.RecordDay([]int{1, 1, 1, 0}, [][]int{{0, 1, 1, 0}}, nil)

	path := filepath.Join(t.TempDir(), "db.snap.zst")
	snap := db.ExportSnapshot(snapshot.Header{Model: "synthetic", Replicate: 0, Days: 2})
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	re := FromSnapshot(back)
	if re.Digest() != db.Digest() {
		t.Fatalf("digest mismatch after round trip")
	}
	if back.Header.Digest != db.Digest() {
		t.Fatalf("header digest not set")
	}
	rn := re.ReproductiveNumbers()
	if rn[0].Count != 2 {
		t.Fatalf("re-derived R: %+v", rn)
	}
	if names, counts := re.TodayTotals(); len(names) != 4 || counts[2] != 1 {
		t.Fatalf("today totals: %v %v", names, counts)
	}
}

func TestReset_ClearsLogs(t *testing.T) {
	db := syntheticLog()
	db.RecordDay([]int{1, 2, 3, 4}, nil, nil)
	before := New(db.StatusNames(), db.VariantNames(), nil).Digest()
	db.Reset()
	if db.Days() != 0 || len(db.Transmissions()) != 0 {
		t.Fatalf("reset left data behind")
	}
	if db.Digest() != before {
		t.Fatalf("reset database should hash like a new one")
	}
}
