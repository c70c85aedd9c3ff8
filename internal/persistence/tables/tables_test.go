package tables

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"epiworld.sim/internal/sim/database"
)

func sampleDB() *database.Database {
	db := database.New([]string{"S", "I", "R"}, []string{"flu"}, []string{"mask"})
	db.RecordDay([]int{2, 1, 0}, [][]int{{0, 1, 0}}, [][]int{{1, 0, 0}})
	db.RecordTransmission(0, database.SeedSource, 0, 0)
	db.RecordTransmission(1, 0, 1, 0)
	db.RecordTransition(1, 1, 0, 1)
	db.RecordTransition(1, 0, 1, 2)
	db.RecordDay([]int{1, 1, 1}, [][]int{{0, 1, 0}}, [][]int{{1, 0, 0}})
	return db
}

func readAll(t *testing.T, b []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return rows
}

func TestWriteTotalHist(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTotalHist(&buf, sampleDB()); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows := readAll(t, buf.Bytes())
	if len(rows) != 1+2*3 {
		t.Fatalf("rows = %d, want 7", len(rows))
	}
	if got := strings.Join(rows[6], ","); got != "1,R,1" {
		t.Fatalf("last row = %q", got)
	}
}

func TestWriteReproductive(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReproductive(&buf, sampleDB()); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows := readAll(t, buf.Bytes())
	want := [][]string{
		{"variant", "source", "source_exposure_date", "rt"},
		{"0", "0", "0", "1"},
		{"0", "1", "1", "0"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if strings.Join(rows[i], ",") != strings.Join(want[i], ",") {
			t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestWriteTransitionsUsesStatusNames(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTransitions(&buf, sampleDB()); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows := readAll(t, buf.Bytes())
	if len(rows) != 3 || rows[1][1] != "S" || rows[1][2] != "I" || rows[2][1] != "I" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestSave_SelectedOnly(t *testing.T) {
	dir := t.TempDir()
	paths, err := Save(dir, "rep-001", sampleDB(), Selection{TotalHist: true, Generation: true})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	for _, p := range []string{"rep-001_total_hist.csv", "rep-001_generation.csv"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "rep-001_transmission.csv")); !os.IsNotExist(err) {
		t.Fatalf("unselected table written: %v", err)
	}
}

func TestSave_AllAndNone(t *testing.T) {
	dir := t.TempDir()
	paths, err := Save(dir, "x", sampleDB(), All())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(paths) != 9 {
		t.Fatalf("paths = %d, want 9", len(paths))
	}
	paths, err = Save(filepath.Join(dir, "none"), "x", sampleDB(), Selection{})
	if err != nil || paths != nil {
		t.Fatalf("empty selection: %v %v", paths, err)
	}
}
