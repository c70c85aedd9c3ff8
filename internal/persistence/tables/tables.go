// Package tables writes a replicate's database as delimited text files.
package tables

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"epiworld.sim/internal/sim/database"
)

// Selection picks which files Save writes.
type Selection struct {
	TotalHist    bool `yaml:"total_hist" json:"total_hist"`
	VariantInfo  bool `yaml:"variant_info" json:"variant_info"`
	VariantHist  bool `yaml:"variant_hist" json:"variant_hist"`
	ToolInfo     bool `yaml:"tool_info" json:"tool_info"`
	ToolHist     bool `yaml:"tool_hist" json:"tool_hist"`
	Transmission bool `yaml:"transmission" json:"transmission"`
	Transition   bool `yaml:"transition" json:"transition"`
	Reproductive bool `yaml:"reproductive" json:"reproductive"`
	Generation   bool `yaml:"generation" json:"generation"`
}

func All() Selection {
	return Selection{true, true, true, true, true, true, true, true, true}
}

func (s Selection) Any() bool { return s != Selection{} }

type table struct {
	name  string
	on    bool
	write func(w io.Writer, db *database.Database) error
}

func (s Selection) tables() []table {
	return []table{
		{"total_hist", s.TotalHist, WriteTotalHist},
		{"variant_info", s.VariantInfo, WriteVariantInfo},
		{"variant_hist", s.VariantHist, WriteVariantHist},
		{"tool_info", s.ToolInfo, WriteToolInfo},
		{"tool_hist", s.ToolHist, WriteToolHist},
		{"transmission", s.Transmission, WriteTransmissions},
		{"transition", s.Transition, WriteTransitions},
		{"reproductive", s.Reproductive, WriteReproductive},
		{"generation", s.Generation, WriteGeneration},
	}
}

// Save writes every selected table to dir as <prefix>_<table>.csv and returns the paths.
func Save(dir, prefix string, db *database.Database, sel Selection) ([]string, error) {
	if !sel.Any() {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, t := range sel.tables() {
		if !t.on {
			continue
		}
		path := filepath.Join(dir, prefix+"_"+t.name+".csv")
		if err := writeFile(path, db, t.write); err != nil {
			return paths, fmt.Errorf("%s: %w", t.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, db *database.Database, write func(io.Writer, *database.Database) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, db); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func name(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return strconv.Itoa(i)
}

func itoa(v int) string { return strconv.Itoa(v) }

func flush(cw *csv.Writer) error {
	cw.Flush()
	return cw.Error()
}

func WriteTotalHist(w io.Writer, db *database.Database) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "status", "counts"})
	names := db.StatusNames()
	for day, row := range db.History() {
		for s, c := range row {
			_ = cw.Write([]string{itoa(day), name(names, s), itoa(c)})
		}
	}
	return flush(cw)
}

// WriteVariantInfo lists variants with the day and count of their first recorded
// transmissions (seeds included).
func WriteVariantInfo(w io.Writer, db *database.Database) error {
	names := db.VariantNames()
	first := make([]int, len(names))
	total := make([]int, len(names))
	for i := range first {
		first[i] = -1
	}
	for _, tx := range db.Transmissions() {
		if tx.Variant < 0 || tx.Variant >= len(names) {
			continue
		}
		if first[tx.Variant] < 0 {
			first[tx.Variant] = tx.Day
		}
		total[tx.Variant]++
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "variant", "date_recorded", "infections"})
	for i, n := range names {
		_ = cw.Write([]string{itoa(i), n, itoa(first[i]), itoa(total[i])})
	}
	return flush(cw)
}

func WriteVariantHist(w io.Writer, db *database.Database) error {
	return writeNested(w, "variant", db.VariantNames(), db.StatusNames(), db.VariantHistory())
}

func WriteToolInfo(w io.Writer, db *database.Database) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "tool"})
	for i, n := range db.ToolNames() {
		_ = cw.Write([]string{itoa(i), n})
	}
	return flush(cw)
}

func WriteToolHist(w io.Writer, db *database.Database) error {
	return writeNested(w, "tool", db.ToolNames(), db.StatusNames(), db.ToolHistory())
}

func writeNested(w io.Writer, kind string, rows, statuses []string, hist [][][]int) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", kind + "_id", kind, "status", "n"})
	for day, grid := range hist {
		for id, counts := range grid {
			for s, c := range counts {
				_ = cw.Write([]string{itoa(day), itoa(id), name(rows, id), name(statuses, s), itoa(c)})
			}
		}
	}
	return flush(cw)
}

func WriteTransmissions(w io.Writer, db *database.Database) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "variant", "source", "target"})
	for _, tx := range db.Transmissions() {
		_ = cw.Write([]string{itoa(tx.Day), itoa(tx.Variant), itoa(tx.Source), itoa(tx.Target)})
	}
	return flush(cw)
}

func WriteTransitions(w io.Writer, db *database.Database) error {
	cw := csv.NewWriter(w)
	names := db.StatusNames()
	_ = cw.Write([]string{"date", "from", "to", "counts"})
	for _, tc := range db.TransitionCounts() {
		_ = cw.Write([]string{itoa(tc.Day), name(names, tc.From), name(names, tc.To), itoa(tc.Count)})
	}
	return flush(cw)
}

func WriteReproductive(w io.Writer, db *database.Database) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"variant", "source", "source_exposure_date", "rt"})
	for _, r := range db.ReproductiveNumbers() {
		_ = cw.Write([]string{itoa(r.Variant), itoa(r.Source), itoa(r.ExposureDay), itoa(r.Count)})
	}
	return flush(cw)
}

func WriteGeneration(w io.Writer, db *database.Database) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"variant", "source", "source_exposure_date", "gentime"})
	for _, g := range db.GenerationTimes() {
		_ = cw.Write([]string{itoa(g.Variant), itoa(g.Source), itoa(g.ExposureDay), itoa(g.Gap)})
	}
	return flush(cw)
}
