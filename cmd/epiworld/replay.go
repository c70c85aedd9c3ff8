package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"epiworld.sim/internal/persistence/snapshot"
	"epiworld.sim/internal/persistence/tables"
	"epiworld.sim/internal/sim/database"
	"epiworld.sim/internal/sim/scenario"
	"epiworld.sim/internal/sim/tuning"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <replicate.snap.zst>",
		Short: "Inspect a saved replicate and optionally re-run it",
		Long: `Load a replicate snapshot, check its digest and print the views derived from it.

With --scenario the replicate is simulated again from the scenario and the snapshot
seed, and the two digests must match.

Examples:
  epiworld replay data/<batch>/rep-003.snap.zst
  epiworld replay data/<batch>/rep-003.snap.zst --scenario configs/seir.yaml
  epiworld replay data/<batch>/rep-003.snap.zst --tables ./tables`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			tablesDir, _ := cmd.Flags().GetString("tables")
			jsonOut, _ := cmd.Flags().GetBool("json")

			snap, err := snapshot.ReadSnapshot(args[0])
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			db := database.FromSnapshot(snap)
			if got := db.Digest(); got != snap.Header.Digest {
				return fmt.Errorf("snapshot digest mismatch: header=%s logs=%s", snap.Header.Digest, got)
			}

			if scenarioPath != "" {
				if err := rerun(scenarioPath, snap.Header); err != nil {
					return err
				}
				newLogger().Printf("replicate %d re-run matches digest %s", snap.Header.Replicate, snap.Header.Digest)
			}

			if tablesDir != "" {
				prefix := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(args[0]), ".zst"), ".snap")
				files, err := tables.Save(tablesDir, prefix, db, tables.All())
				if err != nil {
					return err
				}
				newLogger().Printf("wrote %d tables to %s", len(files), tablesDir)
			}

			v := newReplayView(snap.Header, db)
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			return v.write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("scenario", "", "scenario file used to re-run the replicate")
	cmd.Flags().String("tables", "", "directory to write every derived table to")
	return cmd
}

func rerun(path string, h snapshot.Header) error {
	t, err := tuning.Load(path)
	if err != nil {
		return err
	}
	m, err := scenario.Build(t)
	if err != nil {
		return err
	}
	if err := m.Init(h.Days, int64(h.Seed)); err != nil {
		return err
	}
	if err := m.Run(); err != nil {
		return err
	}
	if got := m.DB().Digest(); got != h.Digest {
		return fmt.Errorf("re-run digest mismatch: snapshot=%s run=%s", h.Digest, got)
	}
	return nil
}

type replayView struct {
	Header         snapshot.Header    `json:"header"`
	Statuses       []string           `json:"statuses"`
	Final          []int              `json:"final"`
	Transmissions  int                `json:"transmissions"`
	MeanR          map[string]float64 `json:"mean_r"`
	MeanGeneration map[string]float64 `json:"mean_generation"`
	Matrix         [][]float64        `json:"transition_matrix"`
}

func newReplayView(h snapshot.Header, db *database.Database) replayView {
	names, final := db.TodayTotals()
	v := replayView{
		Header:         h,
		Statuses:       names,
		Final:          final,
		Transmissions:  len(db.Transmissions()),
		MeanR:          map[string]float64{},
		MeanGeneration: map[string]float64{},
		Matrix:         db.TransitionMatrix(),
	}
	variant := func(i int) string {
		if vn := db.VariantNames(); i >= 0 && i < len(vn) {
			return vn[i]
		}
		return fmt.Sprint(i)
	}
	sum := map[int]int{}
	n := map[int]int{}
	for _, r := range db.ReproductiveNumbers() {
		sum[r.Variant] += r.Count
		n[r.Variant]++
	}
	for vi, c := range n {
		v.MeanR[variant(vi)] = float64(sum[vi]) / float64(c)
	}
	for vi, g := range database.MeanGenerationTime(db.GenerationTimes()) {
		v.MeanGeneration[variant(vi)] = g
	}
	return v
}

func (v replayView) write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "model %q replicate %d seed %d days %d\n", v.Header.Model, v.Header.Replicate, v.Header.Seed, v.Header.Days)
	fmt.Fprintf(&b, "digest %s\n\n", v.Header.Digest)
	fmt.Fprintln(&b, "Final distribution:")
	for i, name := range v.Statuses {
		fmt.Fprintf(&b, "  - (%d) %-12s: %d\n", i, name, v.Final[i])
	}
	fmt.Fprintf(&b, "\nTransmissions: %d\n", v.Transmissions)

	variants := make([]string, 0, len(v.MeanR))
	for name := range v.MeanR {
		variants = append(variants, name)
	}
	sort.Strings(variants)
	for _, name := range variants {
		fmt.Fprintf(&b, "  - %-12s: mean R %.3f", name, v.MeanR[name])
		if g, ok := v.MeanGeneration[name]; ok {
			fmt.Fprintf(&b, ", mean generation time %.2f days", g)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintln(&b, "\nTransition probabilities:")
	for i, row := range v.Matrix {
		label := fmt.Sprint(i)
		if i < len(v.Statuses) {
			label = v.Statuses[i]
		}
		fmt.Fprintf(&b, "  %-12s", label)
		for _, p := range row {
			fmt.Fprintf(&b, " %6.3f", p)
		}
		fmt.Fprintln(&b)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
