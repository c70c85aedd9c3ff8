package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"epiworld.sim/internal/persistence/indexdb"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Query the batch index",
	}
	cmd.PersistentFlags().String("index", "./data/index.sqlite", "sqlite index path")
	cmd.AddCommand(newDBBatchesCmd(), newDBReplicatesCmd(), newDBHistoryCmd())
	return cmd
}

func openIndex(cmd *cobra.Command) (*indexdb.SQLiteIndex, error) {
	path, _ := cmd.Flags().GetString("index")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return idx, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDBBatchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List indexed batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			idx, err := openIndex(cmd)
			if err != nil {
				return err
			}
			defer idx.Close()

			batches, err := idx.Batches()
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), batches)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tREPLICATES\tDAYS\tSEED\tSTARTED\tDURATION")
			for _, b := range batches {
				dur := "running"
				if !b.FinishedAt.IsZero() {
					dur = b.FinishedAt.Sub(b.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", b.ID, b.Name, b.Replicates, b.Days, b.BaseSeed, humanize.Time(b.StartedAt), dur)
			}
			return tw.Flush()
		},
	}
}

func newDBReplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replicates <batch>",
		Short: "List the replicates of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			idx, err := openIndex(cmd)
			if err != nil {
				return err
			}
			defer idx.Close()

			reps, err := idx.Replicates(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), reps)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tSEED\tDIGEST\tELAPSED\tSNAPSHOT")
			for _, r := range reps {
				fmt.Fprintf(tw, "%d\t%d\t%.12s\t%sms\t%s\n", r.Index, r.Seed, r.Digest, humanize.FtoaWithDigits(r.ElapsedMS, 2), r.SnapshotPath)
			}
			return tw.Flush()
		},
	}
}

func newDBHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <batch>",
		Short: "Print the mean status counts per day and the mean reproductive number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			idx, err := openIndex(cmd)
			if err != nil {
				return err
			}
			defer idx.Close()

			means, err := idx.MeanHistory(args[0])
			if err != nil {
				return err
			}
			rt, err := idx.MeanReproductive(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"history": means, "rt": rt})
			}

			var statuses []string
			seen := map[string]bool{}
			byDay := map[int]map[string]float64{}
			var days []int
			for _, m := range means {
				if !seen[m.Status] {
					seen[m.Status] = true
					statuses = append(statuses, m.Status)
				}
				if byDay[m.Day] == nil {
					byDay[m.Day] = map[string]float64{}
					days = append(days, m.Day)
				}
				byDay[m.Day][m.Status] = m.Mean
			}
			sort.Ints(days)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprint(tw, "DAY\t")
			for _, s := range statuses {
				fmt.Fprintf(tw, "%s\t", s)
			}
			fmt.Fprintln(tw, "RT\t")
			for _, d := range days {
				fmt.Fprintf(tw, "%d\t", d)
				for _, s := range statuses {
					fmt.Fprintf(tw, "%.1f\t", byDay[d][s])
				}
				if r, ok := rt[d]; ok {
					fmt.Fprintf(tw, "%.3f\t", r)
				} else {
					fmt.Fprint(tw, "-\t")
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
}
