package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"epiworld.sim/internal/sim/scenario"
	"epiworld.sim/internal/sim/tuning"
)

func newNetworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network <scenario.yaml>",
		Short: "Write the contact network of a scenario as an edge list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			t, err := tuning.Load(args[0])
			if err != nil {
				return err
			}
			m, err := scenario.Build(t)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := m.WriteEdgelist(f); err != nil {
					return err
				}
				newLogger().Printf("wrote %d ties for %d agents to %s", m.NumEdges(), m.Size(), out)
				return f.Close()
			}
			if err := m.WriteEdgelist(w); err != nil {
				return fmt.Errorf("write edgelist: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	return cmd
}
