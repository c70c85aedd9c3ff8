package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "epiworld",
		Short: "Agent-based epidemic simulations",
		Long: `epiworld runs discrete-time stochastic epidemic models over a population of
agents, replicates them in parallel and stores the per-replicate histories.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newReplayCmd(),
		newNetworkCmd(),
		newDBCmd(),
	)
	return rootCmd
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "[epiworld] ", log.LstdFlags|log.Lmicroseconds)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "epiworld version %s\n", version)
		},
	}
}
