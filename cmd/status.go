package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/powerfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	statusOutDir    string
	statusShowTrace bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "List stored runs or show one run",
	Long: `Lists results in the store.
If run-id is provided, shows the full result for that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusOutDir, "out", "results", "Result store directory")
	statusCmd.Flags().BoolVar(&statusShowTrace, "trace", false, "Also print the per-iteration trace")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := store.NewFSStore(statusOutDir)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return listRuns(st)
	}
	return showRun(st, args[0])
}

func listRuns(st *store.FSStore) error {
	infos, err := st.ListResults()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("Found %d run(s):\n\n", len(infos))
	for _, info := range infos {
		fmt.Printf("Run ID: %s\n", info.RunID)
		fmt.Printf("  Model: %s\n", info.Model)
		fmt.Printf("  Data: %s\n", info.DataPath)
		fmt.Printf("  f: %.6g after %d iterations\n", info.Fun, info.Iterations)
		fmt.Printf("  Converged: %v (%s)\n", info.Converged, info.Message)
		fmt.Printf("  When: %s\n", info.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}

func showRun(st *store.FSStore, runID string) error {
	result, err := st.LoadResult(runID)
	if err != nil {
		return err
	}

	printResult(result)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", result.Config.Model)
	fmt.Printf("  Data: %s\n", result.Config.DataPath)
	fmt.Printf("  Init: %s\n", result.Config.InitFrom)
	fmt.Printf("  Priors: %v, Rescale: %v\n", result.Config.UsePriors, result.Config.Rescale)

	if !statusShowTrace {
		return nil
	}

	tr, err := store.NewTraceReader(statusOutDir, runID)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			fmt.Println("\nNo trace recorded for this run")
			return nil
		}
		return err
	}
	defer tr.Close()

	fmt.Println("\nTrace:")
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Printf("  iter %4d  f = %.6g\n", entry.Iteration, entry.F)
	}
	return nil
}
