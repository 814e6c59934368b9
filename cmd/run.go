package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/cwbudde/powerfit/internal/config"
	"github.com/cwbudde/powerfit/internal/solver"
	"github.com/cwbudde/powerfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	runConfigPath string
	runDataPath   string
	runModelName  string
	runOutDir     string
	runTrace      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single fit",
	Long:  `Fits the selected model to the given data set and stores the result.`,
	RunE:  runFit,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Fit configuration file (TOML, defaults when omitted)")
	runCmd.Flags().StringVar(&runDataPath, "data", "", "Data set path (JSON, required)")
	runCmd.Flags().StringVar(&runModelName, "model", "reference", "Model name")
	runCmd.Flags().StringVar(&runOutDir, "out", "results", "Result store directory")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Record per-iteration objective trace")

	runCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(runCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	session, err := newFitSession(runConfigPath, runDataPath, runModelName)
	if err != nil {
		return err
	}

	st, err := store.NewFSStore(runOutDir)
	if err != nil {
		return err
	}
	runID := store.NewRunID()

	input := solver.RunInput{
		Params:    session.set,
		Objective: session.objective,
		Config:    session.cfg,
		RNG:       rand.New(rand.NewPCG(session.cfg.Seed, session.cfg.Seed)),
		RunID:     runID,
		RunConfig: session.runConfig(runModelName, runDataPath),
	}
	if session.cfg.InitFrom == config.InitFromGlobal {
		g := session.cfg.Global
		input.Global = solver.NewMayfly(g.Iters, g.PopSize, g.Seed)
	}
	if runTrace {
		tw, err := store.NewTraceWriter(runOutDir, runID, false)
		if err != nil {
			return err
		}
		defer tw.Close()
		input.Trace = tw
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := solver.NewDriver().Run(ctx, input)
	interrupted := errors.Is(err, solver.ErrInterrupted)
	if err != nil && !interrupted {
		return err
	}
	if interrupted {
		slog.Warn("Fit interrupted, saving partial result", "runID", runID)
	}

	if err := st.SaveResult(runID, result); err != nil {
		return err
	}

	printResult(result)
	return nil
}

func printResult(r *store.FitResult) {
	fmt.Printf("Run %s: %s\n", r.RunID, r.Message)
	fmt.Printf("  f = %.6g after %d iterations (%d evaluations, %s)\n",
		r.Fun, r.Iterations, r.Funcalls, r.Elapsed.Round(time.Millisecond))
	for i, name := range r.Names {
		fmt.Printf("  %-12s = %.6g\n", name, r.X[i])
	}
}
