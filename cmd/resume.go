package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/cwbudde/powerfit/internal/solver"
	"github.com/cwbudde/powerfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeConfigPath string
	resumeDataPath   string
	resumeModelName  string
	resumeOutDir     string
	resumeTrace      bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Continue a stored fit",
	Long: `Continues a previous run from its stored result: the final parameter
vector seeds the restart and the iteration budget accounts for the work
already done.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeFit,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeConfigPath, "config", "", "Fit configuration file (TOML, defaults when omitted)")
	resumeCmd.Flags().StringVar(&resumeDataPath, "data", "", "Data set path (JSON, required)")
	resumeCmd.Flags().StringVar(&resumeModelName, "model", "reference", "Model name")
	resumeCmd.Flags().StringVar(&resumeOutDir, "out", "results", "Result store directory")
	resumeCmd.Flags().BoolVar(&resumeTrace, "trace", false, "Extend the per-iteration objective trace")

	resumeCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(resumeCmd)
}

func resumeFit(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st, err := store.NewFSStore(resumeOutDir)
	if err != nil {
		return err
	}
	prev, err := st.LoadResult(runID)
	if err != nil {
		return err
	}

	session, err := newFitSession(resumeConfigPath, resumeDataPath, resumeModelName)
	if err != nil {
		return err
	}
	runCfg := session.runConfig(resumeModelName, resumeDataPath)
	if err := prev.IsCompatible(runCfg); err != nil {
		return err
	}

	slog.Info("Resuming run",
		"runID", runID,
		"iterations", prev.Iterations,
		"f", prev.Fun,
	)

	input := solver.RunInput{
		Params:    session.set,
		Objective: session.objective,
		Config:    session.cfg,
		Restart:   prev,
		RNG:       rand.New(rand.NewPCG(session.cfg.Seed, session.cfg.Seed)),
		RunID:     runID,
		RunConfig: runCfg,
	}
	if resumeTrace {
		tw, err := store.NewTraceWriter(resumeOutDir, runID, true)
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
