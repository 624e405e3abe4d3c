package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"forge/internal/logging"
	"forge/internal/run"
	"forge/internal/runlock"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var (
		stages     []string
		checkpoint bool
		dryRun     bool
		cache      bool
		loadLimit  float64
		driverOpts []string
	)

	cmd := &cobra.Command{
		Use:   "build <platform>",
		Short: "Run the build stages for a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, ctx.debug())
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			result, err := run.Execute(cmd.Context(), run.Options{
				Config:     cfg,
				Platform:   args[0],
				Stages:     stages,
				Checkpoint: checkpoint,
				DryRun:     dryRun,
				Cache:      cache,
				DriverOpts: driverOpts,
				LoadLimit:  loadLimit,
				Confirm:    reclaimPrompt(cmd),
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Run %s completed in %s\n",
				result.RunID, result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&stages, "stages", nil, "Stages to dispatch in order (default: build)")
	cmd.Flags().BoolVar(&checkpoint, "checkpoint", false, "Merge staged output into the output tree on success")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Pass the build through without modifying the output tree")
	cmd.Flags().BoolVar(&cache, "cache", false, "Wrap the default driver's compilers with the configured cache tool")
	cmd.Flags().Float64Var(&loadLimit, "load-limit", 0, "Override the dispatch load ceiling")
	cmd.Flags().StringSliceVar(&driverOpts, "driver-opts", nil, "Extra options for the default build driver")

	return cmd
}

// reclaimPrompt asks the operator whether a stale run lock may be reclaimed.
// A non-interactive stdin refuses, so unattended invocations never steal a
// lock on their own.
func reclaimPrompt(cmd *cobra.Command) runlock.ConfirmFunc {
	return func(ownerPid int) (bool, error) {
		in := cmd.InOrStdin()
		if file, ok := in.(*os.File); ok && !isatty.IsTerminal(file.Fd()) {
			return false, nil
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"Stale run lock: owner pid %d is not running. Reclaim it? [y/N]: ", ownerPid)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil {
			return false, fmt.Errorf("read reclaim answer: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}
