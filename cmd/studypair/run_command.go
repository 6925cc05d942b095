package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"studypair/internal/batch"
	"studypair/internal/dispatch"
	"studypair/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var o overrides
	var noProgress bool
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "run <dir>...",
		Short: "Scan, match, and dispatch a batch of study pairs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configWith(&o)
			if err != nil {
				return err
			}
			if err := cfg.ValidateDispatch(); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if !skipChecks {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
					for _, r := range failed {
						fmt.Fprintln(out, renderStatusLine(r.Name, statusError, r.Detail, colorize))
					}
					return fmt.Errorf("preflight failed: %d check(s); run 'studypair check' for details", len(failed))
				}
			}

			batchID := uuid.NewString()
			logger, err := ctx.logger(cfg, cmd.ErrOrStderr(), batchID)
			if err != nil {
				return err
			}

			opts := batch.Options{Config: cfg, Logger: logger, BatchID: batchID}
			if !noProgress && shouldColorize(cmd.ErrOrStderr()) {
				progress := newDispatchProgress(cmd.ErrOrStderr(), logger)
				opts.OnPlanned = progress.Planned
				opts.Observer = progress
			}
			runner, err := batch.New(opts)
			if err != nil {
				return err
			}

			result, runErr := runner.Run(cmd.Context(), args)

			for _, line := range renderSectionHeader("Batch "+batchID, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Series", statusInfo, strconv.Itoa(len(result.Plan.Records)), colorize))
			fmt.Fprintln(out, renderStatusLine("Pairs", statusInfo, strconv.Itoa(len(result.Plan.Pairs)), colorize))
			fmt.Fprintln(out, renderStatusLine("Processed", statusOK, strconv.Itoa(result.Summary.Processed), colorize))
			skippedKind := statusOK
			if result.Summary.Skipped > 0 {
				skippedKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Skipped", skippedKind, strconv.Itoa(result.Summary.Skipped), colorize))
			if result.Plan.RuleErr != nil {
				fmt.Fprintln(out, renderStatusLine("Rules", statusWarn, result.Plan.RuleErr.Error(), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Progress log", statusInfo, cfg.Paths.ProgressLog, colorize))

			if runErr != nil {
				var fault *dispatch.LaunchFault
				if errors.As(runErr, &fault) {
					fmt.Fprintln(out, renderStatusLine("Fault", statusError, fault.Error(), colorize))
					fmt.Fprintln(out, renderStatusLine("Error log", statusInfo, cfg.Paths.ErrorLog, colorize))
				}
				return fmt.Errorf("batch %s: %w", batchID, runErr)
			}
			return nil
		},
	}

	o.register(cmd, true)
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip preflight checks before dispatching")
	return cmd
}
