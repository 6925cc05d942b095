package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"studypair/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded batch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No batch runs recorded")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					colorizeText(string(run.Status), runKind(run.Status), colorize),
					humanize.Time(run.StartedAt),
					formatDuration(run.Duration()),
					strconv.Itoa(run.RecordCount),
					strconv.Itoa(run.PairCount),
					strconv.Itoa(run.Processed),
					strconv.Itoa(run.Skipped),
					dash(run.ErrorKind),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				col("Batch"), col("Status"), col("Started"), numCol("Duration"), numCol("Series"),
				numCol("Pairs"), numCol("Processed"), numCol("Skipped"), col("Error"),
			}, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	cmd.AddCommand(newHistoryStudyCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch run and its dispatch decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			id := strings.TrimSpace(args[0])
			run, err := store.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("batch %s not found", id)
			}
			decisions, err := store.Decisions(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Batch "+run.ID, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Status", runKind(run.Status), string(run.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("Started", statusInfo, run.StartedAt.Local().Format(time.DateTime), colorize))
			if d := run.Duration(); d > 0 {
				fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, formatDuration(d), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Inputs", statusInfo, strings.Join(run.Inputs, ", "), colorize))
			fmt.Fprintln(out, renderStatusLine("Rule file", statusInfo, dash(run.RuleFile), colorize))
			fmt.Fprintln(out, renderStatusLine("Workflow", statusInfo, dash(run.Workflow), colorize))
			fmt.Fprintln(out, renderStatusLine("Series / pairs", statusInfo, fmt.Sprintf("%d / %d", run.RecordCount, run.PairCount), colorize))
			if run.ErrorMessage != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, run.ErrorMessage, colorize))
			}
			fmt.Fprintln(out)
			renderDecisions(cmd, decisions, colorize)
			return nil
		},
	}
}

func newHistoryStudyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "study <study-uid>",
		Short: "Show every recorded decision for a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			decisions, err := store.FindStudy(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			renderDecisions(cmd, decisions, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
}

func renderDecisions(cmd *cobra.Command, decisions []history.Decision, colorize bool) {
	out := cmd.OutOrStdout()
	if len(decisions) == 0 {
		fmt.Fprintln(out, "No decisions recorded")
		return
	}
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, []string{
			d.RunID,
			strconv.Itoa(d.Index),
			colorizeText(string(d.Status), decisionKind(d.Status), colorize),
			dash(d.PatientID),
			shortUID(d.StudyUID),
			shortUID(dash(d.PrimarySeriesUID)),
			shortUID(dash(d.SecondarySeriesUID)),
			d.DecidedAt.Local().Format(time.DateTime),
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		col("Batch"), numCol("#"), col("Status"), col("Patient"),
		col("Study"), col("Primary"), col("Secondary"), col("Decided"),
	}, rows))
}

func runKind(status history.RunStatus) statusKind {
	switch status {
	case history.RunCompleted:
		return statusOK
	case history.RunCancelled:
		return statusWarn
	case history.RunFailed:
		return statusError
	default:
		return statusInfo
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
