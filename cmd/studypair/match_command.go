package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"studypair/internal/batch"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "match <dir>...",
		Short: "Show the pairs a batch would dispatch without launching anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configWith(&o)
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg, cmd.ErrOrStderr(), "")
			if err != nil {
				return err
			}
			runner, err := batch.New(batch.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			plan, err := runner.Plan(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if plan.RuleErr != nil {
				fmt.Fprintln(out, renderStatusLine("Rules", statusWarn, plan.RuleErr.Error(), colorize))
			}
			if len(plan.Pairs) == 0 {
				fmt.Fprintf(out, "No pairs matched across %d series\n", len(plan.Records))
				return nil
			}

			rows := make([][]string, 0, len(plan.Pairs))
			for i, pair := range plan.Pairs {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					dash(pair.PatientID),
					dash(pair.AccessionNumber),
					shortUID(pair.StudyUID),
					shortUID(pair.PrimarySeriesUID),
					shortUID(pair.SecondarySeriesUID),
					fmt.Sprintf("%d/%d", pair.PrimarySliceCount, pair.SecondarySliceCount),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				numCol("#"), col("Patient"), col("Accession"), col("Study"),
				col("Primary"), col("Secondary"), numCol("Slices"),
			}, rows))
			fmt.Fprintf(out, "%d pair(s) from %d series\n", len(plan.Pairs), len(plan.Records))
			return nil
		},
	}

	o.register(cmd, false)
	return cmd
}
