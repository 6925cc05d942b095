package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"studypair/internal/dicomscan"
	"studypair/internal/series"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "scan <dir>...",
		Short: "List the classified series found under the input directories",
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
			scanner := dicomscan.New(dicomscan.Options{
				Classifier: series.Classifier{VolumetricMinSlices: cfg.Scan.VolumetricMinSlices},
				Extensions: cfg.Scan.Extensions,
				Workers:    cfg.Scan.Workers,
				Logger:     logger,
			})
			records, err := scanner.Scan(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No series found")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					dash(rec.PatientID),
					shortUID(rec.StudyUID),
					shortUID(rec.SeriesUID),
					dash(rec.Modality),
					rec.ScanRole,
					rec.Orientation,
					yesNo(rec.IsVolumetric),
					strconv.Itoa(rec.SliceCount),
					shortUID(dash(rec.FrameOfReferenceUID)),
					rec.FilesFolder,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				col("Patient"), col("Study"), col("Series"), col("Modality"), col("Role"),
				col("Orientation"), col("3D"), numCol("Slices"), col("Frame"), col("Folder"),
			}, rows))
			fmt.Fprintf(out, "%d series\n", len(records))
			return nil
		},
	}

	o.register(cmd, false)
	return cmd
}
