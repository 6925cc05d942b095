package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"studypair/internal/config"
	"studypair/internal/notifications"
	"studypair/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var o overrides
	var notify bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the job binary, rule file, and writable paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configWith(&o)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, dash(ctx.configPath), colorize))
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				fmt.Fprintln(out, renderStatusLine(r.Name, checkKind(r), r.Detail, colorize))
			}
			if notify {
				fmt.Fprintln(out, notificationLine(cmd.Context(), cfg, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}

	o.register(cmd, true)
	cmd.Flags().BoolVar(&notify, "notify", false, "Send a test notification to the configured ntfy topic")
	return cmd
}

func notificationLine(ctx context.Context, cfg *config.Config, colorize bool) string {
	const label = "Notifications"
	svc := notifications.NewService(cfg)
	if !notifications.Enabled(svc) {
		return renderStatusLine(label, statusWarn, "notifications.ntfy_topic not set", colorize)
	}
	if err := svc.TestNotification(ctx); err != nil {
		return renderStatusLine(label, statusWarn, err.Error(), colorize)
	}
	return renderStatusLine(label, statusOK, "test notification sent to "+cfg.Notifications.NtfyTopic, colorize)
}
