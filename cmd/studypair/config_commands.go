package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"studypair/internal/config"
	"studypair/internal/rules"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage studypair configuration",
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		pathFlag  string
		overwrite bool
		withRules bool
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(pathFlag)
			if target == "" {
				var err error
				if target, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			} else {
				var err error
				if target, err = config.ExpandPath(target); err != nil {
					return err
				}
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file %s already exists (use --overwrite to replace)", target)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("stat config: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)

			if !withRules {
				return nil
			}
			cfg, _, _, err := config.Load(target)
			if err != nil {
				return err
			}
			rulePath := cfg.Paths.RuleFile
			if _, err := os.Stat(rulePath); err == nil && !overwrite {
				fmt.Fprintf(cmd.OutOrStdout(), "Rule file %s already exists\n", rulePath)
				return nil
			}
			if err := rules.WriteSample(rulePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample rule file to %s\n", rulePath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pathFlag, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	cmd.Flags().BoolVar(&withRules, "rules", false, "Also write a sample rule file at paths.rule_file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			encoded, err := cfg.Encode()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", dash(ctx.configPath))
			fmt.Fprint(out, encoded)
			return nil
		},
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and rule file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderStatusLine("Config", statusOK, dash(ctx.configPath), colorize))
			if err := cfg.ValidateDispatch(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Dispatch", statusError, err.Error(), colorize))
				return err
			}
			fmt.Fprintln(out, renderStatusLine("Dispatch", statusOK, cfg.Job.Binary, colorize))

			set, err := rules.Load(cfg.Paths.RuleFile)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Rules", statusWarn, err.Error(), colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine("Rules", statusOK,
				fmt.Sprintf("primary %s, secondary %s", set.Primary, set.Secondary), colorize))
			return nil
		},
	}
}
