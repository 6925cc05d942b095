package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"studypair/internal/config"
	"studypair/internal/history"
	"studypair/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// configWith returns a copy of the loaded config with flag overrides applied.
func (c *commandContext) configWith(o *overrides) (*config.Config, error) {
	base, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	cfg := *base
	cfg.Job.Args = append([]string(nil), base.Job.Args...)
	cfg.Scan.Extensions = append([]string(nil), base.Scan.Extensions...)
	if o != nil {
		if err := o.apply(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// logger builds a logger writing console output to w and a JSON copy to the
// log directory.
func (c *commandContext) logger(cfg *config.Config, w io.Writer, batchID string) (*slog.Logger, error) {
	opts := logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: w,
		BatchID: batchID,
	}
	if cfg.Paths.LogDir != "" {
		opts.FilePath = filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return logger, nil
}

// openHistory opens the batch ledger named by the loaded config.
func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.Paths.HistoryDB)
}

// overrides are the per-invocation flags that shadow config values.
type overrides struct {
	ruleFile    string
	outputDir   string
	binary      string
	workflow    string
	probe       string
	concurrency int
	workers     int
	logLevel    string
}

func (o *overrides) register(cmd *cobra.Command, dispatch bool) {
	flags := cmd.Flags()
	flags.StringVar(&o.ruleFile, "rules", "", "Rule file path (overrides paths.rule_file)")
	flags.IntVar(&o.workers, "workers", 0, "Concurrent folder readers (overrides scan.workers)")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	if !dispatch {
		return
	}
	flags.StringVarP(&o.outputDir, "output", "o", "", "Output directory (overrides paths.output_dir)")
	flags.StringVar(&o.binary, "binary", "", "Job executable (overrides job.binary)")
	flags.StringVar(&o.workflow, "workflow", "", "Workflow name passed to the job (overrides job.workflow)")
	flags.StringVar(&o.probe, "probe", "", "Running-job probe: process_table or handle (overrides job.probe)")
	flags.IntVarP(&o.concurrency, "concurrency", "j", 0, "Maximum concurrent jobs (overrides job.concurrency)")
}

func (o *overrides) apply(cfg *config.Config) error {
	var err error
	if v := strings.TrimSpace(o.ruleFile); v != "" {
		if cfg.Paths.RuleFile, err = config.ExpandPath(v); err != nil {
			return fmt.Errorf("--rules: %w", err)
		}
	}
	if v := strings.TrimSpace(o.outputDir); v != "" {
		if cfg.Paths.OutputDir, err = config.ExpandPath(v); err != nil {
			return fmt.Errorf("--output: %w", err)
		}
	}
	if v := strings.TrimSpace(o.binary); v != "" {
		cfg.Job.Binary = v
		if strings.ContainsRune(v, filepath.Separator) {
			if cfg.Job.Binary, err = config.ExpandPath(v); err != nil {
				return fmt.Errorf("--binary: %w", err)
			}
		}
	}
	if v := strings.TrimSpace(o.workflow); v != "" {
		cfg.Job.Workflow = v
	}
	if v := strings.TrimSpace(o.probe); v != "" {
		cfg.Job.Probe = strings.ToLower(v)
	}
	if o.concurrency != 0 {
		cfg.Job.Concurrency = o.concurrency
	}
	if o.workers != 0 {
		cfg.Scan.Workers = o.workers
	}
	if v := strings.TrimSpace(o.logLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
